package broadcast

import (
	"strings"

	"joinguard-hq/warden/pkg/platform"
)

// CallbackPrefix starts the data of every broadcast button.
const CallbackPrefix = "bc:"

// Button actions.
const (
	ActionGroups = "groups"
	ActionUsers  = "users"
	ActionBoth   = "both"
	ActionPin    = "pin"
	ActionNoPin  = "nopin"
	ActionCancel = "cancel"
)

func callbackData(sessionID, action string) string {
	return CallbackPrefix + sessionID + ":" + action
}

// ParseCallback splits broadcast button data into session id and action.
func ParseCallback(data string) (sessionID, action string, ok bool) {
	rest, ok := strings.CutPrefix(data, CallbackPrefix)
	if !ok {
		return "", "", false
	}
	sessionID, action, ok = strings.Cut(rest, ":")
	if !ok || sessionID == "" || action == "" {
		return "", "", false
	}
	return sessionID, action, true
}

// TargetMenu asks who should receive the broadcast.
func TargetMenu(sessionID string) (string, platform.Keyboard) {
	return "Who should receive this message?", platform.Keyboard{
		{
			{Text: "👥 Groups", Data: callbackData(sessionID, ActionGroups)},
			{Text: "👤 Users", Data: callbackData(sessionID, ActionUsers)},
		},
		{
			{Text: "📢 Both", Data: callbackData(sessionID, ActionBoth)},
			{Text: "✖️ Cancel", Data: callbackData(sessionID, ActionCancel)},
		},
	}
}

// PinMenu asks whether group copies should be pinned.
func PinMenu(sessionID string) (string, platform.Keyboard) {
	return "Pin the message in groups?", platform.Keyboard{
		{
			{Text: "📌 Pin", Data: callbackData(sessionID, ActionPin)},
			{Text: "No pin", Data: callbackData(sessionID, ActionNoPin)},
		},
		{
			{Text: "✖️ Cancel", Data: callbackData(sessionID, ActionCancel)},
		},
	}
}
