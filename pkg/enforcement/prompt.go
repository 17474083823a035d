package enforcement

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"joinguard-hq/warden/pkg/channel"
	"joinguard-hq/warden/pkg/platform"
)

const (
	// VerifyPrefix starts the callback data of the verify button.
	VerifyPrefix = "verify:"

	// legacyVerifyPrefix is accepted for prompts posted by older releases.
	legacyVerifyPrefix = "check_again:"

	verifyButtonText = "✅ I've joined all channels"
)

// VerifyData returns the callback payload of the verify button for userID.
func VerifyData(userID int64) string {
	return VerifyPrefix + strconv.FormatInt(userID, 10)
}

// IsVerifyData reports whether data belongs to a verify button.
func IsVerifyData(data string) bool {
	return strings.HasPrefix(data, VerifyPrefix) || strings.HasPrefix(data, legacyVerifyPrefix)
}

// ParseVerifyData extracts the muted user's id from a verify payload.
func ParseVerifyData(data string) (int64, bool) {
	rest, ok := strings.CutPrefix(data, VerifyPrefix)
	if !ok {
		rest, ok = strings.CutPrefix(data, legacyVerifyPrefix)
	}
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// Mention renders an HTML link that mentions the user.
func Mention(u platform.User) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, u.ID, html.EscapeString(u.DisplayName()))
}

// joinTarget is one channel shown on a prompt.
type joinTarget struct {
	ref   channel.Ref
	title string
	link  string
}

func promptText(u platform.User, targets []joinTarget, d time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, you must join all required channels to send messages here.\n\n", Mention(u))
	fmt.Fprintf(&b, "You've been muted for %s. ", HumanDuration(d))
	if len(targets) == 1 {
		b.WriteString("Join the channel below, then tap the button to get unmuted.")
	} else {
		b.WriteString("Join the channels below, then tap the button to get unmuted.")
	}
	for _, t := range targets {
		if t.link == "" {
			fmt.Fprintf(&b, "\n• %s", html.EscapeString(t.title))
		}
	}
	return b.String()
}

// promptKeyboard puts one join button per channel with a link, then the
// verify button.
func promptKeyboard(userID int64, targets []joinTarget) platform.Keyboard {
	var kb platform.Keyboard
	for _, t := range targets {
		if t.link == "" {
			continue
		}
		kb = append(kb, []platform.Button{{Text: "Join " + t.title, URL: t.link}})
	}
	kb = append(kb, []platform.Button{{Text: verifyButtonText, Data: VerifyData(userID)}})
	return kb
}

// joinTargets resolves titles and links for the channels a prompt lists.
func (e *Engine) joinTargets(ctx context.Context, refs []channel.Ref, ids map[string]int64) []joinTarget {
	targets := make([]joinTarget, 0, len(refs))
	for _, ref := range refs {
		chatID := ids[ref.Key()]
		targets = append(targets, joinTarget{
			ref:   ref,
			title: e.dir.Title(ctx, ref, chatID),
			link:  e.dir.JoinLink(ctx, ref, chatID),
		})
	}
	return targets
}

func confirmationText(u platform.User, degraded bool) string {
	if degraded {
		return fmt.Sprintf("%s, thanks for joining! You can send text messages again. "+
			"An administrator may need to restore your other permissions.", Mention(u))
	}
	return fmt.Sprintf("%s, thanks for joining! You can send messages again.", Mention(u))
}

// HumanDuration renders d as "5 minutes", "1 hour 30 minutes" or "45 seconds".
func HumanDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return plural(int(d/time.Second), "second")
	}

	var parts []string
	if h := int(d / time.Hour); h > 0 {
		parts = append(parts, plural(h, "hour"))
	}
	if m := int(d % time.Hour / time.Minute); m > 0 {
		parts = append(parts, plural(m, "minute"))
	}
	if s := int(d % time.Minute / time.Second); s > 0 && d < time.Hour {
		parts = append(parts, plural(s, "second"))
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
