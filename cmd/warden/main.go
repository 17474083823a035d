// Warden keeps Telegram groups for channel members only.
//
// Members who post in a protected group without having joined every
// required channel are muted and shown where to join. A button lets them
// lift the mute themselves once they have.
//
// Usage:
//
//	# Start the bot
//	warden run --config config.yaml
//
//	# Check a configuration file
//	warden config validate --config config.yaml
//
//	# Inspect or edit group requirements offline
//	warden policy list
//	warden policy set -100123456 @news @blog --mute 10m
//
//	# Show recent enforcement events from the sqlite audit trail
//	warden audit recent --group -100123456
package main

func main() {
	Execute()
}
