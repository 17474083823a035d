// Package policy configures which channels a group requires its members to
// join.
//
// # Overview
//
// Service is the single write path for group policies. Both the /fsub chat
// command and the offline CLI go through it:
//
//	svc := policy.NewService(backend, client, dir, recorder)
//	p, err := svc.Configure(ctx, policy.Request{
//	    GroupID:  -1001234567890,
//	    Actor:    policy.Actor{ID: adminID},
//	    Channels: []string{"@news", "-1009876543210"},
//	})
//
// Configure checks that the actor administers the group, parses every
// channel reference, looks each channel up on the platform, confirms the bot
// can see its members, and stores the resolved platform ids alongside the
// references. A rejected request leaves the stored policy untouched and
// returns a *ValidationError or ErrNotAdmin whose message can be shown to
// the user as is.
//
// # Thread Safety
//
// Service is safe for concurrent use.
package policy
