package enforcement

import (
	"context"
	"errors"
	"time"

	"joinguard-hq/warden/pkg/platform"
)

// RestoreOutcome is the cumulative result of the restore strategies.
type RestoreOutcome int

const (
	// RestoreFull means the user got their normal permissions back.
	RestoreFull RestoreOutcome = iota + 1
	// RestoreDegraded means only the minimal send permission was restored.
	RestoreDegraded
	// RestoreFailed means every strategy failed.
	RestoreFailed
)

func (o RestoreOutcome) String() string {
	switch o {
	case RestoreFull:
		return "restored"
	case RestoreDegraded:
		return "degraded"
	case RestoreFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// restoreStrategy is one attempt at lifting a mute.
type restoreStrategy struct {
	name    string
	perms   platform.Permissions
	bounded bool
	outcome RestoreOutcome
}

// restoreStrategies run in order until one succeeds.
var restoreStrategies = []restoreStrategy{
	{name: "full", perms: platform.FullMember(), outcome: RestoreFull},
	{name: "full_bounded", perms: platform.FullMember(), bounded: true, outcome: RestoreFull},
	{name: "minimal", perms: platform.Minimal(), outcome: RestoreDegraded},
}

// RestoreResult reports what restore did.
type RestoreResult struct {
	Outcome RestoreOutcome

	// Strategy is the name of the strategy that succeeded, if any.
	Strategy string

	// Errs holds the error of every failed attempt, in order.
	Errs []error
}

// Err joins the attempt errors.
func (r RestoreResult) Err() error {
	return errors.Join(r.Errs...)
}

// restore lifts the restriction on userID. A user who has left the group has
// nothing to restore and counts as fully restored.
func (e *Engine) restore(ctx context.Context, groupID, userID int64) RestoreResult {
	var res RestoreResult
	for _, s := range restoreStrategies {
		var until time.Time
		if s.bounded {
			until = e.now().Add(e.config().RestoreGrace)
		}

		err := e.client.Restrict(ctx, groupID, userID, s.perms, until)
		if err == nil {
			res.Outcome = s.outcome
			res.Strategy = s.name
			break
		}
		if errors.Is(err, platform.ErrUserNotFound) {
			res.Outcome = RestoreFull
			res.Strategy = "gone"
			break
		}

		res.Errs = append(res.Errs, err)
		e.logger.Warn("restore strategy failed",
			"group_id", groupID,
			"user_id", userID,
			"strategy", s.name,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}
	if res.Outcome == 0 {
		res.Outcome = RestoreFailed
	}
	return res
}
