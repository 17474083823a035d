package broadcast

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Report holds the running and final counts of a job.
type Report struct {
	JobID  string
	Target Target

	Total  int
	Sent   int
	Failed int

	// FailedIDs lists every failed recipient in delivery order.
	FailedIDs []int64

	Pinned    int
	PinFailed int

	Cancelled bool
	Duration  time.Duration

	displayLimit int
}

func (r *Report) fail(rcpt Recipient) {
	r.Failed++
	r.FailedIDs = append(r.FailedIDs, rcpt.ID)
}

// Done reports whether every recipient has been processed.
func (r Report) Done() bool {
	return r.Sent+r.Failed == r.Total
}

// Progress renders a one-line running status.
func (r Report) Progress() string {
	return fmt.Sprintf("📣 Broadcasting… %d/%d (sent %d, failed %d)", r.Sent+r.Failed, r.Total, r.Sent, r.Failed)
}

// Summary renders the final report. At most the display limit of failed ids
// are listed; the rest are counted.
func (r Report) Summary() string {
	var b strings.Builder
	if r.Cancelled {
		b.WriteString("⚠️ Broadcast interrupted\n")
	} else {
		b.WriteString("✅ Broadcast finished\n")
	}
	fmt.Fprintf(&b, "Recipients: %d\nSent: %d\nFailed: %d", r.Total, r.Sent, r.Failed)
	if r.Pinned > 0 || r.PinFailed > 0 {
		fmt.Fprintf(&b, "\nPinned: %d (failed %d)", r.Pinned, r.PinFailed)
	}

	if len(r.FailedIDs) > 0 {
		limit := r.displayLimit
		if limit <= 0 {
			limit = 15
		}
		shown := r.FailedIDs
		if len(shown) > limit {
			shown = shown[:limit]
		}
		ids := make([]string, len(shown))
		for i, id := range shown {
			ids[i] = strconv.FormatInt(id, 10)
		}
		fmt.Fprintf(&b, "\nFailed ids: %s", strings.Join(ids, ", "))
		if rest := len(r.FailedIDs) - len(shown); rest > 0 {
			fmt.Fprintf(&b, " and %d more", rest)
		}
	}
	return b.String()
}
