package supervisor

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// restartHistory is a sliding window of restart times.
type restartHistory struct {
	restarts []time.Time
}

// add records a restart at the current time and returns the number of restarts within the
// window, including this one.
func (h *restartHistory) add(clock clockwork.Clock, window time.Duration) int {
	now := clock.Now()
	cutoff := now.Add(-window)
	kept := h.restarts[:0]
	for _, t := range h.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	h.restarts = append(kept, now)
	return len(h.restarts)
}
