package mcpsrv

import (
	"sync"
	"time"

	"github.com/cuedeck/cue/internal/errs"
)

// rollingWindow is a per-method request counter over a sliding window:
// read_context 10/60s, read_doc 30/60s, list_tasks 20/60s, update_task
// 10/60s. Methods absent from the limit table are unthrottled.
type rollingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
}

func newRollingWindow(limit int, window time.Duration) *rollingWindow {
	return &rollingWindow{limit: limit, window: window, hits: make(map[string][]time.Time)}
}

// Allow records a hit for key at now, evicting entries outside the window,
// and returns a *errs.RateLimitError if the limit is exceeded.
func (r *rollingWindow) Allow(key string, method string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	hits := r.hits[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.limit {
		oldest := kept[0]
		retryAfter := int(oldest.Add(r.window).Sub(now).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		r.hits[key] = kept
		return &errs.RateLimitError{
			Method:            method,
			Limit:             r.limit,
			WindowSeconds:     int(r.window.Seconds()),
			CurrentCount:      len(kept),
			RetryAfterSeconds: retryAfter,
		}
	}

	r.hits[key] = append(kept, now)
	return nil
}

// limiterSet holds one rollingWindow per rate-limited method.
type limiterSet struct {
	readContext *rollingWindow
	readDoc     *rollingWindow
	listTasks   *rollingWindow
	updateTask  *rollingWindow
}

func newLimiterSet() *limiterSet {
	return &limiterSet{
		readContext: newRollingWindow(10, 60*time.Second),
		readDoc:     newRollingWindow(30, 60*time.Second),
		listTasks:   newRollingWindow(20, 60*time.Second),
		updateTask:  newRollingWindow(10, 60*time.Second),
	}
}
