package engine

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Progress is a snapshot of the run's counters, handed to the progress
// observer after every pulled record.
type Progress struct {
	Pulled  int
	Matched int
	Emitted int

	// Total is the source's estimated record count, -1 when unknown.
	Total int
}

// ProgressFunc observes scan progress. It runs on the scan goroutine and
// must return quickly.
type ProgressFunc func(p Progress)

// NewLogProgress returns an observer that logs the counters at most once
// per interval. A non-positive interval defaults to 2s.
func NewLogProgress(logger *slog.Logger, interval time.Duration) ProgressFunc {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	return func(p Progress) {
		if !limiter.Allow() {
			return
		}
		attrs := []any{
			"pulled", p.Pulled,
			"matched", p.Matched,
			"emitted", p.Emitted,
		}
		if p.Total >= 0 {
			attrs = append(attrs, "total", p.Total)
		}
		logger.Info("scan progress", attrs...)
	}
}
