package dispatch

import (
	"github.com/outflowhq/outflow/internal/config"
)

// Plan describes how one dispatch run is spread over time.
type Plan struct {
	// BatchSize is the number of emails this run will schedule. It never
	// exceeds the campaign's daily limit; the remainder is picked up by a
	// later run.
	BatchSize int
	// WindowHours is the target span the batch is spread across.
	WindowHours float64
	// IntervalMinutes is the spacing between consecutive sends.
	IntervalMinutes float64
}

// ComputePlan derives the pacing plan for a dispatch run.
//
//	batch    = min(remaining, dailyLimit)
//	window   = clamp(batch / emailsPerHour, minWindow, maxWindow)
//	interval = max(1, window*60 / batch), floored by the campaign's
//	           delay-between-emails hint.
//
// A zero batch yields a zero plan; the caller completes the campaign.
func ComputePlan(remaining, dailyLimit int, minDelayMinutes int, cfg config.PacingConfig) Plan {
	batch := remaining
	if dailyLimit > 0 && batch > dailyLimit {
		batch = dailyLimit
	}
	if batch <= 0 {
		return Plan{}
	}

	window := float64(batch) / cfg.EmailsPerHour
	if window < cfg.MinWindowHours {
		window = cfg.MinWindowHours
	}
	if window > cfg.MaxWindowHours {
		window = cfg.MaxWindowHours
	}

	interval := window * 60 / float64(batch)
	if interval < 1 {
		interval = 1
	}
	if min := float64(minDelayMinutes); interval < min {
		interval = min
	}

	return Plan{
		BatchSize:       batch,
		WindowHours:     window,
		IntervalMinutes: interval,
	}
}
