package batches

import (
	"time"

	"github.com/mamadbah2/fournil/internal/domain/models"
)

const (
	// MaxActiveProgress caps progress while a batch is still running.
	MaxActiveProgress = 95.0
	// CompletedProgress is the fixed progress of a completed batch.
	CompletedProgress = 100.0
)

// ComputeProgress derives progress from absolute timestamps, clamped to [0, 95].
func ComputeProgress(start time.Time, estimatedMinutes int, now time.Time) float64 {
	if estimatedMinutes <= 0 {
		return MaxActiveProgress
	}
	total := time.Duration(estimatedMinutes) * time.Minute
	p := float64(now.Sub(start)) / float64(total) * 100
	switch {
	case p < 0:
		return 0
	case p > MaxActiveProgress:
		return MaxActiveProgress
	}
	return p
}

// Progress reports the progress of b at now without mutating it.
func Progress(b models.Batch, now time.Time) float64 {
	switch b.Status {
	case models.BatchCompleted:
		return CompletedProgress
	case models.BatchActive:
		if b.StartTime == nil {
			return 0
		}
		return ComputeProgress(*b.StartTime, b.EstimatedDurationMinutes, now)
	default:
		return b.Progress
	}
}

// Apply performs an explicit action on b at now. On error b is returned unchanged.
// actualQuantity is only read by complete; nil means the target quantity.
func Apply(b models.Batch, action models.BatchAction, now time.Time, actualQuantity *int) (models.Batch, error) {
	to, err := models.NextStatus(b.Status, action)
	if err != nil {
		return b, err
	}

	switch action {
	case models.ActionStart:
		if b.Status == models.BatchPlanning || b.StartTime == nil {
			start := now
			b.StartTime = &start
			b.Progress = 0
		} else {
			b.Progress = ComputeProgress(*b.StartTime, b.EstimatedDurationMinutes, now)
		}
	case models.ActionPause:
		b.Progress = Progress(b, now)
	case models.ActionComplete:
		end := now
		b.EndTime = &end
		b.ActualQuantity = b.TargetQuantity
		if actualQuantity != nil {
			b.ActualQuantity = *actualQuantity
		}
		if b.StartTime != nil {
			b.ActualDurationMinutes = end.Sub(*b.StartTime).Minutes()
		}
		b.Progress = CompletedProgress
	case models.ActionCancel:
		// Terminal, with no inventory or monetary side effect.
	}

	b.Status = to
	b.UpdatedAt = now
	return b, nil
}

// Advance recomputes the progress of an active batch and applies the automatic
// active -> quality_check transition once progress reaches the cap. It reports
// false for batches that are not active.
func Advance(b models.Batch, now time.Time) (models.Batch, bool) {
	if b.Status != models.BatchActive {
		return b, false
	}
	b.Progress = Progress(b, now)
	if b.Progress >= MaxActiveProgress {
		b.Status = models.BatchQualityCheck
	}
	b.UpdatedAt = now
	return b, true
}
