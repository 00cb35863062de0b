package moderation

import (
	"time"

	"github.com/gradewise/moderation-server/internal/model"
)

// SanctionPolicy maps a resolution outcome onto the reported user's record.
type SanctionPolicy struct {
	// DefaultSuspension is used when a suspend outcome carries no duration.
	DefaultSuspension time.Duration
}

// Apply - mutate the record according to the outcome.
//   - no_action: record untouched
//   - warn: violation counted, standing unchanged
//   - suspend: violation counted, suspended for the given duration
//   - ban: violation counted, banned permanently with the notes as reason
func (p SanctionPolicy) Apply(record *model.ModerationRecord, outcome model.ReportOutcome, duration time.Duration, notes string, now time.Time) {
	if outcome.AtFault() {
		record.ViolationCount++
	}

	switch outcome {
	case model.OutcomeSuspend:
		if duration <= 0 {
			duration = p.DefaultSuspension
		}

		record.Suspend(now, duration)
	case model.OutcomeBan:
		record.Ban(now, notes)
	case model.OutcomeNoAction, model.OutcomeWarn:
		// Standing unchanged.
	}
}
