package challenge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stepbuddy/stepvault/logging"
)

// SubmitVerification records a step-count attestation for one day of a
// challenge. A day is marked successful the first time a submission meets
// the step goal; once marked, further submissions for that day are no-ops,
// so retried or duplicated submissions can never double-count. A
// submission below the goal leaves the day unmarked and may be retried.
func (m *Manager) SubmitVerification(ctx context.Context, id uint64, wallet string, day int, stepCount uint32) error {
	// Held as a reader for the whole submission, so a write can never land
	// after ProcessRewards has fixed the successful count.
	unlockChallenge := m.challengeMu.rlock(challengeLockKey(id))
	defer unlockChallenge()

	c, err := m.getChallenge(ctx, id)
	if err != nil {
		return err
	}

	// The day bounds are checked first, regardless of the step count or
	// the challenge state.
	if day < 0 || day >= int(c.DurationDays) {
		return fmt.Errorf("%w: day %d of %d", ErrInvalidVerificationDay, day, c.DurationDays)
	}
	if c.IsCompleted || !c.IsActive {
		return fmt.Errorf("%w: %d", ErrChallengeCompleted, id)
	}

	unlock := m.participantMu.lock(participantLockKey(id, wallet))
	defer unlock()

	p, err := m.GetParticipant(ctx, id, wallet)
	if err != nil {
		return err
	}

	logger := logging.FromContext(ctx).With(
		zap.Uint64("challenge", id),
		zap.String("wallet", wallet),
		zap.Int("day", day),
		zap.Uint32("steps", stepCount),
	)

	switch {
	case p.DailyCompletions[day]:
		// Already verified; idempotent regardless of the new count.
		verificationsMetric.WithLabelValues(verificationDuplicate).Inc()
		logger.Debug("day already verified")
		return nil
	case stepCount < c.StepGoal:
		verificationsMetric.WithLabelValues(verificationBelowGoal).Inc()
		logger.Debug("step goal not met", zap.Uint32("goal", c.StepGoal))
		return nil
	}

	p.DailyCompletions[day] = true
	p.TotalSuccessfulDays++
	if err := m.db.SaveParticipant(ctx, p); err != nil {
		return err
	}

	verificationsMetric.WithLabelValues(verificationAccepted).Inc()
	logger.Info("day verified", zap.Uint32("successful_days", p.TotalSuccessfulDays))
	return nil
}
