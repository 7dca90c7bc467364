package challenge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stepbuddy/stepvault/logging"
	"github.com/stepbuddy/stepvault/shared"
)

// ProcessRewards closes a challenge after its end time and fixes the set
// of successful participants. It may be called only by the challenge
// authority and succeeds exactly once; a repeated call fails with
// ErrAlreadyCompleted. The payout itself is computed lazily at withdrawal
// time from the counts recorded here.
func (m *Manager) ProcessRewards(ctx context.Context, id uint64, caller string) (successful uint32, err error) {
	unlock := m.challengeMu.lock(challengeLockKey(id))
	defer unlock()

	c, err := m.getChallenge(ctx, id)
	if err != nil {
		return 0, err
	}
	switch {
	case caller != c.Authority:
		return 0, fmt.Errorf("%w: caller %s is not the challenge authority", ErrUnauthorized, caller)
	case c.IsCompleted:
		return 0, fmt.Errorf("%w: %d", ErrAlreadyCompleted, id)
	case m.clock.Now().Before(time.Unix(c.EndTime, 0)):
		return 0, fmt.Errorf("%w: %d ends at %s", ErrChallengeNotEnded, id, time.Unix(c.EndTime, 0).UTC())
	}

	participants, err := m.db.Participants(ctx, id)
	if err != nil {
		return 0, err
	}
	// An aggregation over a partial set would corrupt the successful
	// count, so the enumeration must match the recorded admissions.
	if uint32(len(participants)) != c.ParticipantCount {
		return 0, fmt.Errorf(
			"incomplete participant enumeration for challenge %d: got %d records, admitted %d",
			id, len(participants), c.ParticipantCount,
		)
	}

	for _, p := range participants {
		if p.Successful(c) {
			successful++
		}
	}

	c.SuccessfulParticipants = successful
	c.IsCompleted = true
	c.IsActive = false
	if err := m.db.SaveChallenge(ctx, c); err != nil {
		return 0, err
	}

	completedMetric.Inc()
	logging.FromContext(ctx).Info("processed challenge rewards",
		zap.Uint64("challenge", id),
		zap.Uint32("participants", c.ParticipantCount),
		zap.Uint32("successful", successful),
		zap.Uint64("total_pool", c.TotalPool),
	)
	return successful, nil
}

// payout returns the amount owed to one successful participant:
// the original stake back plus an equal share of the stakes forfeited by
// unsuccessful participants. Integer division truncates; the remainder
// stays in the vault permanently.
func payout(c *Challenge) (uint64, error) {
	if c.SuccessfulParticipants == 0 {
		return 0, fmt.Errorf("challenge %d has no successful participants recorded", c.ID)
	}
	staked, err := shared.Mul(uint64(c.SuccessfulParticipants), c.EntryAmount)
	if err != nil {
		return 0, fmt.Errorf("computing staked total of challenge %d: %w", c.ID, err)
	}
	forfeited, err := shared.Sub(c.TotalPool, staked)
	if err != nil {
		return 0, fmt.Errorf("computing forfeited pool of challenge %d: %w", c.ID, err)
	}
	amount, err := shared.Add(c.EntryAmount, forfeited/uint64(c.SuccessfulParticipants))
	if err != nil {
		return 0, fmt.Errorf("computing payout of challenge %d: %w", c.ID, err)
	}
	return amount, nil
}
