package challenge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stepbuddy/stepvault/logging"
)

// Withdraw settles one participant's claim against a completed challenge
// and returns the amount paid. A successful participant receives the
// payout from the vault; an unsuccessful one receives nothing, their stake
// having already been counted into the successful participants' payouts.
// Either way the participant is marked withdrawn exactly once and a second
// claim fails with ErrAlreadyWithdrawn.
//
// If no participant met the goal the pool stays locked in the vault
// permanently: claims succeed, pay zero and mark the participant
// withdrawn.
func (m *Manager) Withdraw(ctx context.Context, id uint64, wallet string) (uint64, error) {
	c, err := m.getChallenge(ctx, id)
	if err != nil {
		return 0, err
	}
	if !c.IsCompleted {
		return 0, fmt.Errorf("%w: %d", ErrChallengeNotCompleted, id)
	}

	unlock := m.participantMu.lock(participantLockKey(id, wallet))
	defer unlock()

	p, err := m.GetParticipant(ctx, id, wallet)
	if err != nil {
		return 0, err
	}
	if p.HasWithdrawn {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyWithdrawn, wallet)
	}

	var amount uint64
	if p.Successful(c) {
		amount, err = payout(c)
		if err != nil {
			return 0, err
		}
		if err := m.funds.Transfer(ctx, VaultAccount(id), wallet, amount); err != nil {
			return 0, fmt.Errorf("paying out reward to %s: %w", wallet, err)
		}
	}

	p.HasWithdrawn = true
	if err := m.db.SaveParticipant(ctx, p); err != nil {
		// The payout already left the vault; pull it back rather than
		// leave a paid participant recorded as not withdrawn.
		if amount > 0 {
			if refundErr := m.funds.Transfer(ctx, wallet, VaultAccount(id), amount); refundErr != nil {
				logging.FromContext(ctx).Error("failed to recover unrecorded payout",
					zap.String("wallet", wallet), zap.Uint64("challenge", id), zap.Error(refundErr))
			}
		}
		return 0, err
	}

	if amount > 0 {
		payoutsMetric.Add(float64(amount))
	}
	logging.FromContext(ctx).Info("participant withdrew",
		zap.Uint64("challenge", id),
		zap.String("wallet", wallet),
		zap.Bool("successful", p.Successful(c)),
		zap.Uint64("amount", amount),
	)
	return amount, nil
}
