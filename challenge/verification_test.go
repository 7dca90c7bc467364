package challenge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/stepbuddy/stepvault/challenge"
)

func TestSubmitVerification(t *testing.T) {
	t.Parallel()
	t.Run("marks a day successful when the goal is met", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()
		c := env.createDefault(t, 7)
		env.join(t, 7, "alice", c.EntryAmount)

		require.NoError(t, env.mgr.SubmitVerification(ctx, 7, "alice", 1, c.StepGoal+500))

		p, err := env.mgr.GetParticipant(ctx, 7, "alice")
		require.NoError(t, err)
		require.Equal(t, []bool{false, true, false}, p.DailyCompletions)
		require.Equal(t, uint32(1), p.TotalSuccessfulDays)
	})
	t.Run("exactly meeting the goal counts", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()
		c := env.createDefault(t, 7)
		env.join(t, 7, "alice", c.EntryAmount)

		require.NoError(t, env.mgr.SubmitVerification(ctx, 7, "alice", 0, c.StepGoal))

		p, err := env.mgr.GetParticipant(ctx, 7, "alice")
		require.NoError(t, err)
		require.Equal(t, uint32(1), p.TotalSuccessfulDays)
	})
	t.Run("duplicate submissions never double count", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()
		c := env.createDefault(t, 7)
		env.join(t, 7, "alice", c.EntryAmount)

		require.NoError(t, env.mgr.SubmitVerification(ctx, 7, "alice", 0, c.StepGoal+1))
		// Repeats, both above and below the goal, are no-ops.
		require.NoError(t, env.mgr.SubmitVerification(ctx, 7, "alice", 0, c.StepGoal+9000))
		require.NoError(t, env.mgr.SubmitVerification(ctx, 7, "alice", 0, 0))

		p, err := env.mgr.GetParticipant(ctx, 7, "alice")
		require.NoError(t, err)
		require.Equal(t, uint32(1), p.TotalSuccessfulDays)
		require.True(t, p.DailyCompletions[0])
	})
	t.Run("a missed day may be retried until the goal is met", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()
		c := env.createDefault(t, 7)
		env.join(t, 7, "alice", c.EntryAmount)

		require.NoError(t, env.mgr.SubmitVerification(ctx, 7, "alice", 2, c.StepGoal-1))
		p, err := env.mgr.GetParticipant(ctx, 7, "alice")
		require.NoError(t, err)
		require.Zero(t, p.TotalSuccessfulDays)
		require.False(t, p.DailyCompletions[2])

		require.NoError(t, env.mgr.SubmitVerification(ctx, 7, "alice", 2, c.StepGoal))
		p, err = env.mgr.GetParticipant(ctx, 7, "alice")
		require.NoError(t, err)
		require.Equal(t, uint32(1), p.TotalSuccessfulDays)
	})
	t.Run("rejects out-of-range days regardless of the step count", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()
		c := env.createDefault(t, 7)
		env.join(t, 7, "alice", c.EntryAmount)

		err := env.mgr.SubmitVerification(ctx, 7, "alice", int(c.DurationDays), c.StepGoal+500)
		require.ErrorIs(t, err, challenge.ErrInvalidVerificationDay)
		err = env.mgr.SubmitVerification(ctx, 7, "alice", -1, c.StepGoal+500)
		require.ErrorIs(t, err, challenge.ErrInvalidVerificationDay)
		err = env.mgr.SubmitVerification(ctx, 7, "alice", int(c.DurationDays), 0)
		require.ErrorIs(t, err, challenge.ErrInvalidVerificationDay)
	})
	t.Run("unknown participant", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		c := env.createDefault(t, 7)

		err := env.mgr.SubmitVerification(context.Background(), 7, "stranger", 0, c.StepGoal)
		require.ErrorIs(t, err, challenge.ErrParticipantNotFound)
	})
	t.Run("completed challenge rejects submissions", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()
		c := env.createDefault(t, 7)
		env.join(t, 7, "alice", c.EntryAmount)
		env.endChallenge(t, c)
		_, err := env.mgr.ProcessRewards(ctx, 7, "authority")
		require.NoError(t, err)

		err = env.mgr.SubmitVerification(ctx, 7, "alice", 0, c.StepGoal)
		require.ErrorIs(t, err, challenge.ErrChallengeCompleted)

		// The day bounds check still takes precedence over state.
		err = env.mgr.SubmitVerification(ctx, 7, "alice", int(c.DurationDays), c.StepGoal)
		require.ErrorIs(t, err, challenge.ErrInvalidVerificationDay)
	})
}

// A submission racing reward processing must either land before the
// successful count is fixed or be rejected; it must never slip in a day
// that the fixed count does not reflect. The stored records stay
// consistent and withdrawal settles cleanly in both interleavings.
func TestVerificationConcurrentWithRewards(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		id := uint64(i + 1)
		c, err := env.mgr.Create(ctx, id, "authority", 10_000, 3, 100, 10)
		require.NoError(t, err)
		env.join(t, id, "alice", c.EntryAmount)
		require.NoError(t, env.mgr.SubmitVerification(ctx, id, "alice", 0, c.StepGoal))
		require.NoError(t, env.mgr.SubmitVerification(ctx, id, "alice", 1, c.StepGoal))
		env.endChallenge(t, c)

		var eg errgroup.Group
		eg.Go(func() error {
			err := env.mgr.SubmitVerification(ctx, id, "alice", 2, c.StepGoal)
			if err != nil && !errors.Is(err, challenge.ErrChallengeCompleted) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			_, err := env.mgr.ProcessRewards(ctx, id, "authority")
			return err
		})
		require.NoError(t, eg.Wait())

		got, err := env.mgr.Get(ctx, id)
		require.NoError(t, err)
		p, err := env.mgr.GetParticipant(ctx, id, "alice")
		require.NoError(t, err)

		amount, err := env.mgr.Withdraw(ctx, id, "alice")
		require.NoError(t, err)
		if p.Successful(got) {
			require.Equal(t, uint32(1), got.SuccessfulParticipants)
			require.Equal(t, c.EntryAmount, amount)
			require.Zero(t, env.balance(t, challenge.VaultAccount(id)))
		} else {
			require.Zero(t, got.SuccessfulParticipants)
			require.Zero(t, amount)
			require.Equal(t, c.EntryAmount, env.balance(t, challenge.VaultAccount(id)))
		}
	}
}
