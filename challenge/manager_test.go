package challenge_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stepbuddy/stepvault/challenge"
	"github.com/stepbuddy/stepvault/ledger"
)

func TestCreateChallenge(t *testing.T) {
	t.Parallel()
	t.Run("initializes an open challenge with an empty vault", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()

		c, err := env.mgr.Create(ctx, 7, "authority", 10_000, 3, 100, 10)
		require.NoError(t, err)

		require.Equal(t, uint64(7), c.ID)
		require.Equal(t, "authority", c.Authority)
		require.Equal(t, uint32(10_000), c.StepGoal)
		require.Equal(t, uint32(3), c.DurationDays)
		require.Equal(t, uint64(100), c.EntryAmount)
		require.Equal(t, uint32(10), c.MaxParticipants)
		require.Zero(t, c.ParticipantCount)
		require.Zero(t, c.TotalPool)
		require.True(t, c.IsActive)
		require.False(t, c.IsCompleted)
		require.Zero(t, c.SuccessfulParticipants)
		require.Equal(t, env.clock.Now().Unix(), c.StartTime)
		require.Equal(t, env.clock.Now().Add(3*24*time.Hour).Unix(), c.EndTime)
		require.Zero(t, env.balance(t, challenge.VaultAccount(7)))

		got, err := env.mgr.Get(ctx, 7)
		require.NoError(t, err)
		require.Equal(t, c, got)
	})
	t.Run("rejects duplicate ids", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.createDefault(t, 7)

		_, err := env.mgr.Create(context.Background(), 7, "authority", 10_000, 3, 100, 10)
		require.ErrorIs(t, err, challenge.ErrChallengeExists)
	})
	t.Run("rejects non-positive parameters", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()

		_, err := env.mgr.Create(ctx, 1, "", 10_000, 3, 100, 10)
		require.ErrorIs(t, err, challenge.ErrInvalidParameters)
		_, err = env.mgr.Create(ctx, 1, "authority", 0, 3, 100, 10)
		require.ErrorIs(t, err, challenge.ErrInvalidParameters)
		_, err = env.mgr.Create(ctx, 1, "authority", 10_000, 0, 100, 10)
		require.ErrorIs(t, err, challenge.ErrInvalidParameters)
		_, err = env.mgr.Create(ctx, 1, "authority", 10_000, 3, 0, 10)
		require.ErrorIs(t, err, challenge.ErrInvalidParameters)
		_, err = env.mgr.Create(ctx, 1, "authority", 10_000, 3, 100, 0)
		require.ErrorIs(t, err, challenge.ErrInvalidParameters)
	})
	t.Run("rejects durations over the cap", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, err := env.mgr.Create(context.Background(), 1, "authority", 10_000, 31, 100, 10)
		require.ErrorIs(t, err, challenge.ErrInvalidParameters)
	})
}

func TestJoinChallenge(t *testing.T) {
	t.Parallel()
	t.Run("escrows the stake and admits the wallet", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()
		c := env.createDefault(t, 7)
		env.fundWallet(t, "alice", 250)

		p, err := env.mgr.Join(ctx, 7, "alice")
		require.NoError(t, err)

		require.Equal(t, "alice", p.Wallet)
		require.Equal(t, uint64(7), p.ChallengeID)
		require.Len(t, p.DailyCompletions, int(c.DurationDays))
		require.Zero(t, p.TotalSuccessfulDays)
		require.False(t, p.HasWithdrawn)

		got, err := env.mgr.Get(ctx, 7)
		require.NoError(t, err)
		require.Equal(t, uint32(1), got.ParticipantCount)
		require.Equal(t, uint64(100), got.TotalPool)
		require.Equal(t, uint64(150), env.balance(t, "alice"))
		require.Equal(t, uint64(100), env.balance(t, challenge.VaultAccount(7)))
	})
	t.Run("unknown challenge", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, err := env.mgr.Join(context.Background(), 404, "alice")
		require.ErrorIs(t, err, challenge.ErrChallengeNotFound)
	})
	t.Run("unfunded wallet", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.createDefault(t, 7)

		_, err := env.mgr.Join(context.Background(), 7, "pauper")
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		got, err := env.mgr.Get(context.Background(), 7)
		require.NoError(t, err)
		require.Zero(t, got.ParticipantCount)
		require.Zero(t, got.TotalPool)
	})
	t.Run("no re-joining", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.createDefault(t, 7)
		env.fundWallet(t, "alice", 1000)

		_, err := env.mgr.Join(context.Background(), 7, "alice")
		require.NoError(t, err)
		_, err = env.mgr.Join(context.Background(), 7, "alice")
		require.ErrorIs(t, err, challenge.ErrAlreadyJoined)

		// The second attempt charged nothing.
		require.Equal(t, uint64(900), env.balance(t, "alice"))
	})
	t.Run("full challenge", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		_, err := env.mgr.Create(context.Background(), 7, "authority", 10_000, 3, 100, 2)
		require.NoError(t, err)
		env.join(t, 7, "alice", 100)
		env.join(t, 7, "bob", 100)

		env.fundWallet(t, "carol", 100)
		_, err = env.mgr.Join(context.Background(), 7, "carol")
		require.ErrorIs(t, err, challenge.ErrChallengeFull)
		require.Equal(t, uint64(100), env.balance(t, "carol"))
	})
	t.Run("ended challenge", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		c := env.createDefault(t, 7)
		env.endChallenge(t, c)

		env.fundWallet(t, "alice", 100)
		_, err := env.mgr.Join(context.Background(), 7, "alice")
		require.ErrorIs(t, err, challenge.ErrChallengeEnded)
	})
	t.Run("completed challenge", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		c := env.createDefault(t, 7)
		env.endChallenge(t, c)
		_, err := env.mgr.ProcessRewards(context.Background(), 7, "authority")
		require.NoError(t, err)

		env.fundWallet(t, "alice", 100)
		_, err = env.mgr.Join(context.Background(), 7, "alice")
		require.ErrorIs(t, err, challenge.ErrChallengeNotActive)
	})
}

// Concurrent joins race for the last slots; only maxParticipants may win.
func TestJoinChallengeConcurrently(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	const maxParticipants = 5
	const contenders = 20

	_, err := env.mgr.Create(ctx, 7, "authority", 10_000, 3, 100, maxParticipants)
	require.NoError(t, err)

	wallets := make([]string, contenders)
	for i := range wallets {
		wallets[i] = fmt.Sprintf("wallet-%02d", i)
		env.fundWallet(t, wallets[i], 100)
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := range wallets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.mgr.Join(ctx, 7, wallets[i])
		}(i)
	}
	wg.Wait()

	var admitted int
	for _, err := range errs {
		if err == nil {
			admitted++
		} else {
			require.ErrorIs(t, err, challenge.ErrChallengeFull)
		}
	}
	require.Equal(t, maxParticipants, admitted)

	got, err := env.mgr.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, uint32(maxParticipants), got.ParticipantCount)
	require.Equal(t, uint64(maxParticipants*100), got.TotalPool)
	require.Equal(t, uint64(maxParticipants*100), env.balance(t, challenge.VaultAccount(7)))
}
