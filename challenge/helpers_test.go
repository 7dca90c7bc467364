package challenge_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/stepbuddy/stepvault/challenge"
	"github.com/stepbuddy/stepvault/ledger"
)

type testEnv struct {
	mgr   *challenge.Manager
	funds *ledger.Ledger
	clock clockwork.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	funds, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, funds.Close()) })

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	mgr, err := challenge.New(context.Background(), t.TempDir(), funds, challenge.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, mgr.Close()) })

	return &testEnv{mgr: mgr, funds: funds, clock: clock}
}

func (e *testEnv) fundWallet(t *testing.T, wallet string, amount uint64) {
	t.Helper()
	require.NoError(t, e.funds.Deposit(context.Background(), wallet, amount))
}

func (e *testEnv) balance(t *testing.T, account string) uint64 {
	t.Helper()
	balance, err := e.funds.Balance(context.Background(), account)
	require.NoError(t, err)
	return balance
}

// createDefault creates a 3-day challenge with a 10k step goal,
// an entry amount of 100 and room for 10 participants.
func (e *testEnv) createDefault(t *testing.T, id uint64) *challenge.Challenge {
	t.Helper()
	c, err := e.mgr.Create(context.Background(), id, "authority", 10_000, 3, 100, 10)
	require.NoError(t, err)
	return c
}

// join funds the wallet with exactly the entry amount and joins it.
func (e *testEnv) join(t *testing.T, id uint64, wallet string, entry uint64) {
	t.Helper()
	e.fundWallet(t, wallet, entry)
	_, err := e.mgr.Join(context.Background(), id, wallet)
	require.NoError(t, err)
}

// completeAllDays submits a qualifying verification for every day.
func (e *testEnv) completeAllDays(t *testing.T, c *challenge.Challenge, wallet string) {
	t.Helper()
	for day := 0; day < int(c.DurationDays); day++ {
		require.NoError(t, e.mgr.SubmitVerification(context.Background(), c.ID, wallet, day, c.StepGoal))
	}
}

// endChallenge advances the clock past the challenge end time.
func (e *testEnv) endChallenge(t *testing.T, c *challenge.Challenge) {
	t.Helper()
	end := time.Unix(c.EndTime, 0)
	e.clock.Advance(end.Sub(e.clock.Now()) + time.Second)
}
