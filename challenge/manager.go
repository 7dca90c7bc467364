package challenge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/stepbuddy/stepvault/ledger"
	"github.com/stepbuddy/stepvault/logging"
	"github.com/stepbuddy/stepvault/shared"
)

// Manager orchestrates the challenge lifecycle. Every operation is a
// bounded single-shot transaction: it either applies all of its reads and
// writes or none of them, and errors are terminal for the call.
type Manager struct {
	cfg   Config
	clock clockwork.Clock

	db    *database
	funds *ledger.Ledger

	// challengeMu serializes admission and reward processing per
	// challenge id; verification holds it shared so submissions never
	// overlap reward processing. participantMu serializes verification
	// and withdrawal per (challenge, wallet). Operations on different
	// entities proceed in parallel.
	challengeMu   *keyedMutex
	participantMu *keyedMutex
}

type newManagerOptionFunc func(*newManagerOptions)

type newManagerOptions struct {
	cfg   Config
	clock clockwork.Clock
}

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) newManagerOptionFunc {
	return func(opts *newManagerOptions) {
		opts.cfg = cfg
	}
}

// WithClock injects the clock used for challenge end-time checks.
func WithClock(clock clockwork.Clock) newManagerOptionFunc {
	return func(opts *newManagerOptions) {
		opts.clock = clock
	}
}

// New creates a Manager storing its records under dbdir and moving funds
// through funds.
func New(ctx context.Context, dbdir string, funds *ledger.Ledger, opts ...newManagerOptionFunc) (*Manager, error) {
	options := newManagerOptions{
		cfg:   DefaultConfig(),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	db, err := newDatabase(filepath.Join(dbdir, "challenges"), options.cfg.ChallengeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("opening challenges database: %w", err)
	}

	return &Manager{
		cfg:           options.cfg,
		clock:         options.clock,
		db:            db,
		funds:         funds,
		challengeMu:   newKeyedMutex(),
		participantMu: newKeyedMutex(),
	}, nil
}

func (m *Manager) Close() error {
	return m.db.Close()
}

func challengeLockKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func participantLockKey(id uint64, wallet string) string {
	return strconv.FormatUint(id, 10) + "/" + wallet
}

// Create registers a new challenge with an empty vault. The id is supplied
// by the caller and must be unused; all numeric parameters must be
// positive.
func (m *Manager) Create(
	ctx context.Context,
	id uint64,
	authority string,
	stepGoal uint32,
	durationDays uint32,
	entryAmount uint64,
	maxParticipants uint32,
) (*Challenge, error) {
	switch {
	case authority == "":
		return nil, fmt.Errorf("%w: empty authority", ErrInvalidParameters)
	case stepGoal == 0:
		return nil, fmt.Errorf("%w: step goal must be positive", ErrInvalidParameters)
	case durationDays == 0:
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidParameters)
	case durationDays > m.cfg.MaxDurationDays:
		return nil, fmt.Errorf(
			"%w: duration %d exceeds the maximum of %d days",
			ErrInvalidParameters, durationDays, m.cfg.MaxDurationDays,
		)
	case entryAmount == 0:
		return nil, fmt.Errorf("%w: entry amount must be positive", ErrInvalidParameters)
	case maxParticipants == 0:
		return nil, fmt.Errorf("%w: max participants must be positive", ErrInvalidParameters)
	}

	unlock := m.challengeMu.lock(challengeLockKey(id))
	defer unlock()

	switch _, err := m.db.GetChallenge(ctx, id); {
	case err == nil:
		return nil, fmt.Errorf("%w: %d", ErrChallengeExists, id)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	now := m.clock.Now()
	c := &Challenge{
		ID:              id,
		Authority:       authority,
		StepGoal:        stepGoal,
		DurationDays:    durationDays,
		EntryAmount:     entryAmount,
		MaxParticipants: maxParticipants,
		StartTime:       now.Unix(),
		EndTime:         now.Add(time.Duration(durationDays) * 24 * time.Hour).Unix(),
		IsActive:        true,
	}
	if err := m.db.SaveChallenge(ctx, c); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("created challenge",
		zap.Uint64("id", id),
		zap.String("authority", authority),
		zap.Uint32("step_goal", stepGoal),
		zap.Uint32("duration_days", durationDays),
		zap.Uint64("entry_amount", entryAmount),
		zap.Uint32("max_participants", maxParticipants),
	)
	return c, nil
}

// Join admits a wallet into a challenge, escrowing exactly the entry
// amount into the challenge vault. The capacity check and the counter
// increment happen under the per-challenge lock, so two concurrent joins
// can never both take the last slot.
func (m *Manager) Join(ctx context.Context, id uint64, wallet string) (*Participant, error) {
	if wallet == "" {
		return nil, fmt.Errorf("%w: empty wallet", ErrInvalidParameters)
	}

	unlock := m.challengeMu.lock(challengeLockKey(id))
	defer unlock()

	c, err := m.getChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case !c.IsActive:
		return nil, fmt.Errorf("%w: %d", ErrChallengeNotActive, id)
	case c.ParticipantCount >= c.MaxParticipants:
		return nil, fmt.Errorf("%w: %d/%d participants", ErrChallengeFull, c.ParticipantCount, c.MaxParticipants)
	case !m.clock.Now().Before(time.Unix(c.EndTime, 0)):
		return nil, fmt.Errorf("%w: %d", ErrChallengeEnded, id)
	}

	switch _, err := m.db.GetParticipant(ctx, id, wallet); {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyJoined, wallet)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	totalPool, err := shared.Add(c.TotalPool, c.EntryAmount)
	if err != nil {
		return nil, fmt.Errorf("growing pool of challenge %d: %w", id, err)
	}

	if err := m.funds.Transfer(ctx, wallet, VaultAccount(id), c.EntryAmount); err != nil {
		return nil, fmt.Errorf("escrowing stake of %s: %w", wallet, err)
	}

	p := &Participant{
		Wallet:           wallet,
		ChallengeID:      id,
		DailyCompletions: make([]bool, c.DurationDays),
	}
	c.ParticipantCount++
	c.TotalPool = totalPool

	if err := m.db.SaveJoin(ctx, c, p); err != nil {
		// The stake is already in the vault; return it rather than
		// leave the wallet charged for an admission that was never
		// recorded.
		if refundErr := m.funds.Transfer(ctx, VaultAccount(id), wallet, c.EntryAmount); refundErr != nil {
			logging.FromContext(ctx).Error("failed to refund unrecorded stake",
				zap.String("wallet", wallet), zap.Uint64("challenge", id), zap.Error(refundErr))
		}
		return nil, err
	}

	participantsMetric.WithLabelValues(strconv.FormatUint(id, 10)).Inc()
	logging.FromContext(ctx).Info("wallet joined challenge",
		zap.Uint64("challenge", id),
		zap.String("wallet", wallet),
		zap.Uint32("participants", c.ParticipantCount),
		zap.Uint64("total_pool", c.TotalPool),
	)
	return p, nil
}

// Get returns the challenge record for id.
func (m *Manager) Get(ctx context.Context, id uint64) (*Challenge, error) {
	return m.getChallenge(ctx, id)
}

// GetParticipant returns the participant record for (id, wallet).
func (m *Manager) GetParticipant(ctx context.Context, id uint64, wallet string) (*Participant, error) {
	p, err := m.db.GetParticipant(ctx, id, wallet)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s in challenge %d", ErrParticipantNotFound, wallet, id)
	}
	return p, err
}

func (m *Manager) getChallenge(ctx context.Context, id uint64) (*Challenge, error) {
	c, err := m.db.GetChallenge(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrChallengeNotFound, id)
	}
	return c, err
}
