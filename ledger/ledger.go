// Package ledger implements the funds ledger: named uint64 balances with
// atomic debit/credit between them. It is the leaf dependency of the
// challenge settlement core; challenge vaults and participant wallets are
// both plain ledger accounts.
package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"go.uber.org/zap"

	"github.com/stepbuddy/stepvault/logging"
	"github.com/stepbuddy/stepvault/shared"
)

var (
	// ErrInsufficientFunds is returned when a debit would drive the
	// source account below zero. No partial movement happens.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned for zero-amount movements and for
	// transfers between an account and itself.
	ErrInvalidAmount = errors.New("invalid transfer amount")
)

// Ledger keeps named balances in a LevelDB database. Every movement is
// applied in a single LevelDB transaction: both sides commit or neither
// does, and no intermediate balance is observable by a concurrent reader.
type Ledger struct {
	db *leveldb.DB
}

// Open opens (or creates) a ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger db @ %s: %w", path, err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func accountKey(account string) []byte {
	return []byte("balance/" + account)
}

func decodeBalance(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("malformed balance record of %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func encodeBalance(balance uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, balance)
}

// Balance returns the balance of account. Accounts that never received
// funds read as zero.
func (l *Ledger) Balance(ctx context.Context, account string) (uint64, error) {
	data, err := l.db.Get(accountKey(account), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("reading balance of %s: %w", account, err)
	}
	return decodeBalance(data)
}

// Deposit credits amount to account out of thin air. This is the seam for
// the external fund-transfer collaborator: it funds wallets before they
// interact with challenges.
func (l *Ledger) Deposit(ctx context.Context, account string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	trans, err := l.db.OpenTransaction()
	if err != nil {
		return err
	}
	balance, err := txBalance(trans, account)
	if err != nil {
		trans.Discard()
		return err
	}
	balance, err = shared.Add(balance, amount)
	if err != nil {
		trans.Discard()
		return fmt.Errorf("crediting %s: %w", account, err)
	}
	if err := trans.Put(accountKey(account), encodeBalance(balance), nil); err != nil {
		trans.Discard()
		return fmt.Errorf("saving balance of %s: %w", account, err)
	}
	if err := trans.Commit(); err != nil {
		return err
	}
	logging.FromContext(ctx).Debug("deposited funds",
		zap.String("account", account), zap.Uint64("amount", amount), zap.Uint64("balance", balance))
	return nil
}

// Transfer atomically debits amount from one account and credits it to
// another. It fails with ErrInsufficientFunds if the source balance is
// lower than amount, leaving both balances untouched.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 || from == to {
		return ErrInvalidAmount
	}
	trans, err := l.db.OpenTransaction()
	if err != nil {
		return err
	}

	fromBalance, err := txBalance(trans, from)
	if err != nil {
		trans.Discard()
		return err
	}
	if fromBalance < amount {
		trans.Discard()
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, fromBalance, amount)
	}
	toBalance, err := txBalance(trans, to)
	if err != nil {
		trans.Discard()
		return err
	}
	toBalance, err = shared.Add(toBalance, amount)
	if err != nil {
		trans.Discard()
		return fmt.Errorf("crediting %s: %w", to, err)
	}

	if err := trans.Put(accountKey(from), encodeBalance(fromBalance-amount), nil); err != nil {
		trans.Discard()
		return fmt.Errorf("saving balance of %s: %w", from, err)
	}
	if err := trans.Put(accountKey(to), encodeBalance(toBalance), nil); err != nil {
		trans.Discard()
		return fmt.Errorf("saving balance of %s: %w", to, err)
	}
	if err := trans.Commit(); err != nil {
		return err
	}
	logging.FromContext(ctx).Debug("transferred funds",
		zap.String("from", from), zap.String("to", to), zap.Uint64("amount", amount))
	return nil
}

func txBalance(trans *leveldb.Transaction, account string) (uint64, error) {
	data, err := trans.Get(accountKey(account), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("reading balance of %s: %w", account, err)
	}
	return decodeBalance(data)
}
