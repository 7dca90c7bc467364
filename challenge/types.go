package challenge

import "fmt"

// Challenge is the durable record of one fitness-staking challenge. It is
// created once, mutated by admissions (count and pool) and by the one-shot
// reward processing (completion flags and successful count), and never
// deleted.
type Challenge struct {
	ID                     uint64
	Authority              string
	StepGoal               uint32
	DurationDays           uint32
	EntryAmount            uint64
	MaxParticipants        uint32
	ParticipantCount       uint32
	TotalPool              uint64
	StartTime              int64 // unix seconds
	EndTime                int64 // unix seconds
	IsActive               bool
	IsCompleted            bool
	SuccessfulParticipants uint32
}

// Participant is the per-wallet record within a challenge. DailyCompletions
// always has exactly DurationDays entries; flags flip false->true at most
// once and never reverse.
type Participant struct {
	Wallet              string
	ChallengeID         uint64
	DailyCompletions    []bool
	TotalSuccessfulDays uint32
	HasWithdrawn        bool
}

// Successful reports whether p met the step goal on every day of the
// challenge. There is no partial credit.
func (p *Participant) Successful(c *Challenge) bool {
	return p.TotalSuccessfulDays == c.DurationDays
}

// VaultAccount returns the ledger account holding the escrowed stakes of
// one challenge.
func VaultAccount(challengeID uint64) string {
	return fmt.Sprintf("vault/%016x", challengeID)
}
