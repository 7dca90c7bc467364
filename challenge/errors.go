package challenge

import "errors"

var (
	// Creation.
	ErrChallengeExists   = errors.New("challenge id already exists")
	ErrInvalidParameters = errors.New("invalid challenge parameters")

	// Admission.
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrChallengeNotActive = errors.New("challenge is not active")
	ErrChallengeFull      = errors.New("challenge is full")
	ErrChallengeEnded     = errors.New("challenge has ended")
	ErrAlreadyJoined      = errors.New("wallet already joined the challenge")

	// Verification.
	ErrInvalidVerificationDay = errors.New("invalid verification day")
	ErrParticipantNotFound    = errors.New("participant not found")
	ErrChallengeCompleted     = errors.New("challenge is already completed")

	// Rewards.
	ErrUnauthorized      = errors.New("unauthorized")
	ErrChallengeNotEnded = errors.New("challenge has not ended yet")
	ErrAlreadyCompleted  = errors.New("challenge rewards already processed")

	// Withdrawal.
	ErrChallengeNotCompleted = errors.New("challenge is not completed yet")
	ErrAlreadyWithdrawn      = errors.New("rewards already withdrawn")
)
