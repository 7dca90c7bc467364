// Package challenge implements the settlement core of a fitness-staking
// challenge. Participants lock a fixed stake into a per-challenge vault,
// submit daily step-count verifications against a goal, and after the
// challenge window closes the stakes forfeited by participants who missed
// the goal are redistributed to the ones who met it on every day.
//
// The package is responsible for:
//   - creating challenges and admitting participants up to capacity,
//   - idempotent handling of daily verifications,
//   - the one-shot end-of-challenge reward computation,
//   - gating per-participant withdrawals against the computed results.
//
// Wallet identity, time and fund custody are external collaborators:
// wallets are opaque account names, time comes from an injected clock and
// funds move through the ledger package.
package challenge
