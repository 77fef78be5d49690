// Package storage defines the persistence interfaces for the oracle layer.
// Implementations live in the memory and postgres subpackages.
//
// Methods that perform several writes at once (CreateOracle, CreateRound,
// RecordVote, ResolveRound, CompleteAdmission, RemoveFiller) are compound:
// an implementation must apply all of their writes atomically so a failed
// call leaves no partial state behind.
package storage

import (
	"context"

	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feeder"
)

// FeederStore persists the global feeder records and their stake ledger.
type FeederStore interface {
	// PutFeeder inserts or updates a feeder record.
	PutFeeder(ctx context.Context, f feeder.Feeder) error
	// GetFeeder returns feed.ErrNotFound when no record exists.
	GetFeeder(ctx context.Context, address string) (feeder.Feeder, error)
	ListFeeders(ctx context.Context) ([]feeder.Feeder, error)

	AppendLedgerEntry(ctx context.Context, e feeder.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, address string) ([]feeder.LedgerEntry, error)
}

// OracleStore persists feeds, their filler sets and their admins.
type OracleStore interface {
	// CreateOracle writes the feed together with its seed fillers and
	// initial admins in one step.
	CreateOracle(ctx context.Context, o feed.Oracle, seed []feed.Filler, admins []feed.Admin) error
	UpdateOracle(ctx context.Context, o feed.Oracle) error
	GetOracle(ctx context.Context, id string) (feed.Oracle, error)
	ListOracles(ctx context.Context) ([]feed.Oracle, error)

	PutAdmin(ctx context.Context, a feed.Admin) error
	RemoveAdmin(ctx context.Context, oracleID, address string) error
	GetAdmin(ctx context.Context, oracleID, address string) (feed.Admin, error)
	ListAdmins(ctx context.Context, oracleID string) ([]feed.Admin, error)

	GetFiller(ctx context.Context, oracleID, address string) (feed.Filler, error)
	ListFillers(ctx context.Context, oracleID string) ([]feed.Filler, error)
	// RemoveFiller drops the filler and persists the updated oracle
	// (typically a shrunk quorum) atomically.
	RemoveFiller(ctx context.Context, o feed.Oracle, address string) error
}

// AdmissionStore persists pending admission requests.
type AdmissionStore interface {
	CreateAdmission(ctx context.Context, a feeder.Admission) error
	GetAdmission(ctx context.Context, oracleID, address string) (feeder.Admission, error)
	// CountAdmissions returns the number of pending requests for a feed.
	CountAdmissions(ctx context.Context, oracleID string) (int, error)
	// CompleteAdmission removes the pending request, adds the filler and
	// persists the grown oracle atomically.
	CompleteAdmission(ctx context.Context, a feeder.Admission, f feed.Filler, o feed.Oracle) error
}

// RoundStore persists challenge rounds and their votes.
type RoundStore interface {
	// CreateRound writes the round and the proposer's implicit approval.
	CreateRound(ctx context.Context, r feed.Round, proposerVote feed.Vote) error
	GetRound(ctx context.Context, id string) (feed.Round, error)
	// GetOpenRound returns the pending round for a feed, or
	// feed.ErrNotFound when the feed is idle.
	GetOpenRound(ctx context.Context, oracleID string) (feed.Round, error)
	ListRounds(ctx context.Context, oracleID string) ([]feed.Round, error)
	// RecordVote writes the vote and the updated round tallies.
	RecordVote(ctx context.Context, r feed.Round, v feed.Vote) error
	// ResolveRound persists the terminal round, the updated oracle, and
	// optionally a penalized feeder record, atomically.
	ResolveRound(ctx context.Context, r feed.Round, o feed.Oracle, penalized *feeder.Feeder) error

	GetVote(ctx context.Context, roundID, voter string) (feed.Vote, error)
	ListVotes(ctx context.Context, roundID string) ([]feed.Vote, error)
	MarkVoteDisputed(ctx context.Context, roundID, voter string) error
}

// TreasuryStore tracks the pool of slashed stake awaiting claim.
type TreasuryStore interface {
	AddToPool(ctx context.Context, amount int64) error
	PoolBalance(ctx context.Context) (int64, error)
	// DrainPool zeroes the pool and returns the drained amount.
	DrainPool(ctx context.Context) (int64, error)
}
