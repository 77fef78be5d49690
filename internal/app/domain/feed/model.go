package feed

import "time"

// BasisPoints is the denominator used for price deviation ratios.
const BasisPoints = 10_000

// Outcome is the terminal (or pending) state of a challenge round.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// Role classifies a filler on a feed.
type Role string

const (
	// RoleSeed marks a member of the initial trusted filler set.
	RoleSeed Role = "seed"
	// RoleNormal marks a filler admitted after the feed opened to the public.
	RoleNormal Role = "normal"
)

// Oracle is one price feed. Price is an integer in the asset's smallest
// unit and is only ever written by an approved challenge resolution.
type Oracle struct {
	ID           string
	Symbol       string
	Price        int64
	LastUpdated  time.Time
	OnlySeeders  bool
	QuorumSize   int
	PricePerRead int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Filler records an address admitted to vote on a feed, keyed by
// (OracleID, Address).
type Filler struct {
	OracleID string
	Address  string
	Role     Role
	AddedAt  time.Time
}

// Admin records a feed administrator, keyed by (OracleID, Address).
type Admin struct {
	OracleID string
	Address  string
	AddedAt  time.Time
}

// Round is one proposal-and-vote cycle. At most one round per oracle is
// pending at a time; resolved rounds are retained for disputes.
type Round struct {
	ID            string
	OracleID      string
	ProposedPrice int64
	Proposer      string
	Approvals     int
	Rejects       int
	Outcome       Outcome
	CreatedAt     time.Time
	ResolvedAt    time.Time
}

// Resolved reports whether the round reached a terminal outcome.
func (r Round) Resolved() bool {
	return r.Outcome == OutcomeApproved || r.Outcome == OutcomeRejected
}

// Vote is a single ballot in a round, keyed by (RoundID, Voter).
// Disputed blocks a second rat-out against the same ballot.
type Vote struct {
	RoundID  string
	Voter    string
	Approve  bool
	Disputed bool
	CastAt   time.Time
}

// MajorityThreshold returns the vote count that resolves a round:
// floor(quorum/2)+1, re-evaluated against the live quorum.
func MajorityThreshold(quorumSize int) int {
	return quorumSize/2 + 1
}

// WithinBand reports whether proposed lies inside the closed deviation
// band around current, expressed in basis points of the current price.
// A feed whose price was never set accepts any proposal.
func WithinBand(current, proposed, bandBps int64) bool {
	if current <= 0 {
		return false
	}
	diff := proposed - current
	if diff < 0 {
		diff = -diff
	}
	return diff*BasisPoints <= current*bandBps
}
