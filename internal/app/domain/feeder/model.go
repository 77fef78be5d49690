package feeder

import "time"

// Feeder is the global record for a staked participant, keyed by address.
// Feeders are never deleted; expulsion is derived from YellowCards so the
// stake record stays available for slashing.
type Feeder struct {
	Address      string
	Stake        int64
	YellowCards  int
	LastActiveAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Admission is a pending request to join a feed as a normal filler,
// keyed by (OracleID, Address).
type Admission struct {
	OracleID    string
	Address     string
	RequestedAt time.Time
}

// EntryType labels a stake ledger movement.
type EntryType string

const (
	EntryDeposit    EntryType = "deposit"
	EntryWithdrawal EntryType = "withdrawal"
	EntrySlash      EntryType = "slash"
)

// LedgerEntry is the audit trail for one stake movement. Amount is signed;
// BalanceAfter is the feeder's stake after the movement was applied.
type LedgerEntry struct {
	ID           string
	Address      string
	Type         EntryType
	Amount       int64
	BalanceAfter int64
	ReferenceID  string
	CreatedAt    time.Time
}
