package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feeder"
	"github.com/FeederNet/oracle_layer/internal/app/storage"
	"github.com/google/uuid"
)

// Store implements the storage interfaces backed by PostgreSQL. Compound
// methods run inside a single transaction.
type Store struct {
	db *sql.DB
}

var _ storage.FeederStore = (*Store)(nil)
var _ storage.OracleStore = (*Store)(nil)
var _ storage.AdmissionStore = (*Store)(nil)
var _ storage.RoundStore = (*Store)(nil)
var _ storage.TreasuryStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, feed.ErrNotFound)
	}
	return err
}

// --- FeederStore ------------------------------------------------------------

func (s *Store) PutFeeder(ctx context.Context, f feeder.Feeder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_feeders (address, stake, yellow_cards, last_active_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE
		SET stake = EXCLUDED.stake, yellow_cards = EXCLUDED.yellow_cards,
		    last_active_at = EXCLUDED.last_active_at, updated_at = EXCLUDED.updated_at
	`, f.Address, f.Stake, f.YellowCards, f.LastActiveAt, f.CreatedAt, f.UpdatedAt)
	return err
}

func (s *Store) GetFeeder(ctx context.Context, address string) (feeder.Feeder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, stake, yellow_cards, last_active_at, created_at, updated_at
		FROM oracle_feeders
		WHERE address = $1
	`, address)

	var f feeder.Feeder
	if err := row.Scan(&f.Address, &f.Stake, &f.YellowCards, &f.LastActiveAt, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return feeder.Feeder{}, notFound(err, "feeder "+address)
	}
	return f, nil
}

func (s *Store) ListFeeders(ctx context.Context) ([]feeder.Feeder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, stake, yellow_cards, last_active_at, created_at, updated_at
		FROM oracle_feeders
		ORDER BY address
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []feeder.Feeder
	for rows.Next() {
		var f feeder.Feeder
		if err := rows.Scan(&f.Address, &f.Stake, &f.YellowCards, &f.LastActiveAt, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *Store) AppendLedgerEntry(ctx context.Context, e feeder.LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_stake_ledger (id, address, entry_type, amount, balance_after, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.Address, e.Type, e.Amount, e.BalanceAfter, e.ReferenceID, e.CreatedAt)
	return err
}

func (s *Store) ListLedgerEntries(ctx context.Context, address string) ([]feeder.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, entry_type, amount, balance_after, reference_id, created_at
		FROM oracle_stake_ledger
		WHERE address = $1
		ORDER BY created_at
	`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []feeder.LedgerEntry
	for rows.Next() {
		var e feeder.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Address, &e.Type, &e.Amount, &e.BalanceAfter, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// --- OracleStore ------------------------------------------------------------

func (s *Store) CreateOracle(ctx context.Context, o feed.Oracle, seed []feed.Filler, admins []feed.Admin) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO oracle_feeds (id, symbol, price, last_updated, only_seeders, quorum_size, price_per_read, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, o.ID, o.Symbol, o.Price, toNullTime(o.LastUpdated), o.OnlySeeders, o.QuorumSize, o.PricePerRead, o.CreatedAt, o.UpdatedAt); err != nil {
		return err
	}
	for _, f := range seed {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO oracle_fillers (oracle_id, address, role, added_at)
			VALUES ($1, $2, $3, $4)
		`, f.OracleID, f.Address, f.Role, f.AddedAt); err != nil {
			return err
		}
	}
	for _, a := range admins {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO oracle_admins (oracle_id, address, added_at)
			VALUES ($1, $2, $3)
		`, a.OracleID, a.Address, a.AddedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) UpdateOracle(ctx context.Context, o feed.Oracle) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE oracle_feeds
		SET symbol = $2, price = $3, last_updated = $4, only_seeders = $5,
		    quorum_size = $6, price_per_read = $7, updated_at = $8
		WHERE id = $1
	`, o.ID, o.Symbol, o.Price, toNullTime(o.LastUpdated), o.OnlySeeders, o.QuorumSize, o.PricePerRead, o.UpdatedAt)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("oracle %s: %w", o.ID, feed.ErrNotFound)
	}
	return nil
}

func (s *Store) GetOracle(ctx context.Context, id string) (feed.Oracle, error) {
	return scanOracle(s.db.QueryRowContext(ctx, `
		SELECT id, symbol, price, last_updated, only_seeders, quorum_size, price_per_read, created_at, updated_at
		FROM oracle_feeds
		WHERE id = $1
	`, id))
}

func (s *Store) ListOracles(ctx context.Context) ([]feed.Oracle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, price, last_updated, only_seeders, quorum_size, price_per_read, created_at, updated_at
		FROM oracle_feeds
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []feed.Oracle
	for rows.Next() {
		o, err := scanOracle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (s *Store) PutAdmin(ctx context.Context, a feed.Admin) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_admins (oracle_id, address, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (oracle_id, address) DO NOTHING
	`, a.OracleID, a.Address, a.AddedAt)
	return err
}

func (s *Store) RemoveAdmin(ctx context.Context, oracleID, address string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM oracle_admins WHERE oracle_id = $1 AND address = $2
	`, oracleID, address)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("admin %s on oracle %s: %w", address, oracleID, feed.ErrNotFound)
	}
	return nil
}

func (s *Store) GetAdmin(ctx context.Context, oracleID, address string) (feed.Admin, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT oracle_id, address, added_at
		FROM oracle_admins
		WHERE oracle_id = $1 AND address = $2
	`, oracleID, address)

	var a feed.Admin
	if err := row.Scan(&a.OracleID, &a.Address, &a.AddedAt); err != nil {
		return feed.Admin{}, notFound(err, "admin "+address)
	}
	return a, nil
}

func (s *Store) ListAdmins(ctx context.Context, oracleID string) ([]feed.Admin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT oracle_id, address, added_at
		FROM oracle_admins
		WHERE oracle_id = $1
		ORDER BY address
	`, oracleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []feed.Admin
	for rows.Next() {
		var a feed.Admin
		if err := rows.Scan(&a.OracleID, &a.Address, &a.AddedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) GetFiller(ctx context.Context, oracleID, address string) (feed.Filler, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT oracle_id, address, role, added_at
		FROM oracle_fillers
		WHERE oracle_id = $1 AND address = $2
	`, oracleID, address)

	var f feed.Filler
	if err := row.Scan(&f.OracleID, &f.Address, &f.Role, &f.AddedAt); err != nil {
		return feed.Filler{}, notFound(err, "filler "+address)
	}
	return f, nil
}

func (s *Store) ListFillers(ctx context.Context, oracleID string) ([]feed.Filler, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT oracle_id, address, role, added_at
		FROM oracle_fillers
		WHERE oracle_id = $1
		ORDER BY address
	`, oracleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []feed.Filler
	for rows.Next() {
		var f feed.Filler
		if err := rows.Scan(&f.OracleID, &f.Address, &f.Role, &f.AddedAt); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *Store) RemoveFiller(ctx context.Context, o feed.Oracle, address string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM oracle_fillers WHERE oracle_id = $1 AND address = $2
	`, o.ID, address)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("filler %s on oracle %s: %w", address, o.ID, feed.ErrNotFound)
	}
	if err := updateOracleTx(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit()
}

// --- AdmissionStore ---------------------------------------------------------

func (s *Store) CreateAdmission(ctx context.Context, a feeder.Admission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_admissions (oracle_id, address, requested_at)
		VALUES ($1, $2, $3)
	`, a.OracleID, a.Address, a.RequestedAt)
	return err
}

func (s *Store) GetAdmission(ctx context.Context, oracleID, address string) (feeder.Admission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT oracle_id, address, requested_at
		FROM oracle_admissions
		WHERE oracle_id = $1 AND address = $2
	`, oracleID, address)

	var a feeder.Admission
	if err := row.Scan(&a.OracleID, &a.Address, &a.RequestedAt); err != nil {
		return feeder.Admission{}, notFound(err, "admission for "+address)
	}
	return a, nil
}

func (s *Store) CountAdmissions(ctx context.Context, oracleID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM oracle_admissions WHERE oracle_id = $1
	`, oracleID).Scan(&count)
	return count, err
}

func (s *Store) CompleteAdmission(ctx context.Context, a feeder.Admission, f feed.Filler, o feed.Oracle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM oracle_admissions WHERE oracle_id = $1 AND address = $2
	`, a.OracleID, a.Address)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("admission for %s on oracle %s: %w", a.Address, a.OracleID, feed.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO oracle_fillers (oracle_id, address, role, added_at)
		VALUES ($1, $2, $3, $4)
	`, f.OracleID, f.Address, f.Role, f.AddedAt); err != nil {
		return err
	}
	if err := updateOracleTx(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit()
}

// --- RoundStore -------------------------------------------------------------

func (s *Store) CreateRound(ctx context.Context, r feed.Round, proposerVote feed.Vote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO oracle_rounds (id, oracle_id, proposed_price, proposer, approvals, rejects, outcome, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.OracleID, r.ProposedPrice, r.Proposer, r.Approvals, r.Rejects, r.Outcome, r.CreatedAt, toNullTime(r.ResolvedAt)); err != nil {
		return err
	}
	if err := insertVoteTx(ctx, tx, proposerVote); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetRound(ctx context.Context, id string) (feed.Round, error) {
	return scanRound(s.db.QueryRowContext(ctx, `
		SELECT id, oracle_id, proposed_price, proposer, approvals, rejects, outcome, created_at, resolved_at
		FROM oracle_rounds
		WHERE id = $1
	`, id))
}

func (s *Store) GetOpenRound(ctx context.Context, oracleID string) (feed.Round, error) {
	return scanRound(s.db.QueryRowContext(ctx, `
		SELECT id, oracle_id, proposed_price, proposer, approvals, rejects, outcome, created_at, resolved_at
		FROM oracle_rounds
		WHERE oracle_id = $1 AND outcome = $2
	`, oracleID, feed.OutcomePending))
}

func (s *Store) ListRounds(ctx context.Context, oracleID string) ([]feed.Round, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, oracle_id, proposed_price, proposer, approvals, rejects, outcome, created_at, resolved_at
		FROM oracle_rounds
		WHERE oracle_id = $1
		ORDER BY created_at
	`, oracleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []feed.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) RecordVote(ctx context.Context, r feed.Round, v feed.Vote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertVoteTx(ctx, tx, v); err != nil {
		return err
	}
	if err := updateRoundTx(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ResolveRound(ctx context.Context, r feed.Round, o feed.Oracle, penalized *feeder.Feeder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := updateRoundTx(ctx, tx, r); err != nil {
		return err
	}
	if err := updateOracleTx(ctx, tx, o); err != nil {
		return err
	}
	if penalized != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE oracle_feeders
			SET stake = $2, yellow_cards = $3, last_active_at = $4, updated_at = $5
			WHERE address = $1
		`, penalized.Address, penalized.Stake, penalized.YellowCards, penalized.LastActiveAt, penalized.UpdatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetVote(ctx context.Context, roundID, voter string) (feed.Vote, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT round_id, voter, approve, disputed, cast_at
		FROM oracle_votes
		WHERE round_id = $1 AND voter = $2
	`, roundID, voter)

	var v feed.Vote
	if err := row.Scan(&v.RoundID, &v.Voter, &v.Approve, &v.Disputed, &v.CastAt); err != nil {
		return feed.Vote{}, notFound(err, "vote by "+voter)
	}
	return v, nil
}

func (s *Store) ListVotes(ctx context.Context, roundID string) ([]feed.Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT round_id, voter, approve, disputed, cast_at
		FROM oracle_votes
		WHERE round_id = $1
		ORDER BY voter
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []feed.Vote
	for rows.Next() {
		var v feed.Vote
		if err := rows.Scan(&v.RoundID, &v.Voter, &v.Approve, &v.Disputed, &v.CastAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (s *Store) MarkVoteDisputed(ctx context.Context, roundID, voter string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE oracle_votes SET disputed = TRUE WHERE round_id = $1 AND voter = $2
	`, roundID, voter)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("vote by %s in round %s: %w", voter, roundID, feed.ErrNotFound)
	}
	return nil
}

// --- TreasuryStore ----------------------------------------------------------

func (s *Store) AddToPool(ctx context.Context, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("invalid pool credit %d", amount)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE oracle_treasury_pool SET balance = balance + $1 WHERE id = 1
	`, amount)
	return err
}

func (s *Store) PoolBalance(ctx context.Context) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT balance FROM oracle_treasury_pool WHERE id = 1
	`).Scan(&balance)
	return balance, err
}

func (s *Store) DrainPool(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var drained int64
	if err := tx.QueryRowContext(ctx, `
		SELECT balance FROM oracle_treasury_pool WHERE id = 1 FOR UPDATE
	`).Scan(&drained); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE oracle_treasury_pool SET balance = 0 WHERE id = 1
	`); err != nil {
		return 0, err
	}
	return drained, tx.Commit()
}

// --- helpers ----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOracle(row rowScanner) (feed.Oracle, error) {
	var (
		o           feed.Oracle
		lastUpdated sql.NullTime
	)
	if err := row.Scan(&o.ID, &o.Symbol, &o.Price, &lastUpdated, &o.OnlySeeders, &o.QuorumSize, &o.PricePerRead, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return feed.Oracle{}, notFound(err, "oracle")
	}
	if lastUpdated.Valid {
		o.LastUpdated = lastUpdated.Time.UTC()
	}
	return o, nil
}

func scanRound(row rowScanner) (feed.Round, error) {
	var (
		r          feed.Round
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.OracleID, &r.ProposedPrice, &r.Proposer, &r.Approvals, &r.Rejects, &r.Outcome, &r.CreatedAt, &resolvedAt); err != nil {
		return feed.Round{}, notFound(err, "round")
	}
	if resolvedAt.Valid {
		r.ResolvedAt = resolvedAt.Time.UTC()
	}
	return r, nil
}

func updateOracleTx(ctx context.Context, tx *sql.Tx, o feed.Oracle) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE oracle_feeds
		SET symbol = $2, price = $3, last_updated = $4, only_seeders = $5,
		    quorum_size = $6, price_per_read = $7, updated_at = $8
		WHERE id = $1
	`, o.ID, o.Symbol, o.Price, toNullTime(o.LastUpdated), o.OnlySeeders, o.QuorumSize, o.PricePerRead, o.UpdatedAt)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("oracle %s: %w", o.ID, feed.ErrNotFound)
	}
	return nil
}

func updateRoundTx(ctx context.Context, tx *sql.Tx, r feed.Round) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE oracle_rounds
		SET approvals = $2, rejects = $3, outcome = $4, resolved_at = $5
		WHERE id = $1
	`, r.ID, r.Approvals, r.Rejects, r.Outcome, toNullTime(r.ResolvedAt))
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("round %s: %w", r.ID, feed.ErrNotFound)
	}
	return nil
}

func insertVoteTx(ctx context.Context, tx *sql.Tx, v feed.Vote) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO oracle_votes (round_id, voter, approve, disputed, cast_at)
		VALUES ($1, $2, $3, $4, $5)
	`, v.RoundID, v.Voter, v.Approve, v.Disputed, v.CastAt)
	return err
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
