package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/FeederNet/oracle_layer/internal/app/domain/feed"
	"github.com/FeederNet/oracle_layer/internal/app/domain/feeder"
	"github.com/FeederNet/oracle_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
// Compound methods hold the write lock for their whole body, which gives them
// the required all-or-nothing behavior.
type Store struct {
	mu         sync.RWMutex
	nextID     int64
	feeders    map[string]feeder.Feeder
	ledger     map[string][]feeder.LedgerEntry
	oracles    map[string]feed.Oracle
	fillers    map[string]map[string]feed.Filler
	admins     map[string]map[string]feed.Admin
	admissions map[string]map[string]feeder.Admission
	rounds     map[string]feed.Round
	openRounds map[string]string
	votes      map[string]map[string]feed.Vote
	pool       int64
}

var _ storage.FeederStore = (*Store)(nil)
var _ storage.OracleStore = (*Store)(nil)
var _ storage.AdmissionStore = (*Store)(nil)
var _ storage.RoundStore = (*Store)(nil)
var _ storage.TreasuryStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:     1,
		feeders:    make(map[string]feeder.Feeder),
		ledger:     make(map[string][]feeder.LedgerEntry),
		oracles:    make(map[string]feed.Oracle),
		fillers:    make(map[string]map[string]feed.Filler),
		admins:     make(map[string]map[string]feed.Admin),
		admissions: make(map[string]map[string]feeder.Admission),
		rounds:     make(map[string]feed.Round),
		openRounds: make(map[string]string),
		votes:      make(map[string]map[string]feed.Vote),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// FeederStore implementation --------------------------------------------------

func (s *Store) PutFeeder(_ context.Context, f feeder.Feeder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feeders[f.Address] = f
	return nil
}

func (s *Store) GetFeeder(_ context.Context, address string) (feeder.Feeder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.feeders[address]
	if !ok {
		return feeder.Feeder{}, fmt.Errorf("feeder %s: %w", address, feed.ErrNotFound)
	}
	return f, nil
}

func (s *Store) ListFeeders(_ context.Context) ([]feeder.Feeder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]feeder.Feeder, 0, len(s.feeders))
	for _, f := range s.feeders {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result, nil
}

func (s *Store) AppendLedgerEntry(_ context.Context, e feeder.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = s.nextIDLocked()
	}
	s.ledger[e.Address] = append(s.ledger[e.Address], e)
	return nil
}

func (s *Store) ListLedgerEntries(_ context.Context, address string) ([]feeder.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]feeder.LedgerEntry(nil), s.ledger[address]...), nil
}

// OracleStore implementation --------------------------------------------------

func (s *Store) CreateOracle(_ context.Context, o feed.Oracle, seed []feed.Filler, admins []feed.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.oracles[o.ID]; exists {
		return fmt.Errorf("oracle %s already exists", o.ID)
	}

	s.oracles[o.ID] = o
	fillers := make(map[string]feed.Filler, len(seed))
	for _, f := range seed {
		fillers[f.Address] = f
	}
	s.fillers[o.ID] = fillers
	adminSet := make(map[string]feed.Admin, len(admins))
	for _, a := range admins {
		adminSet[a.Address] = a
	}
	s.admins[o.ID] = adminSet
	return nil
}

func (s *Store) UpdateOracle(_ context.Context, o feed.Oracle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.oracles[o.ID]; !ok {
		return fmt.Errorf("oracle %s: %w", o.ID, feed.ErrNotFound)
	}
	s.oracles[o.ID] = o
	return nil
}

func (s *Store) GetOracle(_ context.Context, id string) (feed.Oracle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.oracles[id]
	if !ok {
		return feed.Oracle{}, fmt.Errorf("oracle %s: %w", id, feed.ErrNotFound)
	}
	return o, nil
}

func (s *Store) ListOracles(_ context.Context) ([]feed.Oracle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]feed.Oracle, 0, len(s.oracles))
	for _, o := range s.oracles {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) PutAdmin(_ context.Context, a feed.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.admins[a.OracleID]
	if !ok {
		return fmt.Errorf("oracle %s: %w", a.OracleID, feed.ErrNotFound)
	}
	set[a.Address] = a
	return nil
}

func (s *Store) RemoveAdmin(_ context.Context, oracleID, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.admins[oracleID]
	if _, ok := set[address]; !ok {
		return fmt.Errorf("admin %s on oracle %s: %w", address, oracleID, feed.ErrNotFound)
	}
	delete(set, address)
	return nil
}

func (s *Store) GetAdmin(_ context.Context, oracleID, address string) (feed.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.admins[oracleID][address]
	if !ok {
		return feed.Admin{}, fmt.Errorf("admin %s on oracle %s: %w", address, oracleID, feed.ErrNotFound)
	}
	return a, nil
}

func (s *Store) ListAdmins(_ context.Context, oracleID string) ([]feed.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]feed.Admin, 0, len(s.admins[oracleID]))
	for _, a := range s.admins[oracleID] {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result, nil
}

func (s *Store) GetFiller(_ context.Context, oracleID, address string) (feed.Filler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fillers[oracleID][address]
	if !ok {
		return feed.Filler{}, fmt.Errorf("filler %s on oracle %s: %w", address, oracleID, feed.ErrNotFound)
	}
	return f, nil
}

func (s *Store) ListFillers(_ context.Context, oracleID string) ([]feed.Filler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]feed.Filler, 0, len(s.fillers[oracleID]))
	for _, f := range s.fillers[oracleID] {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Address < result[j].Address })
	return result, nil
}

func (s *Store) RemoveFiller(_ context.Context, o feed.Oracle, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.fillers[o.ID]
	if _, ok := set[address]; !ok {
		return fmt.Errorf("filler %s on oracle %s: %w", address, o.ID, feed.ErrNotFound)
	}
	if _, ok := s.oracles[o.ID]; !ok {
		return fmt.Errorf("oracle %s: %w", o.ID, feed.ErrNotFound)
	}
	delete(set, address)
	s.oracles[o.ID] = o
	return nil
}

// AdmissionStore implementation -----------------------------------------------

func (s *Store) CreateAdmission(_ context.Context, a feeder.Admission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.admissions[a.OracleID]
	if !ok {
		set = make(map[string]feeder.Admission)
		s.admissions[a.OracleID] = set
	}
	if _, exists := set[a.Address]; exists {
		return fmt.Errorf("admission for %s on oracle %s already exists", a.Address, a.OracleID)
	}
	set[a.Address] = a
	return nil
}

func (s *Store) GetAdmission(_ context.Context, oracleID, address string) (feeder.Admission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.admissions[oracleID][address]
	if !ok {
		return feeder.Admission{}, fmt.Errorf("admission for %s on oracle %s: %w", address, oracleID, feed.ErrNotFound)
	}
	return a, nil
}

func (s *Store) CountAdmissions(_ context.Context, oracleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.admissions[oracleID]), nil
}

func (s *Store) CompleteAdmission(_ context.Context, a feeder.Admission, f feed.Filler, o feed.Oracle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.admissions[a.OracleID][a.Address]; !ok {
		return fmt.Errorf("admission for %s on oracle %s: %w", a.Address, a.OracleID, feed.ErrNotFound)
	}
	if _, ok := s.oracles[o.ID]; !ok {
		return fmt.Errorf("oracle %s: %w", o.ID, feed.ErrNotFound)
	}

	delete(s.admissions[a.OracleID], a.Address)
	set, ok := s.fillers[o.ID]
	if !ok {
		set = make(map[string]feed.Filler)
		s.fillers[o.ID] = set
	}
	set[f.Address] = f
	s.oracles[o.ID] = o
	return nil
}

// RoundStore implementation ---------------------------------------------------

func (s *Store) CreateRound(_ context.Context, r feed.Round, proposerVote feed.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rounds[r.ID]; exists {
		return fmt.Errorf("round %s already exists", r.ID)
	}
	if openID, open := s.openRounds[r.OracleID]; open {
		return fmt.Errorf("oracle %s already has open round %s", r.OracleID, openID)
	}

	s.rounds[r.ID] = r
	if !r.Resolved() {
		s.openRounds[r.OracleID] = r.ID
	}
	s.votes[r.ID] = map[string]feed.Vote{proposerVote.Voter: proposerVote}
	return nil
}

func (s *Store) GetRound(_ context.Context, id string) (feed.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rounds[id]
	if !ok {
		return feed.Round{}, fmt.Errorf("round %s: %w", id, feed.ErrNotFound)
	}
	return r, nil
}

func (s *Store) GetOpenRound(_ context.Context, oracleID string) (feed.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.openRounds[oracleID]
	if !ok {
		return feed.Round{}, fmt.Errorf("open round for oracle %s: %w", oracleID, feed.ErrNotFound)
	}
	return s.rounds[id], nil
}

func (s *Store) ListRounds(_ context.Context, oracleID string) ([]feed.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]feed.Round, 0)
	for _, r := range s.rounds {
		if r.OracleID == oracleID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) RecordVote(_ context.Context, r feed.Round, v feed.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rounds[r.ID]; !ok {
		return fmt.Errorf("round %s: %w", r.ID, feed.ErrNotFound)
	}
	set := s.votes[r.ID]
	if _, exists := set[v.Voter]; exists {
		return fmt.Errorf("vote by %s in round %s already exists", v.Voter, r.ID)
	}

	set[v.Voter] = v
	s.rounds[r.ID] = r
	return nil
}

func (s *Store) ResolveRound(_ context.Context, r feed.Round, o feed.Oracle, penalized *feeder.Feeder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rounds[r.ID]; !ok {
		return fmt.Errorf("round %s: %w", r.ID, feed.ErrNotFound)
	}
	if _, ok := s.oracles[o.ID]; !ok {
		return fmt.Errorf("oracle %s: %w", o.ID, feed.ErrNotFound)
	}

	s.rounds[r.ID] = r
	if r.Resolved() {
		delete(s.openRounds, r.OracleID)
	}
	s.oracles[o.ID] = o
	if penalized != nil {
		s.feeders[penalized.Address] = *penalized
	}
	return nil
}

func (s *Store) GetVote(_ context.Context, roundID, voter string) (feed.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.votes[roundID][voter]
	if !ok {
		return feed.Vote{}, fmt.Errorf("vote by %s in round %s: %w", voter, roundID, feed.ErrNotFound)
	}
	return v, nil
}

func (s *Store) ListVotes(_ context.Context, roundID string) ([]feed.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]feed.Vote, 0, len(s.votes[roundID]))
	for _, v := range s.votes[roundID] {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Voter < result[j].Voter })
	return result, nil
}

func (s *Store) MarkVoteDisputed(_ context.Context, roundID, voter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.votes[roundID][voter]
	if !ok {
		return fmt.Errorf("vote by %s in round %s: %w", voter, roundID, feed.ErrNotFound)
	}
	v.Disputed = true
	s.votes[roundID][voter] = v
	return nil
}

// TreasuryStore implementation ------------------------------------------------

func (s *Store) AddToPool(_ context.Context, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount < 0 {
		return fmt.Errorf("invalid pool credit %d", amount)
	}
	s.pool += amount
	return nil
}

func (s *Store) PoolBalance(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pool, nil
}

func (s *Store) DrainPool(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := s.pool
	s.pool = 0
	return drained, nil
}
