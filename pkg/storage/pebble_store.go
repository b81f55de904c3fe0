package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/darkpool-sh/darkpool/pkg/engine"
)

// Store persists orders, settlements, and balances in one Pebble database.
// All mutations go through the store mutex: the intake boundary appends
// concurrently with the worker's read-modify-write pass, and serializing the
// writers (plus merging status updates on order id instead of rewriting the
// collection) is what keeps mid-pass appends from being lost.
type Store struct {
	mu sync.Mutex
	db *pebble.DB
}

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ============================================================================
// Orders
// ============================================================================

// AppendOrder assigns the next sequence number and durably writes the order
// record plus its id index entry.
func (s *Store) AppendOrder(o *engine.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextOrderSeq()
	if err != nil {
		return err
	}

	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(orderKey(seq), data, nil); err != nil {
		return fmt.Errorf("failed to stage order: %w", err)
	}
	if err := batch.Set(orderIndexKey(o.ID), encodeSeq(seq), nil); err != nil {
		return fmt.Errorf("failed to stage order index: %w", err)
	}
	if err := batch.Set(orderSeqKey(), encodeSeq(seq), nil); err != nil {
		return fmt.Errorf("failed to stage sequence counter: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to append order: %w", err)
	}
	return nil
}

func (s *Store) nextOrderSeq() (uint64, error) {
	val, closer, err := s.db.Get(orderSeqKey())
	if err == pebble.ErrNotFound {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence counter: %w", err)
	}
	defer closer.Close()
	return decodeSeq(val) + 1, nil
}

// ListOrders returns every order in insertion order
func (s *Store) ListOrders() ([]*engine.Order, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open order iterator: %w", err)
	}
	defer iter.Close()

	var orders []*engine.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o engine.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order at %s: %w", iter.Key(), err)
		}
		orders = append(orders, &o)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("order scan failed: %w", err)
	}
	return orders, nil
}

// GetOrder loads one order by id
// Returns false if the order doesn't exist
func (s *Store) GetOrder(id string) (*engine.Order, bool, error) {
	seq, ok, err := s.lookupSeq(id)
	if err != nil || !ok {
		return nil, false, err
	}
	return s.getOrderAt(seq)
}

func (s *Store) lookupSeq(id string) (uint64, bool, error) {
	val, closer, err := s.db.Get(orderIndexKey(id))
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read order index: %w", err)
	}
	defer closer.Close()
	return decodeSeq(val), true, nil
}

func (s *Store) getOrderAt(seq uint64) (*engine.Order, bool, error) {
	val, closer, err := s.db.Get(orderKey(seq))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read order: %w", err)
	}
	defer closer.Close()

	var o engine.Order
	if err := json.Unmarshal(val, &o); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return &o, true, nil
}

// ApplyStatusUpdates flips order statuses as one durable write, merging on
// order id. Each record is re-read inside the lock, so orders appended after
// the caller's ListOrders are untouched. Unknown ids and backward transitions
// (an already-terminal order) are skipped.
func (s *Store) ApplyStatusUpdates(updates map[string]engine.Status) error {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.stageStatusUpdates(batch, updates); err != nil {
		return err
	}
	if batch.Empty() {
		return nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to apply status updates: %w", err)
	}
	return nil
}

func (s *Store) stageStatusUpdates(batch *pebble.Batch, updates map[string]engine.Status) error {
	for id, status := range updates {
		seq, ok, err := s.lookupSeq(id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		o, ok, err := s.getOrderAt(seq)
		if err != nil {
			return err
		}
		if !ok || o.Status.Terminal() {
			continue
		}
		o.Status = status
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to marshal order %s: %w", id, err)
		}
		if err := batch.Set(orderKey(seq), data, nil); err != nil {
			return fmt.Errorf("failed to stage order %s: %w", id, err)
		}
	}
	return nil
}

// ============================================================================
// Settlements
// ============================================================================

// HasSettlement reports whether a settlement with this pair key exists
func (s *Store) HasSettlement(pairID string) (bool, error) {
	return s.hasSettlementLocked(pairID)
}

// ListSettlements returns all settlements, oldest first
func (s *Store) ListSettlements() ([]engine.Settlement, error) {
	prefix := []byte(prefixSettlement)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open settlement iterator: %w", err)
	}
	defer iter.Close()

	var settlements []engine.Settlement
	for iter.First(); iter.Valid(); iter.Next() {
		var st engine.Settlement
		if err := json.Unmarshal(iter.Value(), &st); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settlement at %s: %w", iter.Key(), err)
		}
		settlements = append(settlements, st)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("settlement scan failed: %w", err)
	}

	// Pair keys are hashes, so iteration order is arbitrary.
	sort.Slice(settlements, func(i, j int) bool {
		return settlements[i].Timestamp < settlements[j].Timestamp
	})
	return settlements, nil
}

// ResetSettlements clears the settlement ledger. Operational/demo utility;
// orders and balances are untouched.
func (s *Store) ResetSettlements() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := []byte(prefixSettlement)
	if err := s.db.DeleteRange(prefix, keyUpperBound(prefix), pebble.Sync); err != nil {
		return fmt.Errorf("failed to reset settlements: %w", err)
	}
	return nil
}

// ============================================================================
// Balances
// ============================================================================

// BalanceEntry maps an owner to a signed running total
type BalanceEntry struct {
	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
}

// Balance returns the owner's running total (zero for unknown owners)
func (s *Store) Balance(owner string) (int64, error) {
	val, closer, err := s.db.Get(balanceKey(owner))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	defer closer.Close()

	var entry BalanceEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		return 0, fmt.Errorf("failed to unmarshal balance: %w", err)
	}
	return entry.Balance, nil
}

// ============================================================================
// Match commit
// ============================================================================

// CommitMatch writes the settlement, the balance deltas, and the matched
// orders' filled flips as one synced batch. A crash cannot leave the
// settlement visible without the flips, so the pair can never re-match.
func (s *Store) CommitMatch(st engine.Settlement, deltas []engine.BalanceDelta, filledIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.hasSettlementLocked(st.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("settlement %s already exists", st.ID)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement: %w", err)
	}
	if err := batch.Set(settlementKey(st.ID), data, nil); err != nil {
		return fmt.Errorf("failed to stage settlement: %w", err)
	}

	// Aggregate per owner first: a self-match carries both legs for the same
	// owner, and each balance key must be staged exactly once.
	merged := make(map[string]int64, len(deltas))
	owners := make([]string, 0, len(deltas))
	for _, d := range deltas {
		if _, seen := merged[d.Owner]; !seen {
			owners = append(owners, d.Owner)
		}
		merged[d.Owner] += d.Delta
	}
	for _, owner := range owners {
		current, err := s.Balance(owner)
		if err != nil {
			return err
		}
		entry := BalanceEntry{Owner: owner, Balance: current + merged[owner]}
		bdata, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal balance for %s: %w", owner, err)
		}
		if err := batch.Set(balanceKey(owner), bdata, nil); err != nil {
			return fmt.Errorf("failed to stage balance for %s: %w", owner, err)
		}
	}

	flips := make(map[string]engine.Status, len(filledIDs))
	for _, id := range filledIDs {
		flips[id] = engine.StatusFilled
	}
	if err := s.stageStatusUpdates(batch, flips); err != nil {
		return err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit match: %w", err)
	}
	return nil
}

func (s *Store) hasSettlementLocked(pairID string) (bool, error) {
	_, closer, err := s.db.Get(settlementKey(pairID))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read settlement: %w", err)
	}
	closer.Close()
	return true, nil
}

var _ engine.Store = (*Store)(nil)
