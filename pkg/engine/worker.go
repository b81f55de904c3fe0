package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/darkpool-sh/darkpool/pkg/util"
)

// Store is the durable state the worker drives: the order collection, the
// append-only settlement ledger, and the per-owner balance ledger.
type Store interface {
	// ListOrders enumerates every order in stable insertion order.
	ListOrders() ([]*Order, error)

	// ApplyStatusUpdates durably applies status transitions as one write,
	// merging on order id. Backward transitions are ignored.
	ApplyStatusUpdates(updates map[string]Status) error

	// HasSettlement reports whether a settlement with the given pair key
	// already exists.
	HasSettlement(pairID string) (bool, error)

	// CommitMatch atomically appends the settlement, applies the balance
	// deltas, and flips the matched orders to filled. Either all three are
	// durably visible or none are.
	CommitMatch(s Settlement, deltas []BalanceDelta, filledIDs []string) error
}

// Worker drives repeated matching passes: idle between ticks, one full
// sequential scan per tick. A pass always runs to completion; failures on
// individual orders never abort the pass for the others.
type Worker struct {
	store    Store
	dec      *Decryptor
	log      *zap.SugaredLogger
	clock    util.Clock
	interval time.Duration

	// OnSettlement, if set, is invoked after each durably committed match.
	OnSettlement func(Settlement)
}

func NewWorker(store Store, dec *Decryptor, log *zap.SugaredLogger, clock util.Clock, interval time.Duration) *Worker {
	return &Worker{
		store:    store,
		dec:      dec,
		log:      log,
		clock:    clock,
		interval: interval,
	}
}

// Run loops until ctx is cancelled. An in-flight pass is never interrupted;
// cancellation takes effect between passes.
func (w *Worker) Run(ctx context.Context) {
	w.log.Infow("worker_started", "interval_ms", w.interval.Milliseconds())
	for {
		select {
		case <-ctx.Done():
			w.log.Infow("worker_stopped")
			return
		case <-w.clock.After(w.interval):
			if err := w.RunPass(); err != nil {
				// Transient store failure: nothing changed, retry next tick.
				w.log.Warnw("pass_skipped", "err", err)
			}
		}
	}
}

// RunPass executes one full scan over all queued orders. Sequential by
// design: a match consumes both orders immediately, so they cannot pair again
// later in the same pass.
func (w *Worker) RunPass() error {
	orders, err := w.store.ListOrders()
	if err != nil {
		return err
	}

	// Terms are resolved at most once per order per pass. A terminal
	// resolution failure takes the order out of candidacy immediately and is
	// swept into a rejected transition at the end of the pass.
	resolved := make(map[string]Terms)
	updates := make(map[string]Status) // terminal transitions swept at end of pass
	resolve := func(o *Order) (Terms, bool) {
		if _, bad := updates[o.ID]; bad {
			return Terms{}, false
		}
		if t, ok := resolved[o.ID]; ok {
			return t, true
		}
		t, err := w.dec.Resolve(o)
		if err != nil {
			if IsTerminal(err) {
				updates[o.ID] = StatusRejected
				w.log.Infow("order_rejected", "order_id", o.ID, "err", err)
			} else {
				w.log.Warnw("order_resolve_failed", "order_id", o.ID, "err", err)
			}
			return Terms{}, false
		}
		resolved[o.ID] = t
		return t, true
	}

	consumed := make(map[string]bool) // filled earlier in this pass
	eligible := func(o *Order) bool { return !consumed[o.ID] }

	matches := 0
	for _, subject := range orders {
		if subject.Status != StatusQueued || consumed[subject.ID] {
			continue
		}
		terms, ok := resolve(subject)
		if !ok {
			continue
		}

		counterpart, cTerms, found := FindCounterpart(subject, terms, orders, eligible, resolve)
		if !found {
			// Not an error: the order stays queued and is retried next pass.
			continue
		}

		pairID := PairKey(subject.ID, counterpart.ID)
		exists, err := w.store.HasSettlement(pairID)
		if err != nil {
			w.log.Warnw("settlement_lookup_failed", "pair_id", pairID, "err", err)
			continue
		}
		if exists {
			// Crash recovery: the settlement landed but the flips did not.
			// Flip the orders without creating a second settlement.
			updates[subject.ID] = StatusFilled
			updates[counterpart.ID] = StatusFilled
			consumed[subject.ID] = true
			consumed[counterpart.ID] = true
			w.log.Infow("settlement_replayed", "pair_id", pairID)
			continue
		}

		settlement, err := NewSettlement(subject, terms, counterpart, cTerms, w.clock.Now().UnixMilli())
		if err != nil {
			w.log.Errorw("settlement_build_failed", "subject", subject.ID, "counterpart", counterpart.ID, "err", err)
			continue
		}

		if err := w.store.CommitMatch(settlement, settlement.BalanceDeltas(), settlement.OrderIDs()); err != nil {
			w.log.Warnw("settlement_commit_failed", "pair_id", pairID, "err", err)
			continue
		}

		consumed[subject.ID] = true
		consumed[counterpart.ID] = true
		matches++
		w.log.Infow("settlement_created",
			"pair_id", settlement.ID,
			"price", settlement.Price,
			"amount", settlement.Amount)

		if w.OnSettlement != nil {
			w.OnSettlement(settlement)
		}
	}

	if len(updates) > 0 {
		if err := w.store.ApplyStatusUpdates(updates); err != nil {
			// Transient: resolution is deterministic, so the same orders are
			// rejected again next pass.
			w.log.Warnw("status_sweep_failed", "count", len(updates), "err", err)
		}
	}

	if matches > 0 || len(updates) > 0 {
		w.log.Infow("pass_complete", "orders", len(orders), "matches", matches, "updates", len(updates))
	}
	return nil
}
