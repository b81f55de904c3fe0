package storage

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/darkpool-sh/darkpool/pkg/engine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func demoOrder(id string, side engine.Side, price, amount int64, owner string) *engine.Order {
	return &engine.Order{
		ID:     id,
		Status: engine.StatusQueued,
		Demo:   &engine.Terms{Side: side, Price: price, Amount: amount, Owner: owner},
	}
}

func TestListOrders_InsertionOrder(t *testing.T) {
	s := openTestStore(t)

	ids := []string{"z", "a", "m", "0"}
	for i, id := range ids {
		if err := s.AppendOrder(demoOrder(id, engine.Buy, 10, int64(i+1), "alice")); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	orders, err := s.ListOrders()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != len(ids) {
		t.Fatalf("got %d orders, want %d", len(orders), len(ids))
	}
	for i, id := range ids {
		if orders[i].ID != id {
			t.Errorf("orders[%d] = %s, want %s (insertion order, not lexicographic)", i, orders[i].ID, id)
		}
	}
}

func TestAppendOrder_RejectsInvalidRepresentation(t *testing.T) {
	s := openTestStore(t)

	both := demoOrder("both", engine.Buy, 10, 5, "alice")
	both.Envelope = &engine.Envelope{Ciphertext: "x", Nonce: "y", SenderPublicKey: "z"}
	if err := s.AppendOrder(both); err == nil {
		t.Error("order with both representations accepted")
	}

	neither := &engine.Order{ID: "neither", Status: engine.StatusQueued}
	if err := s.AppendOrder(neither); err == nil {
		t.Error("order with neither representation accepted")
	}
}

func TestApplyStatusUpdates_MergesOnID(t *testing.T) {
	s := openTestStore(t)

	if err := s.AppendOrder(demoOrder("early", engine.Buy, 10, 5, "alice")); err != nil {
		t.Fatalf("append: %v", err)
	}

	// A pass reads the collection here; intake appends before write-back.
	if err := s.AppendOrder(demoOrder("late", engine.Sell, 10, 5, "bob")); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.ApplyStatusUpdates(map[string]engine.Status{"early": engine.StatusRejected}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	orders, err := s.ListOrders()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("mid-pass append lost: got %d orders", len(orders))
	}
	for _, o := range orders {
		switch o.ID {
		case "early":
			if o.Status != engine.StatusRejected {
				t.Errorf("early = %s, want rejected", o.Status)
			}
		case "late":
			if o.Status != engine.StatusQueued {
				t.Errorf("late = %s, want untouched queued", o.Status)
			}
		}
	}
}

func TestApplyStatusUpdates_NeverMovesBackward(t *testing.T) {
	s := openTestStore(t)
	if err := s.AppendOrder(demoOrder("o", engine.Buy, 10, 5, "alice")); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.ApplyStatusUpdates(map[string]engine.Status{"o": engine.StatusFilled}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// Terminal state must win over a later conflicting update.
	if err := s.ApplyStatusUpdates(map[string]engine.Status{"o": engine.StatusQueued}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	o, ok, err := s.GetOrder("o")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if o.Status != engine.StatusFilled {
		t.Errorf("status = %s, want filled to stick", o.Status)
	}
}

func TestApplyStatusUpdates_UnknownIDIgnored(t *testing.T) {
	s := openTestStore(t)
	if err := s.ApplyStatusUpdates(map[string]engine.Status{"ghost": engine.StatusRejected}); err != nil {
		t.Fatalf("apply with unknown id: %v", err)
	}
}

func makeSettlement(buyID, sellID string, price, amount int64, buyer, seller string) engine.Settlement {
	return engine.Settlement{
		ID:        engine.PairKey(buyID, sellID),
		Buy:       engine.Leg{OrderID: buyID, Side: engine.Buy, Price: price, Amount: amount, Owner: buyer},
		Sell:      engine.Leg{OrderID: sellID, Side: engine.Sell, Price: price, Amount: amount, Owner: seller},
		Price:     price,
		Amount:    amount,
		Timestamp: 1000,
	}
}

func TestCommitMatch_AllThreeVisible(t *testing.T) {
	s := openTestStore(t)
	if err := s.AppendOrder(demoOrder("b", engine.Buy, 10, 3, "alice")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendOrder(demoOrder("x", engine.Sell, 10, 3, "bob")); err != nil {
		t.Fatalf("append: %v", err)
	}

	st := makeSettlement("b", "x", 10, 3, "alice", "bob")
	if err := s.CommitMatch(st, st.BalanceDeltas(), st.OrderIDs()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	ok, err := s.HasSettlement(st.ID)
	if err != nil || !ok {
		t.Fatalf("settlement missing: ok=%v err=%v", ok, err)
	}
	for _, id := range []string{"b", "x"} {
		o, ok, err := s.GetOrder(id)
		if err != nil || !ok {
			t.Fatalf("get %s: ok=%v err=%v", id, ok, err)
		}
		if o.Status != engine.StatusFilled {
			t.Errorf("%s = %s, want filled", id, o.Status)
		}
	}
	if b, _ := s.Balance("alice"); b != -30 {
		t.Errorf("alice balance = %d, want -30", b)
	}
	if b, _ := s.Balance("bob"); b != 30 {
		t.Errorf("bob balance = %d, want 30", b)
	}
}

func TestCommitMatch_DuplicatePairRejected(t *testing.T) {
	s := openTestStore(t)
	if err := s.AppendOrder(demoOrder("b", engine.Buy, 10, 3, "alice")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendOrder(demoOrder("x", engine.Sell, 10, 3, "bob")); err != nil {
		t.Fatalf("append: %v", err)
	}

	st := makeSettlement("b", "x", 10, 3, "alice", "bob")
	if err := s.CommitMatch(st, st.BalanceDeltas(), st.OrderIDs()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.CommitMatch(st, st.BalanceDeltas(), st.OrderIDs()); err == nil {
		t.Fatal("duplicate pair commit accepted")
	}

	// Balances must reflect a single settlement.
	if b, _ := s.Balance("alice"); b != -30 {
		t.Errorf("alice balance = %d after duplicate attempt, want -30", b)
	}
}

func TestCommitMatch_SelfMatchNetsToZero(t *testing.T) {
	s := openTestStore(t)
	if err := s.AppendOrder(demoOrder("b", engine.Buy, 10, 3, "alice")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendOrder(demoOrder("x", engine.Sell, 10, 3, "alice")); err != nil {
		t.Fatalf("append: %v", err)
	}

	st := makeSettlement("b", "x", 10, 3, "alice", "alice")
	if err := s.CommitMatch(st, st.BalanceDeltas(), st.OrderIDs()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if b, _ := s.Balance("alice"); b != 0 {
		t.Errorf("self-match balance = %d, want 0", b)
	}
}

func TestBalancesAccumulateAcrossSettlements(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		buyID := fmt.Sprintf("b%d", i)
		sellID := fmt.Sprintf("s%d", i)
		if err := s.AppendOrder(demoOrder(buyID, engine.Buy, 10, 2, "alice")); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := s.AppendOrder(demoOrder(sellID, engine.Sell, 10, 2, "bob")); err != nil {
			t.Fatalf("append: %v", err)
		}
		st := makeSettlement(buyID, sellID, 10, 2, "alice", "bob")
		if err := s.CommitMatch(st, st.BalanceDeltas(), st.OrderIDs()); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	if b, _ := s.Balance("alice"); b != -60 {
		t.Errorf("alice = %d, want -60", b)
	}
	if b, _ := s.Balance("bob"); b != 60 {
		t.Errorf("bob = %d, want 60", b)
	}
}

func TestListSettlements_SortedByTimestamp(t *testing.T) {
	s := openTestStore(t)

	times := []int64{3000, 1000, 2000}
	for i, ts := range times {
		buyID := fmt.Sprintf("b%d", i)
		sellID := fmt.Sprintf("s%d", i)
		if err := s.AppendOrder(demoOrder(buyID, engine.Buy, 10, 2, "a")); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := s.AppendOrder(demoOrder(sellID, engine.Sell, 10, 2, "b")); err != nil {
			t.Fatalf("append: %v", err)
		}
		st := makeSettlement(buyID, sellID, 10, 2, "a", "b")
		st.Timestamp = ts
		if err := s.CommitMatch(st, st.BalanceDeltas(), st.OrderIDs()); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	sts, err := s.ListSettlements()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sts) != 3 {
		t.Fatalf("got %d settlements, want 3", len(sts))
	}
	for i := 1; i < len(sts); i++ {
		if sts[i-1].Timestamp > sts[i].Timestamp {
			t.Errorf("settlements not sorted: %d before %d", sts[i-1].Timestamp, sts[i].Timestamp)
		}
	}
}

func TestResetSettlements_LeavesOrdersAndBalances(t *testing.T) {
	s := openTestStore(t)
	if err := s.AppendOrder(demoOrder("b", engine.Buy, 10, 3, "alice")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendOrder(demoOrder("x", engine.Sell, 10, 3, "bob")); err != nil {
		t.Fatalf("append: %v", err)
	}
	st := makeSettlement("b", "x", 10, 3, "alice", "bob")
	if err := s.CommitMatch(st, st.BalanceDeltas(), st.OrderIDs()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := s.ResetSettlements(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if sts, _ := s.ListSettlements(); len(sts) != 0 {
		t.Errorf("settlements survived reset: %d", len(sts))
	}
	orders, err := s.ListOrders()
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 2 {
		t.Errorf("orders clobbered by reset: %d", len(orders))
	}
	if b, _ := s.Balance("bob"); b != 30 {
		t.Errorf("balances clobbered by reset: bob = %d", b)
	}
}

func TestStore_ReopenKeepsState(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.AppendOrder(demoOrder("o1", engine.Buy, 10, 5, "alice")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	orders, err := s2.ListOrders()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "o1" {
		t.Fatalf("state lost across reopen: %+v", orders)
	}

	// Sequence numbering continues, preserving insertion order.
	if err := s2.AppendOrder(demoOrder("o2", engine.Sell, 10, 5, "bob")); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	orders, err = s2.ListOrders()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 2 || orders[1].ID != "o2" {
		t.Fatalf("insertion order broken after reopen: %+v", orders)
	}
}
