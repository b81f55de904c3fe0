package engine

import "testing"

func TestPairKey_OrderIndependent(t *testing.T) {
	if PairKey("a", "b") != PairKey("b", "a") {
		t.Error("pair key depends on argument order")
	}
	if PairKey("a", "b") == PairKey("a", "c") {
		t.Error("distinct pairs collide")
	}
}

func TestNewSettlement_AssignsLegsBySide(t *testing.T) {
	buy := queuedDemo("b1", Buy, 10, 5, "alice")
	sell := queuedDemo("s1", Sell, 10, 3, "bob")

	// Subject order is the sell: legs must still land on the right sides.
	st, err := NewSettlement(sell, *sell.Demo, buy, *buy.Demo, 1234)
	if err != nil {
		t.Fatalf("NewSettlement: %v", err)
	}

	if st.Buy.OrderID != "b1" || st.Sell.OrderID != "s1" {
		t.Errorf("legs misassigned: buy=%s sell=%s", st.Buy.OrderID, st.Sell.OrderID)
	}
	if st.Amount != 3 {
		t.Errorf("amount = %d, want min(5,3)=3", st.Amount)
	}
	if st.Price != 10 {
		t.Errorf("price = %d, want 10", st.Price)
	}
	if st.ID != PairKey("b1", "s1") {
		t.Errorf("settlement id is not the pair key")
	}
	if st.Timestamp != 1234 {
		t.Errorf("timestamp = %d, want 1234", st.Timestamp)
	}
}

func TestNewSettlement_RejectsInvalidPairs(t *testing.T) {
	a := queuedDemo("a", Buy, 10, 5, "alice")
	sameSide := queuedDemo("b", Buy, 10, 5, "bob")
	wrongPrice := queuedDemo("c", Sell, 11, 5, "carol")

	if _, err := NewSettlement(a, *a.Demo, sameSide, *sameSide.Demo, 0); err == nil {
		t.Error("same-side pair accepted")
	}
	if _, err := NewSettlement(a, *a.Demo, wrongPrice, *wrongPrice.Demo, 0); err == nil {
		t.Error("price-disagreeing pair accepted")
	}
}

func TestBalanceDeltas_Conservation(t *testing.T) {
	buy := queuedDemo("b1", Buy, 10, 5, "alice")
	sell := queuedDemo("s1", Sell, 10, 3, "bob")
	st, err := NewSettlement(buy, *buy.Demo, sell, *sell.Demo, 0)
	if err != nil {
		t.Fatalf("NewSettlement: %v", err)
	}

	deltas := st.BalanceDeltas()
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(deltas))
	}

	notional := st.Amount * st.Price // 30
	if deltas[0].Owner != "alice" || deltas[0].Delta != -notional {
		t.Errorf("buyer delta = %+v, want alice -%d", deltas[0], notional)
	}
	if deltas[1].Owner != "bob" || deltas[1].Delta != notional {
		t.Errorf("seller delta = %+v, want bob +%d", deltas[1], notional)
	}
	if deltas[0].Delta+deltas[1].Delta != 0 {
		t.Error("legs do not conserve notional")
	}
}
