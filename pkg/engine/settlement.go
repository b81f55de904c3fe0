package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Leg holds one side's terms inside a settlement
type Leg struct {
	OrderID string `json:"orderId"`
	Side    Side   `json:"side"`
	Price   int64  `json:"price"`
	Amount  int64  `json:"amount"` // the amount that side submitted, not the traded amount
	Owner   string `json:"owner"`
}

// Settlement records a completed trade between two matched orders. Immutable
// once created: appended to the ledger exactly once per matched pair, never
// superseded or retracted.
type Settlement struct {
	ID        string `json:"id"` // deterministic pair key of the two order ids
	Buy       Leg    `json:"buy"`
	Sell      Leg    `json:"sell"`
	Price     int64  `json:"price"`
	Amount    int64  `json:"amount"` // min(buy.Amount, sell.Amount)
	Timestamp int64  `json:"timestamp"`
}

// BalanceDelta is one leg's effect on an owner's running balance
type BalanceDelta struct {
	Owner string
	Delta int64
}

// BalanceDeltas returns the two legs' notional movements: the buyer pays
// amount*price, the seller receives it.
func (s Settlement) BalanceDeltas() []BalanceDelta {
	notional := s.Amount * s.Price
	return []BalanceDelta{
		{Owner: s.Buy.Owner, Delta: -notional},
		{Owner: s.Sell.Owner, Delta: notional},
	}
}

// OrderIDs returns the two matched order ids
func (s Settlement) OrderIDs() []string {
	return []string{s.Buy.OrderID, s.Sell.OrderID}
}

// PairKey derives the settlement id for two matched orders. Order-independent:
// PairKey(a, b) == PairKey(b, a).
func PairKey(idA, idB string) string {
	lo, hi := idA, idB
	if hi < lo {
		lo, hi = hi, lo
	}
	sum := sha256.Sum256([]byte(lo + ":" + hi))
	return hex.EncodeToString(sum[:])
}

// NewSettlement builds the settlement for two resolved orders, assigning the
// buy and sell legs by each order's side. The traded amount is the smaller of
// the two submitted amounts; both sides must have agreed on the price.
func NewSettlement(a *Order, at Terms, b *Order, bt Terms, now int64) (Settlement, error) {
	if at.Side == bt.Side {
		return Settlement{}, fmt.Errorf("orders %s and %s are both %s", a.ID, b.ID, at.Side)
	}
	if at.Price != bt.Price {
		return Settlement{}, fmt.Errorf("orders %s and %s disagree on price: %d vs %d", a.ID, b.ID, at.Price, bt.Price)
	}

	buyOrder, buyTerms := a, at
	sellOrder, sellTerms := b, bt
	if at.Side == Sell {
		buyOrder, buyTerms = b, bt
		sellOrder, sellTerms = a, at
	}

	amount := buyTerms.Amount
	if sellTerms.Amount < amount {
		amount = sellTerms.Amount
	}

	return Settlement{
		ID: PairKey(a.ID, b.ID),
		Buy: Leg{
			OrderID: buyOrder.ID,
			Side:    Buy,
			Price:   buyTerms.Price,
			Amount:  buyTerms.Amount,
			Owner:   buyTerms.Owner,
		},
		Sell: Leg{
			OrderID: sellOrder.ID,
			Side:    Sell,
			Price:   sellTerms.Price,
			Amount:  sellTerms.Amount,
			Owner:   sellTerms.Owner,
		},
		Price:     buyTerms.Price,
		Amount:    amount,
		Timestamp: now,
	}, nil
}
