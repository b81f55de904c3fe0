package engine

// Resolver returns an order's plaintext terms, or false if they are not
// available this pass (decryption failed or the order is otherwise out of
// candidacy).
type Resolver func(*Order) (Terms, bool)

// FindCounterpart scans orders in store iteration order and returns the first
// eligible counterpart for the subject: queued, a different order, the
// opposite side, and the exact same resolved price. There is no book depth or
// price-time priority across levels, only first-encountered wins at the
// agreed price. Orders whose terms fail to resolve are skipped for this pass.
//
// Self-matching between two orders of the same owner is deliberately not
// prevented.
func FindCounterpart(subject *Order, subjectTerms Terms, orders []*Order, eligible func(*Order) bool, resolve Resolver) (*Order, Terms, bool) {
	for _, c := range orders {
		if c.ID == subject.ID {
			continue
		}
		if c.Status != StatusQueued {
			continue
		}
		if eligible != nil && !eligible(c) {
			continue
		}
		terms, ok := resolve(c)
		if !ok {
			continue
		}
		if terms.Side == subjectTerms.Side {
			continue
		}
		if terms.Price != subjectTerms.Price {
			continue
		}
		return c, terms, true
	}
	return nil, Terms{}, false
}
