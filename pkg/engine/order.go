package engine

import (
	"fmt"
	"strings"
)

// Side of an order
type Side int8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the matching side
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseSide parses "BUY"/"SELL" (case-insensitive)
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return 0, fmt.Errorf("invalid side %q", s)
	}
}

// Status represents the lifecycle state of an order.
// Queued is initial; Filled and Rejected are terminal. Transitions only ever
// move forward: Queued -> Filled or Queued -> Rejected.
type Status int8

const (
	StatusQueued Status = iota
	StatusFilled
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusFilled:
		return "filled"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusRejected
}

// Envelope is the encrypted order payload. All fields are base64.
type Envelope struct {
	Ciphertext      string `json:"ciphertext"`
	Nonce           string `json:"nonce"`           // 24 bytes
	SenderPublicKey string `json:"senderPublicKey"` // sender's ephemeral key, 32 bytes
}

// Terms are the resolved plaintext terms of an order: either decrypted from
// an envelope or read directly from a demo-mode order.
type Terms struct {
	Side      Side   `json:"side"`
	Price     int64  `json:"price"`  // integer ticks
	Amount    int64  `json:"amount"` // integer lots
	Owner     string `json:"owner"`  // owning public key (opaque)
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Validate checks the terms are usable for matching
func (t Terms) Validate() error {
	if t.Side != Buy && t.Side != Sell {
		return fmt.Errorf("invalid side %d", t.Side)
	}
	if t.Price <= 0 {
		return fmt.Errorf("price must be positive, got %d", t.Price)
	}
	if t.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", t.Amount)
	}
	if t.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	return nil
}

// Order is a submitted order record. Exactly one of Envelope or Demo is
// populated: encrypted orders carry their terms only inside the envelope,
// demo orders carry them in cleartext.
type Order struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	CreatedAt int64     `json:"createdAt"` // Unix milliseconds
	Envelope  *Envelope `json:"envelope,omitempty"`
	Demo      *Terms    `json:"demo,omitempty"`
}

// IsDemo reports whether the order carries cleartext terms
func (o *Order) IsDemo() bool {
	return o.Demo != nil
}

// Validate enforces the one-representation invariant
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order id is required")
	}
	if (o.Envelope == nil) == (o.Demo == nil) {
		return fmt.Errorf("order %s must carry exactly one of envelope or demo terms", o.ID)
	}
	if o.Demo != nil {
		if err := o.Demo.Validate(); err != nil {
			return fmt.Errorf("order %s: %w", o.ID, err)
		}
	}
	return nil
}
