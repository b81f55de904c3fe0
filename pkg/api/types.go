package api

// API request/response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// SubmitOrderRequest is the payload for POST /api/v1/orders.
//
// Encrypted submissions set ciphertext, nonce, and senderPublicKey. The
// cleartext side/price/amount/owner fields are the demo-mode path and are
// only persisted for orders submitted without an envelope.
type SubmitOrderRequest struct {
	Ciphertext      string `json:"ciphertext,omitempty"`
	Nonce           string `json:"nonce,omitempty"`
	SenderPublicKey string `json:"senderPublicKey,omitempty"`

	Side   string `json:"side,omitempty"` // "BUY" or "SELL"
	Price  int64  `json:"price,omitempty"`
	Amount int64  `json:"amount,omitempty"`
	Owner  string `json:"owner,omitempty"` // owning public key for demo orders
}

// ==============================
// REST Response Types
// ==============================

// SubmitOrderResponse is the response from order submission
type SubmitOrderResponse struct {
	Status  string `json:"status"` // "queued"
	OrderID string `json:"orderId"`
}

// PublicKeyResponse carries the engine's encryption key, base64
type PublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// SettlementNotice is the only settlement view served to untrusted readers:
// terms and counterparties are deliberately omitted.
type SettlementNotice struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// BalanceResponse is the owner's signed running total
type BalanceResponse struct {
	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["settlements"]
}

// SettlementUpdate is broadcast on the "settlements" channel after each match
type SettlementUpdate struct {
	Type      string `json:"type"` // "settlement"
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}
