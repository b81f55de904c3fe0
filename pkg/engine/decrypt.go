package engine

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/darkpool-sh/darkpool/pkg/crypto"
)

// Resolution failures that permanently disqualify an order. Anything not
// wrapping one of these sentinels (store I/O, mostly) is transient: the order
// stays queued and is retried on the next pass.
var (
	// ErrUndecryptable: the envelope failed authenticated decryption
	// (wrong key, corrupted ciphertext, or tampering).
	ErrUndecryptable = errors.New("envelope failed authenticated decryption")

	// ErrMalformedEnvelope: an envelope field is not valid base64 or has the
	// wrong length. Retrying can never fix the payload.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrMalformedTerms: the envelope decrypted but its plaintext does not
	// parse into valid order terms.
	ErrMalformedTerms = errors.New("malformed order terms")
)

// IsTerminal reports whether a resolution error should move the order to
// rejected rather than leave it queued for retry.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrUndecryptable) ||
		errors.Is(err, ErrMalformedEnvelope) ||
		errors.Is(err, ErrMalformedTerms)
}

// termsPayload is the plaintext wire shape inside an envelope
type termsPayload struct {
	Side      string `json:"side"`
	Price     int64  `json:"price"`
	Amount    int64  `json:"amount"`
	Owner     string `json:"owner"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Decryptor recovers an order's resolved terms: demo orders read them
// directly, encrypted orders go through the keystore.
type Decryptor struct {
	keys *crypto.KeyStore
}

func NewDecryptor(keys *crypto.KeyStore) *Decryptor {
	return &Decryptor{keys: keys}
}

// Resolve returns the order's plaintext terms. Errors satisfying IsTerminal
// mean the order can never resolve and should be rejected.
func (d *Decryptor) Resolve(o *Order) (Terms, error) {
	if o.Demo != nil {
		if err := o.Demo.Validate(); err != nil {
			return Terms{}, fmt.Errorf("%w: %v", ErrMalformedTerms, err)
		}
		return *o.Demo, nil
	}
	if o.Envelope == nil {
		return Terms{}, fmt.Errorf("%w: order %s has no envelope and no demo terms", ErrMalformedEnvelope, o.ID)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(o.Envelope.Ciphertext)
	if err != nil {
		return Terms{}, fmt.Errorf("%w: ciphertext: %v", ErrMalformedEnvelope, err)
	}
	nonce, err := crypto.ParseNonce(o.Envelope.Nonce)
	if err != nil {
		return Terms{}, fmt.Errorf("%w: nonce: %v", ErrMalformedEnvelope, err)
	}
	sender, err := crypto.ParsePublicKey(o.Envelope.SenderPublicKey)
	if err != nil {
		return Terms{}, fmt.Errorf("%w: sender public key: %v", ErrMalformedEnvelope, err)
	}

	plaintext, ok := d.keys.Decrypt(ciphertext, nonce, sender)
	if !ok {
		return Terms{}, fmt.Errorf("%w: order %s", ErrUndecryptable, o.ID)
	}

	var payload termsPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return Terms{}, fmt.Errorf("%w: %v", ErrMalformedTerms, err)
	}
	side, err := ParseSide(payload.Side)
	if err != nil {
		return Terms{}, fmt.Errorf("%w: %v", ErrMalformedTerms, err)
	}

	terms := Terms{
		Side:      side,
		Price:     payload.Price,
		Amount:    payload.Amount,
		Owner:     payload.Owner,
		Timestamp: payload.Timestamp,
	}
	if err := terms.Validate(); err != nil {
		return Terms{}, fmt.Errorf("%w: %v", ErrMalformedTerms, err)
	}
	return terms, nil
}
