package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// Envelope crypto for order submissions: NaCl box (curve25519 + xsalsa20-poly1305).
// Senders encrypt order terms against the engine's public key with an ephemeral
// keypair; only the engine's private key can open the envelope.

const (
	KeySize   = 32
	NonceSize = 24
)

type PublicKey [KeySize]byte
type PrivateKey [KeySize]byte

// GenerateKeyPair creates a new random box keypair
func GenerateKeyPair() (PublicKey, PrivateKey, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return PublicKey{}, PrivateKey{}, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return PublicKey(*pub), PrivateKey(*priv), nil
}

// Base64 returns the fixed wire encoding of a public key
func (k PublicKey) Base64() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// ParsePublicKey decodes a base64 public key
// Rejects anything that is not exactly 32 bytes
func ParsePublicKey(s string) (PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(raw) != KeySize {
		return PublicKey{}, fmt.Errorf("public key must be %d bytes, got %d", KeySize, len(raw))
	}
	var k PublicKey
	copy(k[:], raw)
	return k, nil
}

// ParseNonce decodes a base64 box nonce
func ParseNonce(s string) ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nonce, fmt.Errorf("failed to decode nonce: %w", err)
	}
	if len(raw) != NonceSize {
		return nonce, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(raw))
	}
	copy(nonce[:], raw)
	return nonce, nil
}

// Seal encrypts plaintext for the recipient using a fresh ephemeral sender
// keypair. Returns the ciphertext, nonce, and the ephemeral public key the
// recipient needs to open the box.
func Seal(plaintext []byte, recipient PublicKey) (ciphertext []byte, nonce [NonceSize]byte, sender PublicKey, err error) {
	senderPub, senderPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nonce, PublicKey{}, fmt.Errorf("failed to generate sender keypair: %w", err)
	}
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, nonce, PublicKey{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	recipientKey := [KeySize]byte(recipient)
	ciphertext = box.Seal(nil, plaintext, &nonce, &recipientKey, senderPriv)
	return ciphertext, nonce, PublicKey(*senderPub), nil
}

// Open authenticates and decrypts a box. The second return is false when
// authentication fails (wrong key, corrupted ciphertext, or tampering).
func Open(ciphertext []byte, nonce [NonceSize]byte, sender PublicKey, recipient PrivateKey) ([]byte, bool) {
	senderKey := [KeySize]byte(sender)
	recipientKey := [KeySize]byte(recipient)
	return box.Open(nil, ciphertext, &nonce, &senderKey, &recipientKey)
}
