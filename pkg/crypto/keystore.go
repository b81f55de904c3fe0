package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// KeyStore owns the engine's long-lived box keypair. The keypair is generated
// once if the key file is absent, otherwise loaded; it is never rotated while
// the engine runs.
type KeyStore struct {
	pub  PublicKey
	priv PrivateKey
}

type keyFile struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// LoadOrGenerate loads the keypair at path, creating and persisting a new one
// if the file does not exist yet.
func LoadOrGenerate(path string) (*KeyStore, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return generateAt(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}

	pub, err := ParsePublicKey(kf.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key in key file: %w", err)
	}
	privRaw, err := base64.StdEncoding.DecodeString(kf.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key in key file: %w", err)
	}
	if len(privRaw) != KeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", KeySize, len(privRaw))
	}

	ks := &KeyStore{pub: pub}
	copy(ks.priv[:], privRaw)
	return ks, nil
}

func generateAt(path string) (*KeyStore, error) {
	pub, priv, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	kf := keyFile{
		PublicKey:  pub.Base64(),
		PrivateKey: base64.StdEncoding.EncodeToString(priv[:]),
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	return &KeyStore{pub: pub, priv: priv}, nil
}

// PublicKey returns the engine's public key. No side effects.
func (ks *KeyStore) PublicKey() PublicKey {
	return ks.pub
}

// PublicKeyBase64 returns the wire encoding served to submitters
func (ks *KeyStore) PublicKeyBase64() string {
	return ks.pub.Base64()
}

// Decrypt opens an order envelope. The second return is false on
// authenticated-decryption failure; it never panics, so a caller can mark the
// order rejected instead of aborting its pass.
func (ks *KeyStore) Decrypt(ciphertext []byte, nonce [NonceSize]byte, sender PublicKey) ([]byte, bool) {
	return Open(ciphertext, nonce, sender, ks.priv)
}
