package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/pageflow/pkg/domain"
	"github.com/aretw0/pageflow/pkg/ports"
)

const envelopeKey = "__encrypted__"

// ErrKeySize is returned for keys that are not 32 bytes long.
var ErrKeySize = errors.New("encryption key must be 32 bytes (AES-256)")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key fails to decrypt.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.HistoryStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals entry data with
// AES-GCM. Href and stage stay readable so the store keeps its shape.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, ErrKeySize
	}
	for _, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, ErrKeySize
		}
	}
	return func(next ports.HistoryStore) ports.HistoryStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Push(ctx context.Context, entry domain.Entry) error {
	sealed, err := m.seal(entry)
	if err != nil {
		return err
	}
	return m.next.Push(ctx, sealed)
}

func (m *encryptionMiddleware) Replace(ctx context.Context, entry domain.Entry) error {
	sealed, err := m.seal(entry)
	if err != nil {
		return err
	}
	return m.next.Replace(ctx, sealed)
}

func (m *encryptionMiddleware) Current(ctx context.Context) (domain.Entry, error) {
	entry, err := m.next.Current(ctx)
	if err != nil {
		return entry, err
	}
	envelope, _ := entry.Data.(map[string]any)
	encoded, ok := envelope[envelopeKey].(string)
	if !ok {
		return domain.Entry{}, errors.New("entry is missing encrypted data envelope")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("failed to decrypt entry: %w", err)
	}
	var data any
	if err := json.Unmarshal(plain, &data); err != nil {
		return domain.Entry{}, fmt.Errorf("failed to unmarshal decrypted data: %w", err)
	}
	entry.Data = data
	return entry, nil
}

func (m *encryptionMiddleware) seal(entry domain.Entry) (domain.Entry, error) {
	plain, err := json.Marshal(entry.Data)
	if err != nil {
		return entry, fmt.Errorf("failed to marshal entry data: %w", err)
	}
	ciphertext, err := encrypt(plain, m.config.ActiveKey)
	if err != nil {
		return entry, fmt.Errorf("failed to encrypt entry data: %w", err)
	}
	entry.Data = map[string]any{envelopeKey: base64.StdEncoding.EncodeToString(ciphertext)}
	return entry, nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
