package commitment

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"rps-backend/internal/game"
)

// DecodeError reports a sealed value that could not be decrypted. It
// always indicates corrupted storage rather than a game-logic problem,
// so callers surface it separately from normal flow errors.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode sealed value: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode sealed value: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DeriveKey stretches the configured server secret into a 32-byte
// subkey bound to one purpose, so the choice commitments and the
// custodial escrow secrets never share a key.
func DeriveKey(secret, purpose string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret is empty")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return key, nil
}

// Codec seals and opens short plaintext values with AES-GCM. Sealed
// values are stored as hex(iv) + ":" + hex(ciphertext), one opaque
// string per value.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a codec from a 32-byte key (see DeriveKey).
func NewCodec(key []byte) (*Codec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Seal encrypts one plaintext value under a fresh random IV.
func (c *Codec) Seal(value string) (string, error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("read iv: %w", err)
	}
	ciphertext := c.aead.Seal(nil, iv, []byte(value), nil)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Open decrypts a previously sealed value. Any malformed input (wrong
// separator, bad IV, failed authentication) comes back as *DecodeError.
func (c *Codec) Open(sealed string) (string, error) {
	parts := strings.Split(sealed, ":")
	if len(parts) != 2 {
		return "", &DecodeError{Reason: "expected iv:ciphertext format"}
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", &DecodeError{Reason: "iv is not valid hex", Err: err}
	}
	if len(iv) != c.aead.NonceSize() {
		return "", &DecodeError{Reason: fmt.Sprintf("iv length %d, want %d", len(iv), c.aead.NonceSize())}
	}

	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", &DecodeError{Reason: "ciphertext is not valid hex", Err: err}
	}

	plaintext, err := c.aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", &DecodeError{Reason: "authentication failed", Err: err}
	}
	return string(plaintext), nil
}

// SealChoice commits a player's choice before the opposing party acts.
func (c *Codec) SealChoice(choice game.Choice) (string, error) {
	if _, err := game.ParseChoice(string(choice)); err != nil {
		return "", err
	}
	return c.Seal(string(choice))
}

// OpenChoice recovers a committed choice. A plaintext outside the
// three-hand enumeration is treated as corruption.
func (c *Codec) OpenChoice(sealed string) (game.Choice, error) {
	plaintext, err := c.Open(sealed)
	if err != nil {
		return "", err
	}
	choice, err := game.ParseChoice(plaintext)
	if err != nil {
		return "", &DecodeError{Reason: "plaintext is not a valid choice", Err: err}
	}
	return choice, nil
}
