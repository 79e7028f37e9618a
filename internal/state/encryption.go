package state

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
)

// EncryptionKeyEnv names the environment variable holding the state
// encryption key: 64 hex characters (a 256-bit AES key). When set, state
// documents are sealed with AES-256-GCM before they reach the backend.
const EncryptionKeyEnv = "STACKFORM_STATE_ENCRYPTION_KEY"

// encMagic prefixes sealed state documents so a plaintext document written
// before encryption was enabled still loads.
var encMagic = []byte("SFENC1")

func encryptionKey() ([]byte, error) {
	raw := os.Getenv(EncryptionKeyEnv)
	if raw == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: not valid hex: %w", EncryptionKeyEnv, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s: need 32 bytes (64 hex chars), got %d bytes", EncryptionKeyEnv, len(key))
	}
	return key, nil
}

func seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(encMagic)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, encMagic...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

func open(key, data []byte) ([]byte, error) {
	if len(data) < len(encMagic) || string(data[:len(encMagic)]) != string(encMagic) {
		if key == nil {
			return data, nil
		}
		// Key configured but document is plaintext: accept it; the next
		// save seals it.
		return data, nil
	}
	if key == nil {
		return nil, errors.New("state is encrypted but " + EncryptionKeyEnv + " is not set")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	body := data[len(encMagic):]
	if len(body) < gcm.NonceSize() {
		return nil, errors.New("encrypted state is truncated")
	}
	nonce, ciphertext := body[:gcm.NonceSize()], body[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting state: %w", err)
	}
	return plaintext, nil
}
