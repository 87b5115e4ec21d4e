// Package crypto resolves the settlement key, the private key the engine
// signs asset transfers and payouts with. The key is supplied either raw
// through the environment or as a password-sealed file on disk.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// kdfIterations follows the OWASP minimum for PBKDF2-HMAC-SHA256.
	kdfIterations = 480_000
	kdfSaltLen    = 16
	// sealKeyLen selects AES-256 for the sealing cipher.
	sealKeyLen = 32
	// sealedKeyVersion is the on-disk schema version.
	sealedKeyVersion = 1
)

// settlementKeyLen is the expected decoded key length.
const settlementKeyLen = 32

// sealedKey is the on-disk JSON form of a password-sealed settlement key.
// All binary fields are standard base64.
type sealedKey struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig names the places a settlement key may come from. A raw key wins
// over a sealed file.
type KeyConfig struct {
	// RawPrivateKey is the hex-encoded key, with or without a 0x prefix.
	RawPrivateKey string

	// SealedKeyPath points at a file written by SealKey.
	SealedKeyPath string

	// KeyPassword unseals the file at SealedKeyPath.
	KeyPassword string
}

// deriveSealKey stretches the password into the AES-256 sealing key.
func deriveSealKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, kdfIterations, sealKeyLen, sha256.New)
}

func newSealCipher(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveSealKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("crypto: seal cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: seal cipher: %w", err)
	}
	return gcm, nil
}

// SealKey seals a hex-encoded settlement key under a password and returns the
// JSON blob to write to disk. The password is stretched with PBKDF2 and the
// key sealed with AES-256-GCM, so the file authenticates as well as hides.
func SealKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid settlement key hex: %w", err)
	}
	if len(keyBytes) != settlementKeyLen {
		return nil, fmt.Errorf("crypto: expected %d-byte key, got %d bytes", settlementKeyLen, len(keyBytes))
	}

	salt := make([]byte, kdfSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}

	gcm, err := newSealCipher(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	out := sealedKey{
		Version:    sealedKeyVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}
	return json.MarshalIndent(out, "", "  ")
}

// UnsealKey opens a JSON blob produced by SealKey and returns the hex-encoded
// settlement key without a 0x prefix.
func UnsealKey(sealed []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	var stored sealedKey
	if err := json.Unmarshal(sealed, &stored); err != nil {
		return "", fmt.Errorf("crypto: parsing sealed key: %w", err)
	}
	if stored.Version != sealedKeyVersion {
		return "", fmt.Errorf("crypto: unsupported sealed key version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newSealCipher(password, salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: unseal failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

// LoadKey resolves the settlement key from the configured source: the raw key
// if set, otherwise the sealed file, otherwise an error.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		k := strings.TrimPrefix(cfg.RawPrivateKey, "0x")
		if _, err := hex.DecodeString(k); err != nil {
			return "", fmt.Errorf("crypto: raw settlement key is not valid hex: %w", err)
		}
		return k, nil
	}

	if cfg.SealedKeyPath != "" {
		data, err := os.ReadFile(cfg.SealedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: reading sealed key file: %w", err)
		}
		return UnsealKey(data, cfg.KeyPassword)
	}

	return "", errors.New("crypto: no settlement key source configured (set RawPrivateKey or SealedKeyPath)")
}
