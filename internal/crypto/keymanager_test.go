package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSealUnsealRoundTrip(t *testing.T) {
	sealed, err := SealKey(testKeyHex, "correct horse")
	require.NoError(t, err)
	assert.Contains(t, string(sealed), `"version": 1`)

	got, err := UnsealKey(sealed, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestSealAccepts0xPrefix(t *testing.T) {
	sealed, err := SealKey("0x"+testKeyHex, "pw")
	require.NoError(t, err)

	got, err := UnsealKey(sealed, "pw")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestSealValidation(t *testing.T) {
	_, err := SealKey(testKeyHex, "")
	assert.ErrorContains(t, err, "password")

	_, err = SealKey("not-hex", "pw")
	assert.ErrorContains(t, err, "hex")

	_, err = SealKey("abcd", "pw")
	assert.ErrorContains(t, err, "32-byte")
}

func TestUnsealWrongPassword(t *testing.T) {
	sealed, err := SealKey(testKeyHex, "right")
	require.NoError(t, err)

	_, err = UnsealKey(sealed, "wrong")
	assert.ErrorContains(t, err, "unseal failed")
}

func TestUnsealRejectsUnknownVersion(t *testing.T) {
	sealed, err := SealKey(testKeyHex, "pw")
	require.NoError(t, err)

	tampered := strings.Replace(string(sealed), `"version": 1`, `"version": 9`, 1)
	_, err = UnsealKey([]byte(tampered), "pw")
	assert.ErrorContains(t, err, "version")
}

func TestLoadKeyRawTakesPrecedence(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex, SealedKeyPath: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = LoadKey(KeyConfig{RawPrivateKey: "zz"})
	assert.ErrorContains(t, err, "hex")
}

func TestLoadKeyFromSealedFile(t *testing.T) {
	sealed, err := SealKey(testKeyHex, "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "settlement.key.json")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	got, err := LoadKey(KeyConfig{SealedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestLoadKeyNoSource(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	assert.ErrorContains(t, err, "no settlement key source")
}
