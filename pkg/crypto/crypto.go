package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// displayPrefixLength is how many characters of an issued key remain visible
// in listings after the secret part is hashed.
const displayPrefixLength = 12

// HashSecret returns a bcrypt hash of the supplied secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret compares a bcrypt hash with the plaintext candidate.
func VerifySecret(hashed, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret)) == nil
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("crypto: token length must be positive")
	}
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// IssuedKey is a freshly minted API key. Plaintext is shown to the holder once.
type IssuedKey struct {
	Plaintext     string
	DisplayPrefix string
	Hash          string
}

// NewAPIKey mints "<prefix>_<service>_<random>" and its bcrypt hash.
func NewAPIKey(prefix, service string) (IssuedKey, error) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "_")
	service = strings.Trim(strings.TrimSpace(service), "_")
	if prefix == "" || service == "" {
		return IssuedKey{}, errors.New("crypto: api key prefix and service are required")
	}

	secret, err := GenerateToken(24)
	if err != nil {
		return IssuedKey{}, fmt.Errorf("crypto: generate api key: %w", err)
	}

	plaintext := prefix + "_" + service + "_" + secret
	hash, err := HashSecret(plaintext)
	if err != nil {
		return IssuedKey{}, fmt.Errorf("crypto: hash api key: %w", err)
	}

	visible := len(prefix) + len(service) + 2 + 4
	if visible < displayPrefixLength {
		visible = displayPrefixLength
	}
	if visible > len(plaintext) {
		visible = len(plaintext)
	}

	return IssuedKey{
		Plaintext:     plaintext,
		DisplayPrefix: plaintext[:visible],
		Hash:          hash,
	}, nil
}
