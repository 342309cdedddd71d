package webhooks

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

const (
	secretPrefix = "whsec_"
	secretBytes  = 32
)

// GenerateSecret returns a fresh signing secret: "whsec_" followed by 64 hex
// characters (32 bytes from crypto/rand). The caller persists it; generation
// itself has no side effects.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}

// IsValidSecret checks prefix and exact hex length. Malformed secrets are
// rejected before any signature operation.
func IsValidSecret(secret string) bool {
	if !strings.HasPrefix(secret, secretPrefix) {
		return false
	}
	body := secret[len(secretPrefix):]
	if len(body) != secretBytes*2 {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}
