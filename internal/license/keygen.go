package license

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// keyPattern matches the grouped inventory key format.
var keyPattern = regexp.MustCompile(`^[A-Z0-9]{1,16}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

// NewKey generates a practically unguessable key of the fixed grouped format
// PREFIX-XXXX-XXXX-XXXX. The body is 6 bytes from a cryptographically secure
// source, hex encoded.
func NewKey(prefix string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", fmt.Errorf("%w: key prefix is required", ErrInvalidInput)
	}
	var raw [6]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("license: key entropy: %w", err)
	}
	body := strings.ToUpper(hex.EncodeToString(raw[:]))
	return fmt.Sprintf("%s-%s-%s-%s", prefix, body[0:4], body[4:8], body[8:12]), nil
}

// NewAdminKey generates the key recorded for administrator-originated grants,
// which are never drawn from the unassigned pool.
func NewAdminKey() (string, error) {
	var raw [6]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("license: key entropy: %w", err)
	}
	return "ADMIN-" + strings.ToUpper(hex.EncodeToString(raw[:])), nil
}

// ValidKeyFormat reports whether a key matches the grouped inventory format.
func ValidKeyFormat(key string) bool {
	return keyPattern.MatchString(key)
}
