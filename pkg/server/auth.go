package server

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Secret is the shared secret clients must present. The auth file may hold
// either the plaintext secret or a bcrypt hash of it; the first line of the
// file is the secret, everything after is ignored.
type Secret struct {
	value string
}

// LoadAuthFile reads the shared secret from the first line of path.
func LoadAuthFile(path string) (Secret, error) {
	f, err := os.Open(path)
	if err != nil {
		return Secret{}, fmt.Errorf("failed to open auth file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Scan()
	if err := scanner.Err(); err != nil {
		return Secret{}, fmt.Errorf("failed to read auth file: %w", err)
	}
	return Secret{value: scanner.Text()}, nil
}

// NewSecret wraps a literal secret value, mainly for tests.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Verify reports whether candidate matches the secret. Bcrypt-hashed
// secrets are detected by prefix; plaintext comparison is constant-time.
func (s Secret) Verify(candidate string) bool {
	if strings.HasPrefix(s.value, "$2a$") || strings.HasPrefix(s.value, "$2b$") || strings.HasPrefix(s.value, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(s.value), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(s.value), []byte(candidate)) == 1
}
