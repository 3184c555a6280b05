package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// GenerateAddress returns a fresh ledger identity: "0x" followed by 40 lowercase hex digits.
func GenerateAddress() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ledger: generate address: %w", err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}

// ValidAddress reports whether addr is a well-formed ledger address.
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}
