// Package fingerprint derives a stable identity for an alert from its
// correlating fields. Two alerts with the same service, severity and
// normalized message prefix share a fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// messagePrefixLen bounds how much of the message participates in identity,
// so that alerts differing only in a long variable tail still correlate.
const messagePrefixLen = 100

// Compute returns the hex SHA-256 over "service|severity|message[:100]"
// with the message lowercased and whitespace-collapsed first.
func Compute(service, severity, message string) string {
	msg := normalize(message)
	if len(msg) > messagePrefixLen {
		msg = msg[:messagePrefixLen]
	}
	sum := sha256.Sum256([]byte(service + "|" + severity + "|" + msg))
	return hex.EncodeToString(sum[:])
}

// normalize lowercases and collapses runs of whitespace to single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
