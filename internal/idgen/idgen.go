// Package idgen generates the identifiers attached to detection calls.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random UUID v4 in its canonical hyphenated form. Trace ids
// use this format so users can quote them when reporting a screening result.
func New() string {
	return uuid.NewString()
}

// Nonce returns a random UUID v4 with the hyphens stripped (32 hex chars),
// the format the detection API expects in X-Signature-nonce.
func Nonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithPrefix returns prefix followed by a hyphen-free UUID.
func WithPrefix(prefix string) string {
	return prefix + Nonce()
}
