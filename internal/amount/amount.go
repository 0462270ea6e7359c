// Package amount converts raw transaction values into human-readable native
// token quantities.
//
// Transaction values arrive as hex-encoded integers in the token's smallest
// unit (wei for 18-decimal tokens). All arithmetic stays in big.Int and
// decimal.Decimal so amounts beyond 2^53 keep full precision.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the decimal precision assumed for EVM native tokens.
const NativeDecimals = 18

var ErrInvalidHex = errors.New("amount: invalid hex quantity")

// ParseHex parses a hex quantity ("0xde0b6b3a7640000", "de0b6b3a7640000")
// into its smallest-unit value.
//
// Rules:
//   - Empty string and bare "0x" parse as zero
//   - Leading zeros are accepted (wallets are not consistent about them)
//   - Negative or non-hex input is rejected
func ParseHex(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	return v, nil
}

// Format renders a smallest-unit amount as the shortest decimal string,
// e.g. 1500000000000000000 with 18 decimals -> "1.5".
func Format(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// FormatHex parses a hex quantity and formats it with the given decimals.
func FormatHex(s string, decimals int) (string, error) {
	v, err := ParseHex(s)
	if err != nil {
		return "", err
	}
	return Format(v, decimals), nil
}

// IsPositive reports whether a hex quantity is strictly greater than zero.
// Unparseable values count as zero.
func IsPositive(s string) bool {
	v, err := ParseHex(s)
	return err == nil && v.Sign() > 0
}
