// Package identity recovers wallet public keys from EIP-191 personal-sign
// signatures and registers them as screening credentials.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mbd888/txinsight/internal/logging"
	"github.com/mbd888/txinsight/internal/metrics"
	"github.com/mbd888/txinsight/internal/snapstate"
)

var (
	ErrInvalidSignature = errors.New("identity: invalid signature")
	ErrAddressMismatch  = errors.New("identity: signature does not match address")
	ErrInvalidAddress   = errors.New("identity: invalid address")
	ErrEmptyMessage     = errors.New("identity: message required")
)

// HashMessage returns keccak256("\x19Ethereum Signed Message:\n" + len + message).
func HashMessage(message string) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return crypto.Keccak256([]byte(prefix + message))
}

// decodeSignature parses a 65 byte r||s||v signature, with or without 0x.
func decodeSignature(signatureHex string) ([]byte, error) {
	s := strings.TrimSpace(signatureHex)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}
	// Wallets emit v as 27/28, Ecrecover wants 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	return sig, nil
}

// RecoverPublicKey returns the uncompressed secp256k1 public key (65 bytes,
// hex without 0x) that produced signatureHex over message.
func RecoverPublicKey(message, signatureHex string) (string, error) {
	sig, err := decodeSignature(signatureHex)
	if err != nil {
		return "", err
	}
	pub, err := crypto.Ecrecover(HashMessage(message), sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return common.Bytes2Hex(pub), nil
}

// AddressOf derives the lower-cased address of a hex public key.
func AddressOf(publicKeyHex string) (string, error) {
	pub, err := crypto.UnmarshalPubkey(common.FromHex(publicKeyHex))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// RecoverAddress recovers the signer address of message.
func RecoverAddress(message, signatureHex string) (string, error) {
	pub, err := RecoverPublicKey(message, signatureHex)
	if err != nil {
		return "", err
	}
	return AddressOf(pub)
}

// Registrar verifies key registrations and saves them.
type Registrar struct {
	store snapstate.Store
}

// NewRegistrar creates a Registrar backed by store.
func NewRegistrar(store snapstate.Store) *Registrar {
	return &Registrar{store: store}
}

// Register recovers the public key from signature, checks that it belongs
// to from and persists the credentials. Re-registering replaces the old key.
func (r *Registrar) Register(ctx context.Context, from, message, signature string) (creds *snapstate.Credentials, err error) {
	defer func() {
		result := "ok"
		switch {
		case errors.Is(err, ErrAddressMismatch):
			result = "mismatch"
		case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrEmptyMessage):
			result = "invalid"
		case err != nil:
			result = "error"
		}
		metrics.KeyRegistrationsTotal.WithLabelValues(result).Inc()
	}()

	if !common.IsHexAddress(from) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, from)
	}
	if message == "" {
		return nil, ErrEmptyMessage
	}

	pub, err := RecoverPublicKey(message, signature)
	if err != nil {
		return nil, err
	}
	addr, err := AddressOf(pub)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(addr, from) {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrAddressMismatch, strings.ToLower(from), addr)
	}

	creds = &snapstate.Credentials{
		PublicKey:        pub,
		UserAddress:      snapstate.Key(from),
		MessageSignature: signature,
	}
	if err := r.store.Put(ctx, creds); err != nil {
		return nil, fmt.Errorf("identity: save credentials: %w", err)
	}

	logging.L(ctx).Info("public key registered", "user", creds.UserAddress)
	return creds, nil
}
