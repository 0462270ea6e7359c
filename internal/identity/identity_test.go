package identity

import (
	"context"
	"crypto/ecdsa"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txinsight/internal/snapstate"
)

func signPersonal(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(HashMessage(message), key)
	require.NoError(t, err)
	sig[64] += 27
	return hexutil.Encode(sig)
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func TestHashMessage_KnownVector(t *testing.T) {
	// keccak256("\x19Ethereum Signed Message:\n5hello")
	got := common.Bytes2Hex(HashMessage("hello"))
	assert.Equal(t, "50b2c43fd39106bafbba0da34fc430e1f91e3c96ea2acee2bc34119f92b37750", got)
}

func TestRecoverPublicKey(t *testing.T) {
	key, addr := newKey(t)
	sig := signPersonal(t, key, "register txinsight")

	pub, err := RecoverPublicKey("register txinsight", sig)
	require.NoError(t, err)
	assert.Equal(t, common.Bytes2Hex(crypto.FromECDSAPub(&key.PublicKey)), pub)
	assert.Len(t, pub, 130)

	got, err := AddressOf(pub)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	// Without 0x prefix.
	got, err = RecoverAddress("register txinsight", strings.TrimPrefix(sig, "0x"))
	require.NoError(t, err)
	assert.Equal(t, addr, got)
}

func TestRecoverPublicKey_Invalid(t *testing.T) {
	tests := []struct {
		name string
		sig  string
	}{
		{"not hex", "0xzz"},
		{"too short", "0x1234"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RecoverPublicKey("msg", tt.sig)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

func TestRegistrar_Register(t *testing.T) {
	store := snapstate.NewMemoryStore()
	r := NewRegistrar(store)
	key, addr := newKey(t)
	sig := signPersonal(t, key, "hello")

	mixed := crypto.PubkeyToAddress(key.PublicKey).Hex()
	creds, err := r.Register(context.Background(), mixed, "hello", sig)
	require.NoError(t, err)
	assert.Equal(t, addr, creds.UserAddress)
	assert.Equal(t, sig, creds.MessageSignature)

	saved, err := store.Get(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, creds.PublicKey, saved.PublicKey)
}

func TestRegistrar_RegisterRejects(t *testing.T) {
	r := NewRegistrar(snapstate.NewMemoryStore())
	key, _ := newKey(t)
	_, other := newKey(t)
	sig := signPersonal(t, key, "hello")

	_, err := r.Register(context.Background(), other, "hello", sig)
	assert.ErrorIs(t, err, ErrAddressMismatch)

	_, err = r.Register(context.Background(), "nope", "hello", sig)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = r.Register(context.Background(), other, "", sig)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = r.Register(context.Background(), other, "hello", "0xdead")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
