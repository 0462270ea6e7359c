package screening

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbd888/txinsight/internal/detect"
	"github.com/mbd888/txinsight/internal/risk"
	"github.com/mbd888/txinsight/internal/snapstate"
)

// ErrBytecodeUnavailable is returned (wrapped) by a Host that has no way to
// read code on the active chain.
var ErrBytecodeUnavailable = errors.New("screening: bytecode lookup unavailable")

// Host is the runtime the engine evaluates inside: saved credentials, the
// active chain and on-chain code lookups.
type Host interface {
	// GetState returns the saved credentials, or nil when none exist.
	GetState(ctx context.Context) (*snapstate.Credentials, error)
	SetState(ctx context.Context, creds *snapstate.Credentials) error
	// ChainID returns the active chain as a hex string.
	ChainID(ctx context.Context) (string, error)
	Bytecode(ctx context.Context, address string) ([]byte, error)
}

// Fetcher issues one detection call.
type Fetcher interface {
	FetchRisk(ctx context.Context, req detect.Request) (*risk.Report, error)
}

// CodeReader reads contract code on the chains it has endpoints for.
type CodeReader interface {
	Has(chainID string) bool
	CodeAt(ctx context.Context, chainID, address string) ([]byte, error)
}

// RequestHost is a Host bound to one request: a fixed chain id, a user
// address whose credentials live in a Store, and a CodeReader.
type RequestHost struct {
	chainID string
	user    string
	store   snapstate.Store
	code    CodeReader
}

// NewRequestHost binds a host to chainID and user. Lookups on chains code
// has no endpoint for (or any lookup when code is nil) report
// ErrBytecodeUnavailable.
func NewRequestHost(chainID, user string, store snapstate.Store, code CodeReader) *RequestHost {
	return &RequestHost{chainID: chainID, user: user, store: store, code: code}
}

func (h *RequestHost) GetState(ctx context.Context) (*snapstate.Credentials, error) {
	return snapstate.Lookup(ctx, h.store, h.user)
}

func (h *RequestHost) SetState(ctx context.Context, creds *snapstate.Credentials) error {
	return h.store.Put(ctx, creds)
}

func (h *RequestHost) ChainID(context.Context) (string, error) {
	return h.chainID, nil
}

func (h *RequestHost) Bytecode(ctx context.Context, address string) ([]byte, error) {
	if h.code == nil || !h.code.Has(h.chainID) {
		return nil, fmt.Errorf("%w on chain %s", ErrBytecodeUnavailable, h.chainID)
	}
	return h.code.CodeAt(ctx, h.chainID, address)
}
