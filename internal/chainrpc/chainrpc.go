// Package chainrpc keeps one lazily dialed JSON-RPC client per configured
// chain and answers the on-chain lookups screening needs.
package chainrpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/txinsight/internal/chains"
	"github.com/mbd888/txinsight/internal/retry"
)

var (
	ErrNoEndpoint      = errors.New("chainrpc: no endpoint for chain")
	ErrInvalidAddress  = errors.New("chainrpc: invalid address")
	ErrChainIDMismatch = errors.New("chainrpc: endpoint serves a different chain")
)

// Client abstracts the go-ethereum client for testing.
type Client interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Dialer opens a Client for an endpoint URL.
type Dialer func(ctx context.Context, url string) (Client, error)

func dialEthclient(ctx context.Context, url string) (Client, error) {
	return ethclient.DialContext(ctx, url)
}

// Option configures a Pool.
type Option func(*Pool)

// WithDialer replaces ethclient dialing.
func WithDialer(d Dialer) Option {
	return func(p *Pool) { p.dial = d }
}

// WithRetry sets the retry policy for reads.
func WithRetry(policy retry.Policy) Option {
	return func(p *Pool) { p.policy = policy }
}

// Pool maps chain ids to RPC clients.
type Pool struct {
	mu      sync.Mutex
	urls    map[string]string
	clients map[string]Client
	dial    Dialer
	policy  retry.Policy
}

// NewPool creates a pool from a chain id -> URL map. Keys may use any form
// chains.Normalize accepts.
func NewPool(urls map[string]string, opts ...Option) (*Pool, error) {
	p := &Pool{
		urls:    make(map[string]string, len(urls)),
		clients: make(map[string]Client),
		dial:    dialEthclient,
		policy:  retry.DefaultPolicy,
	}
	for id, url := range urls {
		norm, err := chains.Normalize(id)
		if err != nil {
			return nil, fmt.Errorf("chainrpc: endpoint key %q: %w", id, err)
		}
		p.urls[norm] = url
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Has reports whether chainID has an endpoint.
func (p *Pool) Has(chainID string) bool {
	norm, err := chains.Normalize(chainID)
	if err != nil {
		return false
	}
	_, ok := p.urls[norm]
	return ok
}

// Chains lists configured chain ids.
func (p *Pool) Chains() []string {
	out := make([]string, 0, len(p.urls))
	for id := range p.urls {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *Pool) client(ctx context.Context, chainID string) (Client, string, error) {
	norm, err := chains.Normalize(chainID)
	if err != nil {
		return nil, "", fmt.Errorf("%w %q", ErrNoEndpoint, chainID)
	}
	url, ok := p.urls[norm]
	if !ok {
		return nil, "", fmt.Errorf("%w %s", ErrNoEndpoint, norm)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[norm]; ok {
		return c, norm, nil
	}
	c, err := p.dial(ctx, url)
	if err != nil {
		return nil, "", fmt.Errorf("chainrpc: dial %s: %w", norm, err)
	}
	p.clients[norm] = c
	return c, norm, nil
}

// CodeAt returns the code deployed at address on chainID at the latest
// block. An externally owned account has empty code.
func (p *Pool) CodeAt(ctx context.Context, chainID, address string) ([]byte, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	c, _, err := p.client(ctx, chainID)
	if err != nil {
		return nil, err
	}

	var code []byte
	err = p.policy.Run(ctx, func() error {
		var callErr error
		code, callErr = c.CodeAt(ctx, common.HexToAddress(address), nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("chainrpc: eth_getCode %s: %w", address, err)
	}
	return code, nil
}

// Verify dials every endpoint and checks that it serves the chain it is
// configured for.
func (p *Pool) Verify(ctx context.Context) error {
	var errs []error
	for _, id := range p.Chains() {
		c, norm, err := p.client(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var got *big.Int
		err = p.policy.Run(ctx, func() error {
			var callErr error
			got, callErr = c.ChainID(ctx)
			return callErr
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("chainrpc: eth_chainId %s: %w", norm, err))
			continue
		}
		if "0x"+got.Text(16) != norm {
			errs = append(errs, fmt.Errorf("%w: configured %s, got 0x%s", ErrChainIDMismatch, norm, got.Text(16)))
		}
	}
	return errors.Join(errs...)
}

// Close closes every dialed client.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}
