// Package chains is the read-only registry of chain metadata: native token
// symbol, decimals and block explorer prefix, keyed by chain id.
//
// The registry is loaded once at start-up from an embedded YAML table
// (optionally replaced by an operator-supplied file) and never mutated
// afterwards, so it is safe for concurrent use without locking.
package chains

import (
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FallbackNativeToken is shown when a chain is not in the registry.
const FallbackNativeToken = "Native Tokens"

// DefaultDecimals applies to unknown chains; every EVM native token in
// practice uses 18.
const DefaultDecimals = 18

//go:embed chains.yaml
var embeddedTable []byte

var (
	ErrInvalidChainID = errors.New("chains: invalid chain id")
	ErrDuplicateChain = errors.New("chains: duplicate chain id")
)

// Entry describes a single chain.
type Entry struct {
	ChainID     string `yaml:"chain_id" json:"chainId"`
	Name        string `yaml:"name" json:"name"`
	NativeToken string `yaml:"native_token" json:"nativeToken"`
	Decimals    int    `yaml:"decimals" json:"decimals"`
	ExplorerURL string `yaml:"explorer_url" json:"explorerUrl"`
}

type table struct {
	Chains []Entry `yaml:"chains"`
}

// Registry maps chain ids to entries.
type Registry struct {
	byID map[string]Entry
}

// Default parses the embedded table. It panics on a malformed table since
// that is a build defect, not a runtime condition.
func Default() *Registry {
	r, err := Parse(embeddedTable)
	if err != nil {
		panic("chains: embedded table: " + err.Error())
	}
	return r
}

// Load reads a registry from a YAML file on disk.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
	if err != nil {
		return nil, fmt.Errorf("chains: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("chains: parse table: %w", err)
	}

	r := &Registry{byID: make(map[string]Entry, len(t.Chains))}
	for _, e := range t.Chains {
		id, err := Normalize(e.ChainID)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidChainID, e.ChainID)
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateChain, id)
		}
		e.ChainID = id
		if e.Decimals == 0 {
			e.Decimals = DefaultDecimals
		}
		r.byID[id] = e
	}
	return r, nil
}

// Normalize converts a chain id given as hex ("0x38"), decimal ("56") or
// CAIP-2 ("eip155:56") into lower-case hex without leading zeros.
func Normalize(chainID string) (string, error) {
	s := strings.TrimSpace(strings.ToLower(chainID))
	s = strings.TrimPrefix(s, "eip155:")
	if s == "" {
		return "", ErrInvalidChainID
	}

	n := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") {
		_, ok = n.SetString(s[2:], 16)
	} else {
		_, ok = n.SetString(s, 10)
	}
	if !ok || n.Sign() <= 0 {
		return "", ErrInvalidChainID
	}
	return "0x" + n.Text(16), nil
}

// Lookup returns the entry for chainID. An unknown or malformed id is not an
// error: ok is false and callers fall back to generic wording.
func (r *Registry) Lookup(chainID string) (Entry, bool) {
	id, err := Normalize(chainID)
	if err != nil {
		return Entry{}, false
	}
	e, ok := r.byID[id]
	return e, ok
}

// NativeToken returns the native token symbol or FallbackNativeToken.
func (r *Registry) NativeToken(chainID string) string {
	if e, ok := r.Lookup(chainID); ok && e.NativeToken != "" {
		return e.NativeToken
	}
	return FallbackNativeToken
}

// Decimals returns the native token decimals, DefaultDecimals when unknown.
func (r *Registry) Decimals(chainID string) int {
	if e, ok := r.Lookup(chainID); ok {
		return e.Decimals
	}
	return DefaultDecimals
}

// ExplorerAddressURL builds the explorer link for address on chainID.
func (r *Registry) ExplorerAddressURL(chainID, address string) (string, bool) {
	e, ok := r.Lookup(chainID)
	if !ok || e.ExplorerURL == "" || address == "" {
		return "", false
	}
	return e.ExplorerURL + address, true
}

// All returns every entry ordered by numeric chain id.
func (r *Registry) All() []Entry {
	out := make([]Entry, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := new(big.Int).SetString(out[i].ChainID[2:], 16)
		b, _ := new(big.Int).SetString(out[j].ChainID[2:], 16)
		return a.Cmp(b) < 0
	})
	return out
}
