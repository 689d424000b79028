// Package asset handles token asset identity: the (chain, address) pair
// that uniquely names one token regardless of how many positions or
// wallets reference it.
package asset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Supported chains.
const (
	ChainSolana   = "solana"
	ChainEthereum = "ethereum"
	ChainBase     = "base"
	ChainArbitrum = "arbitrum"
)

var validChains = map[string]bool{
	ChainSolana:   true,
	ChainEthereum: true,
	ChainBase:     true,
	ChainArbitrum: true,
}

// addressRegex accepts base58 (Solana) and 0x-hex (EVM) token addresses.
var addressRegex = regexp.MustCompile(
	`^(0x[0-9a-fA-F]{40}|[1-9A-HJ-NP-Za-km-z]{32,44})$`,
)

var (
	ErrInvalidKey     = errors.New("asset: invalid asset key format")
	ErrInvalidChain   = errors.New("asset: unsupported chain")
	ErrInvalidAddress = errors.New("asset: invalid token address")
)

// Key identifies one token asset. Two positions on the same (chain,
// address) under different wallets collapse to the same Key.
type Key struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
}

// NewKey validates and normalizes a (chain, address) pair.
func NewKey(chain, address string) (Key, error) {
	chain = strings.ToLower(strings.TrimSpace(chain))
	address = strings.TrimSpace(address)

	if !validChains[chain] {
		return Key{}, fmt.Errorf("%w: %s", ErrInvalidChain, chain)
	}
	if !addressRegex.MatchString(address) {
		return Key{}, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	return Key{Chain: chain, Address: address}, nil
}

// ParseKey parses a "chain:address" string.
// Example: solana:So11111111111111111111111111111111111111112
func ParseKey(s string) (Key, error) {
	chain, address, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, fmt.Errorf("%w: %s (expected chain:address)", ErrInvalidKey, s)
	}
	return NewKey(chain, address)
}

// String renders the key in its canonical "chain:address" form.
func (k Key) String() string {
	return k.Chain + ":" + k.Address
}
