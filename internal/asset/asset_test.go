package asset

import (
	"errors"
	"testing"
)

const (
	wsolAddress = "So11111111111111111111111111111111111111112"
	wethAddress = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
)

func TestNewKey(t *testing.T) {
	tests := []struct {
		name    string
		chain   string
		address string
		want    Key
		wantErr error
	}{
		{
			name:    "solana base58",
			chain:   "solana",
			address: wsolAddress,
			want:    Key{Chain: "solana", Address: wsolAddress},
		},
		{
			name:    "ethereum hex",
			chain:   "ethereum",
			address: wethAddress,
			want:    Key{Chain: "ethereum", Address: wethAddress},
		},
		{
			name:    "chain normalized to lowercase",
			chain:   "  Solana ",
			address: wsolAddress,
			want:    Key{Chain: "solana", Address: wsolAddress},
		},
		{
			name:    "unsupported chain",
			chain:   "dogechain",
			address: wsolAddress,
			wantErr: ErrInvalidChain,
		},
		{
			name:    "empty chain",
			chain:   "",
			address: wsolAddress,
			wantErr: ErrInvalidChain,
		},
		{
			name:    "hex address too short",
			chain:   "base",
			address: "0xdeadbeef",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "base58 rejects ambiguous characters",
			chain:   "solana",
			address: "O000000000000000000000000000000000000000",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "empty address",
			chain:   "arbitrum",
			address: "",
			wantErr: ErrInvalidAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewKey(tt.chain, tt.address)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey("solana:" + wsolAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.Chain != "solana" || key.Address != wsolAddress {
		t.Errorf("unexpected key: %+v", key)
	}

	if _, err := ParseKey(wsolAddress); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("missing separator: expected ErrInvalidKey, got %v", err)
	}
	if _, err := ParseKey("foo:" + wsolAddress); !errors.Is(err, ErrInvalidChain) {
		t.Errorf("bad chain: expected ErrInvalidChain, got %v", err)
	}
}

func TestKeyString_RoundTrip(t *testing.T) {
	key, err := NewKey("base", wethAddress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := ParseKey(key.String())
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if parsed != key {
		t.Errorf("round trip mismatch: %+v vs %+v", parsed, key)
	}
}
