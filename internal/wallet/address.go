// Package wallet normalises wallet identities and declares the wallet-provider capability.
package wallet

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Normalize returns the canonical (lowercase, 0x-prefixed) form of a hex address.
// ok is false for anything that is not a 0x-prefixed 20-byte hex address.
func Normalize(addr string) (string, bool) {
	addr = strings.TrimSpace(addr)
	if !IsAddress(addr) {
		return "", false
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), true
}

// IsAddress reports whether addr is a 0x-prefixed 20-byte hex address.
func IsAddress(addr string) bool {
	return strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr)
}

// Lower lowercases without validation; used where the input is already trusted.
func Lower(addr string) string { return strings.ToLower(strings.TrimSpace(addr)) }

// Equal compares two addresses case-insensitively. Empty never equals anything.
func Equal(a, b string) bool {
	a, b = Lower(a), Lower(b)
	return a != "" && a == b
}

// Provider is the capability every client-side wallet integration exposes.
// Adapters live in the clients (the agent CLI key signer is one); the server only sees the identity they produce.
type Provider interface {
	Connect(ctx context.Context) (address string, err error)
	Disconnect(ctx context.Context) error
	Balance(ctx context.Context) (decimal.Decimal, error)
}
