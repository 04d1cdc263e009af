// Package chain verifies payments against token transfers reported by an external indexer.
package chain

import (
	"context"

	"github.com/and161185/paywall/internal/model"
)

// Query selects token transfers to Recipient. From and SinceBlock are optional filters.
type Query struct {
	Recipient  string
	From       string
	SinceBlock uint64
}

// Source reports read-only token transfers.
type Source interface {
	TransfersTo(ctx context.Context, q Query) ([]model.Transfer, error)
}

// Disabled is a Source that never reports any transfer.
type Disabled struct{}

// TransfersTo always returns an empty list.
func (Disabled) TransfersTo(context.Context, Query) ([]model.Transfer, error) {
	return nil, nil
}
