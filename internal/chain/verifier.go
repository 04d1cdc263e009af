package chain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/wallet"
)

// Verifier matches claimed payments against a transfer Source.
// Lookups are time-bounded; any upstream failure reads as "nothing found".
type Verifier struct {
	src      Source
	decimals int
	timeout  time.Duration
	log      *zap.Logger
}

// NewVerifier wraps src. decimals is the token precision used for amount conversion.
func NewVerifier(src Source, decimals int, timeout time.Duration, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Verifier{src: src, decimals: decimals, timeout: timeout, log: log}
}

// FindQualifyingTransfer returns a transfer from payer to recipient worth at least minimum.
func (v *Verifier) FindQualifyingTransfer(ctx context.Context, payer, recipient string, minimum decimal.Decimal) (*model.Transfer, bool) {
	payer, recipient = wallet.Lower(payer), wallet.Lower(recipient)
	if payer == "" || recipient == "" {
		return nil, false
	}
	transfers, ok := v.lookup(ctx, Query{Recipient: recipient, From: payer})
	if !ok {
		return nil, false
	}
	need := ToBaseUnits(minimum, v.decimals)
	for i := range transfers {
		t := transfers[i]
		if t.Value == nil || t.From != payer || t.To != recipient {
			continue
		}
		if t.Value.Cmp(need) >= 0 {
			return &t, true
		}
	}
	return nil, false
}

// HasQualifyingTransfer reports whether FindQualifyingTransfer finds anything.
func (v *Verifier) HasQualifyingTransfer(ctx context.Context, payer, recipient string, minimum decimal.Decimal) bool {
	_, ok := v.FindQualifyingTransfer(ctx, payer, recipient, minimum)
	return ok
}

// ListTransfersTo returns every transfer to recipient since sinceBlock. Failures yield an empty list.
func (v *Verifier) ListTransfersTo(ctx context.Context, recipient string, sinceBlock uint64) []model.Transfer {
	transfers, ok := v.lookup(ctx, Query{Recipient: wallet.Lower(recipient), SinceBlock: sinceBlock})
	if !ok {
		return []model.Transfer{}
	}
	return transfers
}

// Summary aggregates chain-observed payments to a recipient.
type Summary struct {
	Transfers    int             `json:"transfers"`
	Qualifying   int             `json:"qualifying"`
	UniquePayers int             `json:"uniquePayers"`
	Volume       decimal.Decimal `json:"volume"`
}

// Summarize counts transfers to recipient worth at least price, ignoring senders in excluded.
func (v *Verifier) Summarize(ctx context.Context, recipient string, price decimal.Decimal, excluded ...string) Summary {
	skip := make(map[string]struct{}, len(excluded))
	for _, e := range excluded {
		skip[wallet.Lower(e)] = struct{}{}
	}
	need := ToBaseUnits(price, v.decimals)
	payers := map[string]struct{}{}
	s := Summary{Volume: decimal.Zero}
	for _, t := range v.ListTransfersTo(ctx, recipient, 0) {
		s.Transfers++
		if _, ok := skip[t.From]; ok || t.Value == nil || t.Value.Cmp(need) < 0 {
			continue
		}
		s.Qualifying++
		payers[t.From] = struct{}{}
		s.Volume = s.Volume.Add(FromBaseUnits(t.Value, v.decimals))
	}
	s.UniquePayers = len(payers)
	return s
}

func (v *Verifier) lookup(ctx context.Context, q Query) ([]model.Transfer, bool) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	transfers, err := v.src.TransfersTo(ctx, q)
	if err != nil {
		v.log.Warn("chain lookup failed",
			zap.String("recipient", q.Recipient),
			zap.String("from", q.From),
			zap.Error(err),
		)
		return nil, false
	}
	return transfers, true
}
