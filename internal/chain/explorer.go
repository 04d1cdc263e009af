package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/and161185/paywall/internal/model"
	"github.com/and161185/paywall/internal/wallet"
)

const (
	explorerEndBlock  = "99999999"
	noTransactionsMsg = "No transactions found"
	maxExplorerBody   = 8 << 20
)

// ErrExplorer is returned when the explorer answers with a non-success status.
var ErrExplorer = errors.New("explorer error")

// ExplorerSource reads ERC-20 transfers from an etherscan compatible API (module=account&action=tokentx).
type ExplorerSource struct {
	baseURL  string
	apiKey   string
	contract string
	client   *http.Client
	retries  uint64
	backoff  time.Duration
	log      *zap.Logger
}

// ExplorerOption customises an ExplorerSource.
type ExplorerOption func(*ExplorerSource)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ExplorerOption {
	return func(s *ExplorerSource) { s.client = c }
}

// WithRetries sets how many times a failed call is retried and the pause between attempts.
func WithRetries(n uint64, backoff time.Duration) ExplorerOption {
	return func(s *ExplorerSource) { s.retries, s.backoff = n, backoff }
}

// WithLogger sets the logger used to report skipped records.
func WithLogger(log *zap.Logger) ExplorerOption {
	return func(s *ExplorerSource) { s.log = log }
}

// NewExplorerSource constructs a source for the token contract.
func NewExplorerSource(baseURL, apiKey, contract string, opts ...ExplorerOption) *ExplorerSource {
	s := &ExplorerSource{
		baseURL:  baseURL,
		apiKey:   apiKey,
		contract: contract,
		client:   &http.Client{Timeout: 10 * time.Second},
		retries:  2,
		backoff:  200 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.backoff <= 0 {
		s.backoff = time.Millisecond
	}
	return s
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type explorerTransfer struct {
	BlockNumber  string `json:"blockNumber"`
	TimeStamp    string `json:"timeStamp"`
	Hash         string `json:"hash"`
	From         string `json:"from"`
	To           string `json:"to"`
	Value        string `json:"value"`
	TokenName    string `json:"tokenName"`
	TokenSymbol  string `json:"tokenSymbol"`
	TokenDecimal string `json:"tokenDecimal"`
}

// TransfersTo lists transfers of the token to q.Recipient, newest first.
// Records that cannot be decoded are skipped.
func (s *ExplorerSource) TransfersTo(ctx context.Context, q Query) ([]model.Transfer, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "tokentx")
	params.Set("contractaddress", s.contract)
	params.Set("address", q.Recipient)
	params.Set("startblock", strconv.FormatUint(q.SinceBlock, 10))
	params.Set("endblock", explorerEndBlock)
	params.Set("sort", "desc")
	params.Set("apikey", s.apiKey)
	endpoint := s.baseURL + "?" + params.Encode()

	var resp explorerResponse
	backoff := retry.WithMaxRetries(s.retries, retry.NewConstant(s.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := s.fetch(ctx, endpoint)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.Status != "1" {
		if strings.EqualFold(resp.Message, noTransactionsMsg) {
			return []model.Transfer{}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrExplorer, resp.Message)
	}

	var raw []explorerTransfer
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		return nil, fmt.Errorf("decode explorer result: %w", err)
	}
	recipient := wallet.Lower(q.Recipient)
	from := wallet.Lower(q.From)
	out := make([]model.Transfer, 0, len(raw))
	for _, tx := range raw {
		t, err := tx.toModel()
		if err != nil {
			s.log.Warn("skip explorer record", zap.String("hash", tx.Hash), zap.Error(err))
			continue
		}
		if t.To != recipient || (from != "" && t.From != from) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *ExplorerSource) fetch(ctx context.Context, endpoint string) (explorerResponse, error) {
	var out explorerResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return out, err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return out, retry.RetryableError(err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
		return out, retry.RetryableError(fmt.Errorf("explorer http %d", res.StatusCode))
	}
	if res.StatusCode != http.StatusOK {
		return out, fmt.Errorf("explorer http %d", res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxExplorerBody))
	if err != nil {
		return out, retry.RetryableError(err)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode explorer response: %w", err)
	}
	// Rate limiting is reported in-band with status 0.
	if out.Status != "1" && strings.Contains(strings.ToLower(string(out.Result)), "rate limit") {
		return out, retry.RetryableError(fmt.Errorf("%w: %s", ErrExplorer, string(out.Result)))
	}
	return out, nil
}

func (tx explorerTransfer) toModel() (model.Transfer, error) {
	block, err := strconv.ParseUint(tx.BlockNumber, 10, 64)
	if err != nil {
		return model.Transfer{}, fmt.Errorf("bad block number %q: %w", tx.BlockNumber, err)
	}
	value, ok := new(big.Int).SetString(tx.Value, 10)
	if !ok {
		return model.Transfer{}, fmt.Errorf("bad transfer value %q", tx.Value)
	}
	t := model.Transfer{
		BlockNumber: block,
		TxHash:      strings.ToLower(tx.Hash),
		From:        wallet.Lower(tx.From),
		To:          wallet.Lower(tx.To),
		Value:       value,
		TokenName:   tx.TokenName,
		TokenSymbol: tx.TokenSymbol,
	}
	if ts, err := strconv.ParseInt(tx.TimeStamp, 10, 64); err == nil {
		t.Timestamp = time.Unix(ts, 0).UTC()
	}
	if d, err := strconv.Atoi(tx.TokenDecimal); err == nil {
		t.TokenDecimals = d
	}
	return t, nil
}
