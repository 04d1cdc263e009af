package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// errPaymentRequired is returned by read when the server answers 402.
var errPaymentRequired = errors.New("payment required")

// client talks to the paywall HTTP API on behalf of one agent.
type client struct {
	base   string
	agent  string
	wallet string
	token  string // optional bearer session
	http   *http.Client
}

func newClient(base, agent, wallet, token string) *client {
	return &client{
		base:   strings.TrimRight(base, "/"),
		agent:  agent,
		wallet: wallet,
		token:  token,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

type catalogItem struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Category       string `json:"category"`
	Price          string `json:"price"`
	AccessEndpoint string `json:"accessEndpoint"`
}

type catalog struct {
	Platform string        `json:"platform"`
	Currency string        `json:"currency"`
	Network  string        `json:"network"`
	Items    []catalogItem `json:"items"`
}

// challenge is the payment block of a 402 answer, merged from headers and body.
type challenge struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Recipient string `json:"recipient"`
	Network   string `json:"network"`
	Endpoint  string `json:"paymentEndpoint"`
}

type article struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Price     string `json:"price"`
	HasAccess bool   `json:"hasAccess"`
	Content   string `json:"content"`
}

type purchase struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	AccessEndpoint string `json:"accessEndpoint"`
	Payment        struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
		Amount string `json:"amount"`
		TxHash string `json:"txHash"`
	} `json:"payment"`
	Content *struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"content"`
}

// apiError is a non-2xx answer the caller did not expect.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

func (c *client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "AI-Agent/"+version)
	req.Header.Set("X-AI-Agent", c.agent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

func decodeInto(resp *http.Response, want int, out any) error {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		var m struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &m)
		if m.Message == "" {
			m.Message = strings.TrimSpace(string(raw))
		}
		return &apiError{Status: resp.StatusCode, Message: m.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// discover lists the machine-readable catalogue.
func (c *client) discover(ctx context.Context) (*catalog, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/ai/discover", nil)
	if err != nil {
		return nil, err
	}
	var out catalog
	if err := decodeInto(resp, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// read requests an article as the agent wallet. A 402 yields the challenge and errPaymentRequired.
func (c *client) read(ctx context.Context, id int64) (*article, *challenge, error) {
	path := "/api/articles/" + strconv.FormatInt(id, 10)
	if c.wallet != "" {
		path += "?wallet=" + c.wallet
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		ch := challengeFromHeaders(resp.Header)
		var body struct {
			Payment challenge `json:"payment"`
		}
		if err := decodeInto(resp, http.StatusPaymentRequired, &body); err == nil && ch.Amount == "" {
			ch = body.Payment
		}
		return nil, &ch, errPaymentRequired
	}
	var out article
	if err := decodeInto(resp, http.StatusOK, &out); err != nil {
		return nil, nil, err
	}
	return &out, nil, nil
}

func challengeFromHeaders(h http.Header) challenge {
	return challenge{
		Amount:    h.Get("X-Payment-Amount"),
		Currency:  h.Get("X-Payment-Currency"),
		Recipient: h.Get("X-Payment-Recipient"),
		Network:   h.Get("X-Payment-Network"),
		Endpoint:  h.Get("X-Payment-Endpoint"),
	}
}

// purchase runs the one-shot agent purchase.
func (c *client) purchase(ctx context.Context, id int64, meta map[string]any) (*purchase, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/ai/purchase", map[string]any{
		"articleId":   id,
		"agentId":     c.agent,
		"agentWallet": c.wallet,
		"metadata":    meta,
	})
	if err != nil {
		return nil, err
	}
	var out purchase
	if err := decodeInto(resp, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// nonce asks for a sign-in message for the agent wallet.
func (c *client) nonce(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/auth/nonce?address="+c.wallet, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := decodeInto(resp, http.StatusOK, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// verify exchanges a signed message for a session token.
func (c *client) verify(ctx context.Context, message, signature string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/verify", map[string]string{"message": message, "signature": signature})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeInto(resp, http.StatusOK, nil)
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == sessionCookie {
			return ck.Value, nil
		}
	}
	return "", errors.New("no session cookie in response")
}

// runResult is what one discover-read-pay-read pass produced.
type runResult struct {
	Article   catalogItem `json:"article"`
	Challenge *challenge  `json:"challenge,omitempty"`
	Purchase  *purchase   `json:"purchase,omitempty"`
	Content   string      `json:"content"`
}

// run discovers the catalogue, picks the first article within budget (zero means any),
// reads it, pays on 402 and reads it again.
func (c *client) run(ctx context.Context, budget decimal.Decimal, meta map[string]any) (*runResult, error) {
	cat, err := c.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	item, ok := pickWithin(cat.Items, budget)
	if !ok {
		return nil, fmt.Errorf("no article within budget %s", budget)
	}
	res := &runResult{Article: item}

	art, ch, err := c.read(ctx, item.ID)
	switch {
	case err == nil:
		res.Content = art.Content
		return res, nil
	case !errors.Is(err, errPaymentRequired):
		return nil, fmt.Errorf("read: %w", err)
	}
	res.Challenge = ch

	p, err := c.purchase(ctx, item.ID, meta)
	if err != nil {
		return nil, fmt.Errorf("purchase: %w", err)
	}
	res.Purchase = p

	art, _, err = c.read(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("read after purchase: %w", err)
	}
	res.Content = art.Content
	return res, nil
}

func pickWithin(items []catalogItem, budget decimal.Decimal) (catalogItem, bool) {
	for _, it := range items {
		price, err := decimal.NewFromString(it.Price)
		if err != nil {
			continue
		}
		if budget.IsZero() || price.LessThanOrEqual(budget) {
			return it, true
		}
	}
	return catalogItem{}, false
}
