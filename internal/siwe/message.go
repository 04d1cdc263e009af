// Package siwe adapts github.com/spruceid/siwe-go to the sign-in flow:
// messages are built and parsed by the library and exposed as plain values.
package siwe

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	gosiwe "github.com/spruceid/siwe-go"

	"github.com/and161185/paywall/internal/wallet"
)

// Errors returned by Parse, Validate and Verify.
var (
	ErrMalformed    = errors.New("siwe: malformed message")
	ErrDomain       = errors.New("siwe: domain mismatch")
	ErrExpired      = errors.New("siwe: message expired")
	ErrNotYetValid  = errors.New("siwe: message not yet valid")
	ErrBadSignature = errors.New("siwe: signature does not match address")
	ErrVersion      = errors.New("siwe: unsupported version")
)

// Message is an EIP-4361 sign-in request.
type Message struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime time.Time // zero when absent
	NotBefore      time.Time // zero when absent
	RequestID      string
	Resources      []string
}

// Encode renders the message in the canonical text form that wallets sign.
func (m Message) Encode() (string, error) {
	lm, err := m.lib()
	if err != nil {
		return "", err
	}
	return lm.String(), nil
}

// String is Encode without the error; an unencodable message renders as "".
func (m Message) String() string {
	s, _ := m.Encode()
	return s
}

func (m Message) lib() (*gosiwe.Message, error) {
	if m.Version != "" && m.Version != "1" {
		return nil, ErrVersion
	}
	if !wallet.IsAddress(m.Address) {
		return nil, fmt.Errorf("%w: bad address", ErrMalformed)
	}
	opts := map[string]interface{}{"chainId": int(m.ChainID)}
	if m.Statement != "" {
		opts["statement"] = m.Statement
	}
	if !m.IssuedAt.IsZero() {
		opts["issuedAt"] = m.IssuedAt
	}
	if !m.ExpirationTime.IsZero() {
		opts["expirationTime"] = m.ExpirationTime
	}
	if !m.NotBefore.IsZero() {
		opts["notBefore"] = m.NotBefore
	}
	if m.RequestID != "" {
		opts["requestId"] = m.RequestID
	}
	if len(m.Resources) > 0 {
		res := make([]url.URL, 0, len(m.Resources))
		for _, r := range m.Resources {
			u, err := url.Parse(r)
			if err != nil {
				return nil, fmt.Errorf("%w: bad resource %q", ErrMalformed, r)
			}
			res = append(res, *u)
		}
		opts["resources"] = res
	}
	lm, err := gosiwe.InitMessage(m.Domain, m.Address, m.URI, m.Nonce, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return lm, nil
}

// Parse reads the text form produced by Encode or by a wallet library.
func Parse(s string) (*Message, error) {
	lm, err := gosiwe.ParseMessage(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fromLib(lm)
}

func fromLib(lm *gosiwe.Message) (*Message, error) {
	uri := lm.GetURI()
	m := &Message{
		Domain:  lm.GetDomain(),
		Address: lm.GetAddress().Hex(),
		URI:     uri.String(),
		Version: lm.GetVersion(),
		ChainID: int64(lm.GetChainID()),
		Nonce:   lm.GetNonce(),
	}
	if st := lm.GetStatement(); st != nil {
		m.Statement = *st
	}
	if id := lm.GetRequestID(); id != nil {
		m.RequestID = *id
	}
	for _, r := range lm.GetResources() {
		m.Resources = append(m.Resources, r.String())
	}
	var err error
	if m.IssuedAt, err = parseTime(lm.GetIssuedAt()); err != nil {
		return nil, err
	}
	if exp := lm.GetExpirationTime(); exp != nil {
		if m.ExpirationTime, err = parseTime(*exp); err != nil {
			return nil, err
		}
	}
	if nb := lm.GetNotBefore(); nb != nil {
		if m.NotBefore, err = parseTime(*nb); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Validate checks the message against the expected domain and the current time.
func (m *Message) Validate(domain string, now time.Time) error {
	if m.Version != "1" {
		return ErrVersion
	}
	if !strings.EqualFold(m.Domain, domain) {
		return ErrDomain
	}
	lm, err := m.lib()
	if err != nil {
		return err
	}
	if _, err := lm.ValidAt(now); err != nil {
		var expired *gosiwe.ExpiredMessage
		if errors.As(err, &expired) {
			return ErrExpired
		}
		return ErrNotYetValid
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, s)
	}
	return t, nil
}
