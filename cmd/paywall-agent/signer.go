package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/and161185/paywall/internal/wallet"
)

var errNotConnected = errors.New("wallet not connected")

var _ wallet.Provider = (*keySigner)(nil)

// keySigner is a wallet backed by a raw hex private key. Connect registers the
// address with the paywall; the balance is the one the server holds for it.
type keySigner struct {
	key       *ecdsa.PrivateKey
	c         *client
	connected bool
	balance   decimal.Decimal
}

func newKeySigner(keyHex string, c *client) (*keySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	return &keySigner{key: key, c: c}, nil
}

func (k *keySigner) address() string { return crypto.PubkeyToAddress(k.key.PublicKey).Hex() }

// Connect registers the wallet and makes it the client identity.
func (k *keySigner) Connect(ctx context.Context) (string, error) {
	addr := k.address()
	resp, err := k.c.do(ctx, http.MethodPost, "/api/wallet/connect", map[string]string{"walletAddress": addr})
	if err != nil {
		return "", err
	}
	var out struct {
		User struct {
			USDCBalance string `json:"usdcBalance"`
		} `json:"user"`
	}
	if err := decodeInto(resp, http.StatusOK, &out); err != nil {
		return "", err
	}
	bal, err := decimal.NewFromString(out.User.USDCBalance)
	if err != nil {
		bal = decimal.Zero
	}
	k.c.wallet = addr
	k.connected, k.balance = true, bal
	return addr, nil
}

// Disconnect drops the identity and any session token held by the client.
func (k *keySigner) Disconnect(context.Context) error {
	k.connected, k.balance = false, decimal.Zero
	k.c.wallet, k.c.token = "", ""
	return nil
}

func (k *keySigner) Balance(context.Context) (decimal.Decimal, error) {
	if !k.connected {
		return decimal.Zero, errNotConnected
	}
	return k.balance, nil
}

// signPersonal returns a personal_sign signature with V in 27/28.
func (k *keySigner) signPersonal(msg string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), k.key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return "0x" + hex.EncodeToString(sig), nil
}
