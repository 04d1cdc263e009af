// Package crypto generates the random material the server hands out: nonces and synthetic transaction ids.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strconv"
	"time"
)

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewNonce returns an alphanumeric sign-in nonce (EIP-4361 requires at least 8 chars).
func NewNonce(n int) (string, error) {
	if n < 8 {
		n = 8
	}
	out := make([]byte, n)
	max := big.NewInt(int64(len(nonceAlphabet)))
	for i := range out {
		k, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = nonceAlphabet[k.Int64()]
	}
	return string(out), nil
}

// SyntheticTxHash returns a 32-byte 0x-prefixed hash for simulated confirmations.
func SyntheticTxHash() (string, error) {
	b, err := RandBytes(32)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}

// AgentTxID returns the server-asserted transaction id used for agent payments: ai_<unixms>_<rand>.
func AgentTxID(now time.Time) (string, error) {
	b, err := RandBytes(6)
	if err != nil {
		return "", err
	}
	return "ai_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + hex.EncodeToString(b), nil
}
