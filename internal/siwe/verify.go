package siwe

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	gosiwe "github.com/spruceid/siwe-go"
)

// Verify parses raw and checks that signatureHex is the message address's personal_sign over it.
// V may be 0/1 or 27/28.
func Verify(raw, signatureHex string) (*Message, error) {
	lm, err := gosiwe.ParseMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: signature length %d", ErrBadSignature, len(sig))
	}
	if _, err := lm.VerifyEIP191(signatureHex); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return fromLib(lm)
}
