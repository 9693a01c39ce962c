package identity

import (
	"encoding/hex"
	"errors"

	sr25519 "github.com/ChainSafe/go-schnorrkel"
)

// ErrInvalidSignature is returned when a signature fails to verify or is
// malformed (wrong length, bad hex, bad curve point).
var ErrInvalidSignature = errors.New("invalid signature")

const (
	signatureHexLen = 128 // 64 raw bytes, hex-encoded
	maxSigHexLen    = 256
)

// signingContext is the fixed Substrate domain-separation tag used when
// hashing the message prior to sr25519 verification.
var signingContext = []byte("substrate")

// VerifySignature verifies that sigHex is a valid sr25519 signature, under
// the Substrate signing context, over concat(identity, nonce) by the
// public key embedded in decoded.
func VerifySignature(decoded *Decoded, identityStr, nonce, sigHex string) error {
	if len(sigHex) == 0 || len(sigHex) > maxSigHexLen {
		return ErrInvalidSignature
	}

	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil || len(sigBytes) != 64 {
		return ErrInvalidSignature
	}
	var sigArr [64]byte
	copy(sigArr[:], sigBytes)

	sig := &sr25519.Signature{}
	if err := sig.Decode(sigArr); err != nil {
		return ErrInvalidSignature
	}

	pub, err := sr25519.NewPublicKey(decoded.PubKey)
	if err != nil {
		return ErrInvalidSignature
	}

	msg := make([]byte, 0, len(identityStr)+len(nonce))
	msg = append(msg, identityStr...)
	msg = append(msg, nonce...)

	transcript := sr25519.NewSigningContext(signingContext, msg)

	ok, err := pub.Verify(sig, transcript)
	if err != nil || !ok {
		return ErrInvalidSignature
	}
	return nil
}
