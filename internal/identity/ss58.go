// Package identity decodes and verifies SS58-style validator addresses.
package identity

import (
	"errors"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// ErrMalformedIdentity is returned for any structurally invalid address.
var ErrMalformedIdentity = errors.New("malformed identity")

const (
	addrLen       = 35 // 1 prefix + 32 pubkey + 2 checksum
	checksumLen   = 2
	pubkeyLen     = 32
	maxIdentityLen = 128
)

var checksumPrefix = []byte("SS58PRE")

// Decoded holds the parsed components of an SS58 address.
type Decoded struct {
	Prefix byte
	PubKey [32]byte
}

// DecodeSS58 decodes and validates a base-58 address string, verifying its
// Blake2b-512 derived checksum. The address must be exactly 35 raw bytes:
// a 1-byte network prefix, a 32-byte sr25519 public key, and a 2-byte
// checksum taken from the leading bytes of Blake2b_512("SS58PRE" || prefix || pubkey).
func DecodeSS58(address string) (*Decoded, error) {
	if len(address) == 0 || len(address) > maxIdentityLen {
		return nil, ErrMalformedIdentity
	}

	raw, err := base58.Decode(address)
	if err != nil {
		return nil, ErrMalformedIdentity
	}
	if len(raw) != addrLen {
		return nil, ErrMalformedIdentity
	}

	prefix := raw[0]
	pubkey := raw[1 : 1+pubkeyLen]
	checksum := raw[1+pubkeyLen:]

	want, err := ss58Checksum(prefix, pubkey)
	if err != nil {
		return nil, ErrMalformedIdentity
	}
	if string(want) != string(checksum) {
		return nil, ErrMalformedIdentity
	}

	d := &Decoded{Prefix: prefix}
	copy(d.PubKey[:], pubkey)
	return d, nil
}

// EncodeSS58 encodes a prefix + public key pair into its base-58 address
// form, appending the Blake2b-512 derived checksum. Only tests call it.
func EncodeSS58(prefix byte, pubkey [32]byte) (string, error) {
	checksum, err := ss58Checksum(prefix, pubkey[:])
	if err != nil {
		return "", err
	}
	raw := make([]byte, 0, addrLen)
	raw = append(raw, prefix)
	raw = append(raw, pubkey[:]...)
	raw = append(raw, checksum...)
	return base58.Encode(raw), nil
}

func ss58Checksum(prefix byte, pubkey []byte) ([]byte, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, err
	}
	h.Write(checksumPrefix)
	h.Write([]byte{prefix})
	h.Write(pubkey)
	sum := h.Sum(nil)
	return sum[:checksumLen], nil
}
