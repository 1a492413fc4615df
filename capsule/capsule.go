// Package capsule implements the group-verifiable address encoding used for
// payment targets: "<groupId>@<encodedPayload>". The payload is never trusted
// until it verifies against the issuing group's public key.
package capsule

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	hrp       = "cap"
	separator = "@"

	// P-256 signature as fixed-width r || s.
	sigLen = 64
)

var (
	ErrMalformedCapsule   = errors.New("malformed capsule address")
	ErrVerificationFailed = errors.New("capsule address verification failed")
)

// Encode wraps payload into a capsule address issued by groupId. The group
// key signs SHA256(groupId || payload) so that neither half of the capsule
// can be swapped without failing verification.
func Encode(groupId string, payload []byte, groupKey *ecdsa.PrivateKey) (string, error) {
	if groupId == "" || strings.Contains(groupId, separator) {
		return "", fmt.Errorf("invalid group id %q", groupId)
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("missing capsule payload")
	}

	digest := capsuleDigest(groupId, payload)
	r, s, err := ecdsa.Sign(rand.Reader, groupKey, digest)
	if err != nil {
		return "", err
	}

	data := make([]byte, 0, len(payload)+sigLen)
	data = append(data, payload...)
	data = append(data, padBigInt(r)...)
	data = append(data, padBigInt(s)...)

	converted, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	// Capsules exceed the 90-character BIP173 limit, decoded with
	// DecodeNoLimit on the way back.
	encoded, err := bech32.Encode(hrp, converted)
	if err != nil {
		return "", err
	}

	return groupId + separator + encoded, nil
}

// Decode splits a capsule address into its issuing group id and raw payload
// without verifying it. The checksum still rejects corrupted encodings.
func Decode(capsule string) (string, []byte, error) {
	groupId, payload, _, err := decode(capsule)
	return groupId, payload, err
}

// Verify reports whether the capsule was issued by the holder of groupPub.
// Any single-bit mutation of a valid capsule fails either the bech32
// checksum or the signature check.
func Verify(capsule string, groupPub *ecdsa.PublicKey) bool {
	groupId, payload, sig, err := decode(capsule)
	if err != nil {
		return false
	}

	r := new(big.Int).SetBytes(sig[:sigLen/2])
	s := new(big.Int).SetBytes(sig[sigLen/2:])
	return ecdsa.Verify(groupPub, capsuleDigest(groupId, payload), r, s)
}

func decode(capsule string) (string, []byte, []byte, error) {
	idx := strings.LastIndex(capsule, separator)
	if idx <= 0 || idx == len(capsule)-1 {
		return "", nil, nil, ErrMalformedCapsule
	}
	groupId, encoded := capsule[:idx], capsule[idx+1:]

	gotHrp, converted, err := bech32.DecodeNoLimit(encoded)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: %s", ErrMalformedCapsule, err)
	}
	if gotHrp != hrp {
		return "", nil, nil, ErrMalformedCapsule
	}

	data, err := bech32.ConvertBits(converted, 5, 8, false)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: %s", ErrMalformedCapsule, err)
	}
	if len(data) <= sigLen {
		return "", nil, nil, ErrMalformedCapsule
	}

	payload := data[:len(data)-sigLen]
	sig := data[len(data)-sigLen:]
	return groupId, payload, sig, nil
}

func capsuleDigest(groupId string, payload []byte) []byte {
	h := sha256.New()
	h.Write([]byte(groupId))
	h.Write(payload)
	return h.Sum(nil)
}

func padBigInt(i *big.Int) []byte {
	buf := make([]byte, sigLen/2)
	return i.FillBytes(buf)
}

// ParsePublicKey decodes a compressed P-256 point as published by the group
// directory.
func ParsePublicKey(compressed []byte) (*ecdsa.PublicKey, error) {
	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), compressed)
	if x == nil {
		return nil, fmt.Errorf("invalid compressed P-256 point")
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}
