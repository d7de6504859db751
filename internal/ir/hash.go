package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for a future algorithm change.
const (
	DomainRequest    = "swimport/request/v1"
	DomainNaturalKey = "swimport/natural-key/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RequestHash identifies an import fact: the same owner enqueuing the same
// payload for the same kind yields the same hash.
func RequestHash(owner, kind string, payload Object) (string, error) {
	obj := Object{
		"owner":   String(owner),
		"kind":    String(kind),
		"payload": payload,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RequestHash: %w", err)
	}
	return hashWithDomain(DomainRequest, canonical), nil
}

// KeyHash identifies an entity by kind and natural key.
// Callers normalize string components before hashing.
func KeyHash(kind string, key Object) (string, error) {
	obj := Object{
		"kind": String(kind),
		"key":  key,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("KeyHash: %w", err)
	}
	return hashWithDomain(DomainNaturalKey, canonical), nil
}

// MustKeyHash is like KeyHash but panics on error.
// Use only in tests or with keys known to be valid.
func MustKeyHash(kind string, key Object) string {
	h, err := KeyHash(kind, key)
	if err != nil {
		panic(err)
	}
	return h
}
