package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with old hashes.
const (
	DomainDocument = "viewsync/document/v1"
	DomainExact    = "viewsync/exact/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentHash computes the content hash of a document.
// Two documents hash equal exactly when their canonical JSON is equal.
func DocumentHash(doc Object) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("DocumentHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}

// ExactHash hashes the lossless encoding of doc (see Marshal). Unlike
// DocumentHash it tells NFC from NFD strings and Int(2) from Float(2): two
// documents share an ExactHash exactly when they are Equal.
func ExactHash(doc Object) (string, error) {
	data, err := Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("ExactHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainExact, data), nil
}

// MustDocumentHash is like DocumentHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDocumentHash(doc Object) string {
	h, err := DocumentHash(doc)
	if err != nil {
		panic(err)
	}
	return h
}
