// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strconv"
)

// Ed25519Signer signs HTTP remote requests per the wire contract:
// X-Wild-Signature is a base64 Ed25519 signature over
// "METHOD\nPATH\nTIMESTAMP", X-Wild-Timestamp is the unix-seconds timestamp
// in decimal.
type Ed25519Signer struct {
	PrivateKey ed25519.PrivateKey
}

// NewEd25519Signer wraps an existing private key. ErrMissingPrivateKey (from
// package wit) is returned by callers that need one but don't have it; this
// constructor just validates the key shape.
func NewEd25519Signer(key ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("remote: invalid ed25519 private key size %d", len(key))
	}
	return &Ed25519Signer{PrivateKey: key}, nil
}

func (s *Ed25519Signer) Sign(method, path string, timestamp int64) (string, string) {
	tsHeader := strconv.FormatInt(timestamp, 10)
	msg := fmt.Sprintf("%s\n%s\n%s", method, path, tsHeader)
	sig := ed25519.Sign(s.PrivateKey, []byte(msg))
	return base64.StdEncoding.EncodeToString(sig), tsHeader
}

// VerifySignature checks a signature produced by Sign, for backends that
// need to authenticate incoming signed writes themselves.
func VerifySignature(pub ed25519.PublicKey, method, path, timestamp, signatureB64 string) bool {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	msg := fmt.Sprintf("%s\n%s\n%s", method, path, timestamp)
	return ed25519.Verify(pub, []byte(msg), sig)
}
