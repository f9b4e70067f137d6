// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// VerifyHMAC checks an HMAC-SHA256 hex signature over body, the scheme
// GitHub uses for X-Hub-Signature-256. The "sha256=" prefix is
// accepted but not required. The comparison is constant-time.
func VerifyHMAC(secret, body []byte, signature string) error {
	if len(secret) == 0 {
		return errors.New("webhook HMAC: secret is empty")
	}
	if len(body) == 0 {
		return errors.New("webhook HMAC: body is empty")
	}
	if signature == "" {
		return errors.New("webhook HMAC: signature is empty")
	}

	hexSignature := strings.TrimPrefix(signature, "sha256=")

	signatureBytes, err := hex.DecodeString(hexSignature)
	if err != nil {
		return fmt.Errorf("webhook HMAC: invalid hex signature: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, signatureBytes) != 1 {
		return errors.New("webhook HMAC: signature mismatch")
	}
	return nil
}

// VerifyBearer checks a shared-token Authorization header, the scheme
// the website uses. The "Bearer " prefix is accepted but not required.
// The comparison is constant-time.
func VerifyBearer(secret []byte, authorization string) error {
	if len(secret) == 0 {
		return errors.New("webhook bearer: secret is empty")
	}
	if authorization == "" {
		return errors.New("webhook bearer: authorization header is empty")
	}

	token := strings.TrimPrefix(authorization, "Bearer ")

	if subtle.ConstantTimeCompare(secret, []byte(token)) != 1 {
		return errors.New("webhook bearer: token mismatch")
	}
	return nil
}
