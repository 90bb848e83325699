package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrSignatureMissing reports that a secret is configured but the
	// request carried no signature header.
	ErrSignatureMissing = errors.New("missing payload signature")

	// ErrSignatureInvalid reports a signature that is malformed, uses an
	// unsupported algorithm, or does not match the payload.
	ErrSignatureInvalid = errors.New("invalid payload signature")
)

// verifySignature checks a GitHub X-Hub-Signature-256 header value against
// the HMAC-SHA256 of the raw payload bytes. The secret must be non-empty;
// the caller decides what running without a secret means.
//
// Only "sha256=<hex>" signatures are supported; anything else is rejected.
// The comparison is constant-time so response timing does not reveal where
// the first differing byte sits.
func verifySignature(provided string, payload []byte, secret string) error {
	if provided == "" {
		return ErrSignatureMissing
	}

	hexSig, ok := strings.CutPrefix(provided, "sha256=")
	if !ok {
		return ErrSignatureInvalid
	}
	providedMAC, err := hex.DecodeString(hexSig)
	if err != nil {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expectedMAC := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expectedMAC, providedMAC) != 1 {
		return ErrSignatureInvalid
	}
	return nil
}

// computeSignature returns the hex HMAC-SHA256 of a payload. Used by tests
// to build valid signature headers.
func computeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
