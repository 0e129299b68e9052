// Package payments verifies payment-vendor webhook signatures.
package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

// DefaultTolerance bounds how stale a signed timestamp may be.
const DefaultTolerance = 5 * time.Minute

// Verifier checks the vendor's "t=<unix>,v1=<hex hmac>" signature header.
// The signed payload is "<t>.<raw body>", HMAC-SHA256 under the shared secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
}

// NewVerifier creates a Verifier. A zero tolerance falls back to the default.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance}
}

// Verify validates the signature header against the raw request body.
// Any failure (missing parts, stale timestamp, digest mismatch) returns
// apperrors.ErrUnauthorized; the caller rejects before touching business state.
func (v *Verifier) Verify(header string, body []byte) error {
	timestamp, signature, err := parseHeader(header)
	if err != nil {
		return err
	}

	age := utils.Now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return fmt.Errorf("%w: signature timestamp outside tolerance", apperrors.ErrUnauthorized)
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not valid hex", apperrors.ErrUnauthorized)
	}
	if !hmac.Equal(expected, provided) {
		return fmt.Errorf("%w: signature mismatch", apperrors.ErrUnauthorized)
	}
	return nil
}

// Sign produces a header for the given body, used by tests and the load tester.
func (v *Verifier) Sign(at time.Time, body []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func parseHeader(header string) (int64, string, error) {
	if header == "" {
		return 0, "", fmt.Errorf("%w: missing signature header", apperrors.ErrUnauthorized)
	}

	var tsPart, sigPart string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			tsPart = kv[1]
		case "v1":
			sigPart = kv[1]
		}
	}
	if tsPart == "" || sigPart == "" {
		return 0, "", fmt.Errorf("%w: malformed signature header", apperrors.ErrUnauthorized)
	}

	timestamp, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: malformed signature timestamp", apperrors.ErrUnauthorized)
	}
	return timestamp, sigPart, nil
}
