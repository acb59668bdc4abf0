package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureTolerance bounds how far an embedded signature timestamp
// may drift from the current time before the delivery is treated as a
// replay.
const DefaultSignatureTolerance = 5 * time.Minute

// Verifier authenticates raw webhook payloads against a shared secret.
// The signature header has the form
//
//	t=<unix seconds>,v1=<hex hmac-sha256(secret, "<t>.<body>")>
//
// The body must be the raw request bytes; re-serialization before
// verification invalidates the signature.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier for the given shared secret.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	return &Verifier{
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify authenticates body against the signature header and, only after
// authentication succeeds, parses it into an Event.
func (v *Verifier) Verify(body []byte, header string) (*Event, error) {
	if header == "" {
		return nil, &SignatureError{Reason: "missing signature header"}
	}

	timestamp, signature, err := parseSignatureHeader(header)
	if err != nil {
		return nil, err
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return nil, &SignatureError{Reason: "timestamp outside tolerance"}
	}

	expected := computeSignature(v.secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, &SignatureError{Reason: "signature mismatch"}
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}

	return &event, nil
}

// parseSignatureHeader extracts the timestamp and v1 signature from a
// comma-separated list of key=value pairs. Unknown keys are ignored for
// forward compatibility with additional signature schemes.
func parseSignatureHeader(header string) (int64, string, error) {
	var (
		timestamp int64 = -1
		signature string
	)

	for _, pair := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			return 0, "", &SignatureError{Reason: "malformed signature header"}
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", &SignatureError{Reason: "malformed signature timestamp"}
			}
			timestamp = parsed
		case "v1":
			signature = value
		}
	}

	if timestamp < 0 || signature == "" {
		return 0, "", &SignatureError{Reason: "malformed signature header"}
	}
	return timestamp, signature, nil
}

// SignPayload produces a complete signature header for body at the given
// time. The receiving side is Verify; this side exists for outbound test
// traffic and local tooling.
func SignPayload(secret string, at time.Time, body []byte) string {
	timestamp := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", timestamp, computeSignature(secret, timestamp, body))
}

// computeSignature generates the hex HMAC-SHA256 signature over
// "<timestamp>.<body>".
func computeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
