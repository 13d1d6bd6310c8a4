package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Header names carrying the signature.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderID        = "X-Webhook-ID"
)

// DefaultMaxAge bounds how old a signed request may be.
const DefaultMaxAge = 5 * time.Minute

// SignatureHeaders is the signature material sent alongside a payload.
type SignatureHeaders struct {
	Signature string
	Timestamp int64
	ID        string
}

// Apply writes the signature headers onto h.
func (s SignatureHeaders) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Signature)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	if s.ID != "" {
		h.Set(HeaderID, s.ID)
	}
}

// SignPayload signs payload with the current time and a fresh delivery id.
// Signature format: hex(HMAC-SHA256(secret, timestamp + "." + payload)).
func SignPayload(secret string, payload []byte) (SignatureHeaders, error) {
	return SignPayloadAt(secret, payload, time.Now(), uuid.NewString())
}

// SignPayloadAt signs payload for an explicit timestamp and delivery id.
func SignPayloadAt(secret string, payload []byte, at time.Time, id string) (SignatureHeaders, error) {
	if secret == "" {
		return SignatureHeaders{}, fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return SignatureHeaders{}, fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}

	ts := at.Unix()
	return SignatureHeaders{
		Signature: computeSignature(secret, ts, payload),
		Timestamp: ts,
		ID:        id,
	}, nil
}

// VerifySignature checks headers against payload. A positive maxAge rejects
// signatures older than maxAge or more than a minute in the future.
func VerifySignature(secret string, payload []byte, headers SignatureHeaders, maxAge time.Duration) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	if headers.Signature == "" {
		return fmt.Errorf("%w: signature is missing", ErrInvalidSignature)
	}

	if maxAge > 0 {
		age := time.Since(time.Unix(headers.Timestamp, 0))
		if age > maxAge {
			return fmt.Errorf("%w: signed %v ago", ErrSignatureExpired, age.Round(time.Second))
		}
		if age < -time.Minute {
			return fmt.Errorf("%w: timestamp is in the future", ErrSignatureExpired)
		}
	}

	expected := computeSignature(secret, headers.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(headers.Signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	return nil
}

// FromHeader reads signature material from request headers.
func FromHeader(h http.Header) (SignatureHeaders, error) {
	sig := SignatureHeaders{
		Signature: h.Get(HeaderSignature),
		ID:        h.Get(HeaderID),
	}
	raw := h.Get(HeaderTimestamp)
	if sig.Signature == "" || raw == "" {
		return SignatureHeaders{}, fmt.Errorf("%w: missing signature headers", ErrInvalidSignature)
	}

	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return SignatureHeaders{}, fmt.Errorf("%w: invalid timestamp format", ErrInvalidSignature)
	}
	sig.Timestamp = ts
	return sig, nil
}

// VerifyRequest combines FromHeader and VerifySignature.
func VerifyRequest(secret string, payload []byte, h http.Header, maxAge time.Duration) (SignatureHeaders, error) {
	sig, err := FromHeader(h)
	if err != nil {
		return SignatureHeaders{}, err
	}
	if err := VerifySignature(secret, payload, sig, maxAge); err != nil {
		return SignatureHeaders{}, err
	}
	return sig, nil
}

func computeSignature(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
