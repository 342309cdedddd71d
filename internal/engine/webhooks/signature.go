package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix-seconds>,v1=<hex-hmac-sha256>" on every
// delivery POST.
const SignatureHeader = "X-BlockPulse-Signature"

// DefaultTolerance is the maximum allowed skew between the signed timestamp
// and verification time.
const DefaultTolerance = 5 * time.Minute

var (
	ErrSignatureMalformed = errors.New("signature header malformed")
	ErrSignatureExpired   = errors.New("signature timestamp outside tolerance")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

// Sign computes HMAC-SHA256 over "<timestamp>.<payload>" keyed by secret and
// returns the full header value.
func Sign(payload []byte, secret string, timestamp int64) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, digest(payload, secret, timestamp))
}

// BuildHeader signs the payload with the current time.
func BuildHeader(payload []byte, secret string) string {
	return Sign(payload, secret, time.Now().Unix())
}

// Verify checks a received signature header against the payload. It fails
// with ErrSignatureMalformed when t= or v1= is missing or unparsable,
// ErrSignatureExpired when the timestamp is outside tolerance, and
// ErrSignatureMismatch when the digest does not match. The digest comparison
// is constant time; mismatched lengths short-circuit inside hmac.Equal
// without leaking timing.
func Verify(payload []byte, header, secret string, tolerance time.Duration) error {
	var tsPart, sigPart string
	for _, field := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			tsPart = v
		case "v1":
			sigPart = v
		}
	}
	if tsPart == "" || sigPart == "" {
		return ErrSignatureMalformed
	}

	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return ErrSignatureMalformed
	}

	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	skew := time.Since(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return ErrSignatureExpired
	}

	received, err := hex.DecodeString(sigPart)
	if err != nil {
		return ErrSignatureMalformed
	}
	expected, _ := hex.DecodeString(digest(payload, secret, ts))
	if !hmac.Equal(received, expected) {
		return ErrSignatureMismatch
	}
	return nil
}

func digest(payload []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
