package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the delivery signature on every outbound POST.
const SignatureHeader = "BoxyHQ-Signature"

// Sign computes the signature header value for one payload:
// t=<unix>,s=<hex hmac-sha256 of "<unix>.<payload>">. Consumers verify with
// the shared webhook secret and are expected to dedupe by event id, since
// delivery is at-least-once.
func Sign(secret string, timestamp time.Time, payload []byte) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", fmt.Errorf("webhooks: signature secret is required")
	}

	unix := timestamp.UTC().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.", unix)
	_, _ = mac.Write(payload)
	return fmt.Sprintf("t=%d,s=%s", unix, hex.EncodeToString(mac.Sum(nil))), nil
}

// VerifySignature checks a received signature header against the payload. A
// positive replay window rejects signatures whose timestamp is further than
// the window from now in either direction; zero disables the check.
func VerifySignature(secret string, header string, payload []byte, window time.Duration, now time.Time) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	timestamp, signature, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	if window > 0 {
		drift := now.UTC().Sub(time.Unix(timestamp, 0).UTC())
		if drift < 0 {
			drift = -drift
		}
		if drift > window {
			return fmt.Errorf("webhooks: signature timestamp outside replay window")
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.", timestamp)
	_, _ = mac.Write(payload)
	expected := mac.Sum(nil)

	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("webhooks: decode hex signature: %w", err)
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

func parseSignatureHeader(header string) (int64, string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, "", fmt.Errorf("webhooks: signature header is required")
	}

	var timestampPart, signaturePart string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, "", fmt.Errorf("webhooks: malformed signature segment %q", part)
		}
		switch strings.TrimSpace(key) {
		case "t":
			timestampPart = strings.TrimSpace(value)
		case "s":
			signaturePart = strings.TrimSpace(value)
		}
	}
	if timestampPart == "" || signaturePart == "" {
		return 0, "", fmt.Errorf("webhooks: signature header requires t and s segments")
	}

	timestamp, err := strconv.ParseInt(timestampPart, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("webhooks: parse signature timestamp: %w", err)
	}
	return timestamp, signaturePart, nil
}
