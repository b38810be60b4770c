package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/boxyhq/go-dsync/core"
)

const (
	defaultSendTimeout   = 30 * time.Second
	maxDrainResponseSize = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSender delivers signed JSON payloads to tenant webhook endpoints. The
// response body is drained and discarded; only the status code matters to
// the pipeline.
type HTTPSender struct {
	Client HTTPDoer
	Now    func() time.Time
}

func NewHTTPSender(client HTTPDoer) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: defaultSendTimeout}
	}
	return &HTTPSender{
		Client: client,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *HTTPSender) Send(ctx context.Context, hook core.Webhook, payload any) (int, error) {
	if s == nil || s.Client == nil {
		return 0, fmt.Errorf("webhooks: http sender is not configured")
	}
	endpoint := strings.TrimSpace(hook.Endpoint)
	if endpoint == "" {
		return 0, fmt.Errorf("webhooks: webhook endpoint is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("webhooks: encode webhook payload: %w", err)
	}
	signature, err := Sign(hook.Secret, s.now(), body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("webhooks: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhooks: deliver webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainResponseSize))
		_ = resp.Body.Close()
	}()

	return resp.StatusCode, nil
}

func (s *HTTPSender) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.WebhookSender = (*HTTPSender)(nil)
