package webhooks

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of the receiver's response body is kept on
// the delivery record.
const maxResponseBytes = 1024

type Response struct {
	StatusCode int
	Body       string
	Duration   time.Duration
}

// Transport issues the outbound delivery POST. The engine never talks
// net/http directly so tests can substitute a double.
type Transport interface {
	Post(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error)
}

type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds the production transport with a hard per-request
// timeout. A hung receiver must not stall the dispatcher.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Post(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(excerpt),
		Duration:   elapsed,
	}, nil
}
