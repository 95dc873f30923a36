package downstream

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

// HTTP forwards payloads to a remote endpoint. Client-level retries are
// disabled: the worker pool owns retry policy, and double retry layers
// multiply load on an already unhealthy dependency.
type HTTP struct {
	client *resty.Client
	url    string
}

// NewHTTP creates an HTTP downstream client for the given target URL
func NewHTTP(targetURL string) *HTTP {
	// Reuse the retryablehttp transport for its connection pooling, with
	// retries off.
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	restyClient := resty.New().
		SetTransport(retryClient.HTTPClient.Transport).
		SetRetryCount(0).
		SetTimeout(60 * time.Second). // backstop; the Guard enforces the real per-call timeout
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "taskgate/1.0")

	return &HTTP{
		client: restyClient,
		url:    targetURL,
	}
}

// Call posts the payload and returns the response body
func (h *HTTP) Call(ctx context.Context, payload []byte) ([]byte, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(h.url)
	if err != nil {
		return nil, fmt.Errorf("downstream request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("downstream returned status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}
