package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	"github.com/danghungithp/chungquyen-VN/pkg/config"
	xhttp "github.com/danghungithp/chungquyen-VN/pkg/http"
)

// HTTPServiceBase is shared by estimators backed by a remote model service.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
	retries int
}

// NewHTTPServiceBase builds an HTTP client with timeout and base URL from config.
func NewHTTPServiceBase(cfg *config.Config) *HTTPServiceBase {
	timeout := cfg.Analytics.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPServiceBase{
		baseURL: cfg.Analytics.ServiceURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		retries: cfg.Analytics.Retries,
	}
}

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
// Transport and status failures are reported as models.ErrExternalFetch.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("%w: analytics service url not configured", models.ErrExternalFetch)
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("%w: post %s: %w", models.ErrExternalFetch, path, err)
	}
	return nil
}

// PostJSONWithRetry retries PostJSON with linear backoff, using the configured attempts.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	attempts := b.retries
	if attempts <= 1 {
		return b.PostJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		if !xhttp.IsRetryable(err) {
			return err
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
