package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// WebhookExecutor posts prompts to a workflow automation webhook
type WebhookExecutor struct {
	url     string
	token   string
	client  *http.Client
	logger  *zap.Logger
	retries uint64
	backoff time.Duration
}

// NewWebhookExecutor creates an executor calling url with an optional bearer token
func NewWebhookExecutor(url, token string, timeout time.Duration, logger *zap.Logger) *WebhookExecutor {
	return &WebhookExecutor{
		url:     url,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("assistant_webhook"),
		retries: 2,
		backoff: 250 * time.Millisecond,
	}
}

func (e *WebhookExecutor) Execute(ctx context.Context, req PromptRequest) (string, error) {
	if e.url == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt: %w", err)
	}

	var result PromptResponse
	backoff := retry.WithMaxRetries(e.retries, retry.NewExponential(e.backoff))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build webhook request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if e.token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+e.token)
		}

		resp, err := e.client.Do(httpReq)
		if err != nil {
			e.logger.Warn("Webhook request failed", zap.Error(err))
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrUpstreamFailed, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			e.logger.Warn("Webhook returned server error", zap.Int("status", resp.StatusCode))
			return retry.RetryableError(fmt.Errorf("%w: status %d", ErrUpstreamFailed, resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: status %d", ErrUpstreamFailed, resp.StatusCode)
		}

		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
			return fmt.Errorf("%w: invalid response body: %v", ErrUpstreamFailed, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(result.Response) == "" {
		return "", ErrEmptyResponse
	}
	return result.Response, nil
}
