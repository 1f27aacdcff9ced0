package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kittycore/internal/kerrors"
	"kittycore/internal/logging"
)

// retryClient wraps an LLM client with retry logic and a circuit breaker.
type retryClient struct {
	underlying     Client
	retryConfig    kerrors.RetryConfig
	circuitBreaker *kerrors.CircuitBreaker
	logger         logging.Logger
}

// NewRetryClient wraps an LLM client with retry and circuit breaker logic.
func NewRetryClient(client Client, retryConfig kerrors.RetryConfig, circuitBreaker *kerrors.CircuitBreaker) Client {
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		logger:         logging.NewComponentLogger("llm-retry"),
	}
}

// WrapWithRetry wraps an existing LLM client with retry logic using the
// provided configuration, creating a dedicated circuit breaker per model.
func WrapWithRetry(client Client, retryConfig kerrors.RetryConfig, circuitBreakerConfig kerrors.CircuitBreakerConfig) Client {
	circuitBreaker := kerrors.NewCircuitBreaker(
		fmt.Sprintf("llm-%s", client.Model()),
		circuitBreakerConfig,
	)
	return NewRetryClient(client, retryConfig, circuitBreaker)
}

// Complete executes the completion with retry and circuit breaker protection.
func (c *retryClient) Complete(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	resp, err := kerrors.RetryWithResultAndLog(ctx, c.retryConfig, func(ctx context.Context) (*Response, error) {
		return kerrors.ExecuteFunc(c.circuitBreaker, ctx, func(ctx context.Context) (*Response, error) {
			response, err := c.underlying.Complete(ctx, req)
			if err != nil {
				return nil, classifyProviderError(err)
			}
			return response, nil
		})
	}, c.logger)

	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("LLM request failed after retries (took %v): %v", duration, err)
		if kerrors.KindOf(err) != "" {
			return nil, err
		}
		return nil, kerrors.NewTaskError(kerrors.KindProvider,
			fmt.Sprintf("completion failed after %d attempts over %v",
				c.retryConfig.MaxAttempts+1, duration.Round(time.Second)), err)
	}

	if duration > 5*time.Second {
		c.logger.Debug("LLM request succeeded after %v", duration)
	}

	return resp, nil
}

// Model returns the underlying model name.
func (c *retryClient) Model() string {
	return c.underlying.Model()
}

// classifyProviderError marks provider failures as transient or permanent so
// the retry loop can decide whether another attempt is worthwhile.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	if kerrors.IsTransient(err) || kerrors.IsPermanent(err) {
		return err
	}

	lowerErr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lowerErr, "429"), strings.Contains(lowerErr, "rate limit"):
		return kerrors.NewTransientError(err, "API rate limit reached. Retrying with exponential backoff.")
	case strings.Contains(lowerErr, "500"), strings.Contains(lowerErr, "internal server error"),
		strings.Contains(lowerErr, "502"), strings.Contains(lowerErr, "bad gateway"),
		strings.Contains(lowerErr, "503"), strings.Contains(lowerErr, "service unavailable"),
		strings.Contains(lowerErr, "504"), strings.Contains(lowerErr, "gateway timeout"):
		return kerrors.NewTransientError(err, "Provider server error. Retrying request.")
	case strings.Contains(lowerErr, "timeout"), strings.Contains(lowerErr, "deadline exceeded"):
		return kerrors.NewTransientError(err, "Request timed out. Retrying with backoff.")
	case strings.Contains(lowerErr, "connection refused"), strings.Contains(lowerErr, "connection reset"),
		strings.Contains(lowerErr, "broken pipe"):
		return kerrors.NewTransientError(err, "Connection error. Retrying request.")
	case strings.Contains(lowerErr, "401"), strings.Contains(lowerErr, "unauthorized"):
		return kerrors.NewPermanentError(err, "Authentication failed. Please check your API key configuration.")
	case strings.Contains(lowerErr, "403"), strings.Contains(lowerErr, "forbidden"):
		return kerrors.NewPermanentError(err, "Permission denied. You don't have access to this model.")
	case strings.Contains(lowerErr, "404"), strings.Contains(lowerErr, "not found"):
		return kerrors.NewPermanentError(err, "Model or endpoint not found. Please verify the model name.")
	case strings.Contains(lowerErr, "400"), strings.Contains(lowerErr, "bad request"):
		return kerrors.NewPermanentError(err, "Invalid request. Please check the parameters.")
	}

	return err
}
