package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kittycore/internal/jsonx"
	"kittycore/internal/kerrors"
	"kittycore/internal/logging"
)

// Config configures the OpenAI-compatible chat client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Timeout is the default per-call bound when the request carries none.
	Timeout time.Duration
	Headers map[string]string
}

// OpenAI API compatible client.
type openaiClient struct {
	model      string
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	headers    map[string]string
	logger     logging.Logger
}

// NewOpenAIClient constructs a client that speaks the OpenAI-compatible chat
// completions API using the provided configuration.
func NewOpenAIClient(config Config) (Client, error) {
	if strings.TrimSpace(config.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &openaiClient{
		model:      config.Model,
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		headers:    config.Headers,
		logger:     logging.NewComponentLogger("llm-openai"),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *openaiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := jsonx.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	c.logger.Debug("POST %s model=%s prompt_len=%d", endpoint, c.model, len(req.Prompt))

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, kerrors.NewTaskError(kerrors.KindProvider, "chat completion request failed", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, kerrors.NewTaskError(kerrors.KindProvider, "read response body", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		statusErr := kerrors.NewHTTPStatusError(httpResp.StatusCode, httpResp.Status, string(respBody))
		return nil, kerrors.NewTaskError(kerrors.KindProvider,
			fmt.Sprintf("provider returned %s", httpResp.Status), statusErr)
	}

	var parsed chatResponse
	if err := jsonx.Unmarshal(respBody, &parsed); err != nil {
		return nil, kerrors.NewTaskError(kerrors.KindProvider, "decode response", err)
	}
	if parsed.Error != nil {
		return nil, kerrors.NewTaskError(kerrors.KindProvider, parsed.Error.Message, fmt.Errorf("%s", parsed.Error.Type))
	}
	if len(parsed.Choices) == 0 {
		return nil, kerrors.NewTaskError(kerrors.KindProvider, "provider returned no choices", nil)
	}

	c.logger.Debug("completion ok model=%s tokens=%d took=%v",
		parsed.Model, parsed.Usage.TotalTokens, time.Since(start).Round(time.Millisecond))

	return &Response{
		Content: parsed.Choices[0].Message.Content,
		Model:   parsed.Model,
		Usage:   parsed.Usage,
	}, nil
}

func (c *openaiClient) Model() string {
	return c.model
}
