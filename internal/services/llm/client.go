package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dubber/internal/services"
)

// ServiceName prefixes failures reported by this adapter.
const ServiceName = "OpenAI"

const (
	defaultBaseURL        = "https://api.openai.com/v1/chat/completions"
	defaultModel          = "gpt-3.5-turbo"
	defaultHTTPTimeout    = 2 * time.Minute
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	snippetLimit          = 160
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	BaseURL        string
	Model          string
	Temperature    float64
	TimeoutSeconds int
}

// Client wraps an OpenAI-compatible chat completion API.
type Client struct {
	cfg        Config
	credential services.Credential
	httpClient *http.Client
	retry      services.RetryPolicy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the attempt count. Values below one mean a
// single attempt.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retry.MaxAttempts = attempts }
}

// WithRetryBackoff overrides the first retry delay and the delay cap.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.BaseDelay = baseDelay
		c.retry.MaxDelay = maxDelay
	}
}

// WithSleeper replaces the retry wait, for tests.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.retry.Sleep = sleeper }
}

// NewClient constructs an LLM client. Blank base URL and model fall back to
// the public OpenAI endpoint and gpt-3.5-turbo.
func NewClient(cfg Config, credential services.Credential, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		credential: credential,
		httpClient: &http.Client{Timeout: timeout},
		retry: services.RetryPolicy{
			MaxAttempts: defaultRetryAttempts,
			BaseDelay:   defaultRetryBaseDelay,
			MaxDelay:    defaultRetryMaxDelay,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Ready reports whether a credential is currently available.
func (c *Client) Ready() error {
	_, err := c.credential.Resolve(ServiceName)
	return err
}

// Translate sends the prompts as one chat completion and returns the trimmed
// reply. Empty completions count as retryable failures.
func (c *Client) Translate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "translate", "user prompt required", nil)
	}
	key, err := c.credential.Resolve(ServiceName)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(newChatRequest(c.cfg, systemPrompt, userPrompt))
	if err != nil {
		return "", fmt.Errorf("llm translate: encode body: %w", err)
	}

	var reply string
	err = c.retry.Do(ctx, "llm translate", func(int) error {
		text, err := c.complete(ctx, key, body)
		if err != nil {
			return err
		}
		reply = text
		return nil
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func newChatRequest(cfg Config, systemPrompt, userPrompt string) chatRequest {
	req := chatRequest{Model: cfg.Model, Temperature: cfg.Temperature}
	if system := strings.TrimSpace(systemPrompt); system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: userPrompt})
	return req
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Some compatible servers answer with the streaming delta or the legacy
// text field even when stream=false.
type chatChoice struct {
	Message      chatMessage `json:"message"`
	Delta        chatMessage `json:"delta"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"`
}

func (c chatChoice) content() string {
	for _, candidate := range []string{c.Message.Content, c.Delta.Content, c.Text} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// emptyCompletionError is returned when the service answered 2xx without any
// usable text.
type emptyCompletionError struct {
	finishReason string
	snippet      string
}

func (e *emptyCompletionError) Error() string {
	return fmt.Sprintf("llm translate: empty content (finish_reason=%q, response_snippet=%s)", e.finishReason, e.snippet)
}

func (e *emptyCompletionError) RetryableFailure() bool { return true }

func (c *Client) complete(ctx context.Context, key string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", services.ResponseError(ServiceName, resp, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "llm", "request", "decode response", err)
	}
	if parsed.Error != nil {
		return "", services.Wrap(services.ErrExternalTool, "llm", "request", parsed.Error.Message, nil)
	}
	finish := ""
	for _, choice := range parsed.Choices {
		if text := choice.content(); text != "" {
			return text, nil
		}
		if finish == "" {
			finish = strings.TrimSpace(choice.FinishReason)
		}
	}
	return "", &emptyCompletionError{finishReason: finish, snippet: snippet(raw)}
}

func snippet(raw []byte) string {
	clean := strings.Join(strings.Fields(string(raw)), " ")
	if clean == "" {
		return "<empty>"
	}
	if runes := []rune(clean); len(runes) > snippetLimit {
		return string(runes[:snippetLimit]) + "..."
	}
	return clean
}
