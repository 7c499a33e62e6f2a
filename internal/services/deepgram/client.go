package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"dubber/internal/services"
)

// ServiceName prefixes failures reported by this adapter.
const ServiceName = "Deepgram"

const (
	defaultBaseURL     = "https://api.deepgram.com/v1/listen"
	defaultHTTPTimeout = 5 * time.Minute
	maxErrorBody       = 2048
)

// Config captures the runtime settings required to talk to Deepgram.
type Config struct {
	BaseURL        string
	TimeoutSeconds int
}

// Client wraps the Deepgram listen API.
type Client struct {
	baseURL    string
	credential services.Credential
	httpClient *http.Client
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

// NewClient constructs a client that resolves its API key through credential
// on every request.
func NewClient(cfg Config, credential services.Credential, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		credential: credential,
		httpClient: &http.Client{Timeout: timeout},
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
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

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe uploads the WAV file at audioPath and returns its transcript.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	key, err := c.credential.Resolve(ServiceName)
	if err != nil {
		return "", err
	}
	audio, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("deepgram transcribe: open audio: %w", err)
	}
	defer audio.Close()
	info, err := audio.Stat()
	if err != nil {
		return "", fmt.Errorf("deepgram transcribe: stat audio: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, audio)
	if err != nil {
		return "", fmt.Errorf("deepgram transcribe: new request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Authorization", "Token "+key)
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "deepgram", "transcribe", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", services.ResponseError(ServiceName, resp, body)
	}

	var parsed listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "deepgram", "transcribe", "decode response", err)
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return "", services.Wrap(services.ErrExternalTool, "deepgram", "transcribe", "response contained no alternatives", nil)
	}
	return strings.TrimSpace(parsed.Results.Channels[0].Alternatives[0].Transcript), nil
}
