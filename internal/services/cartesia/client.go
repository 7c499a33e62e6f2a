package cartesia

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
const ServiceName = "Cartesia"

const (
	defaultBaseURL     = "https://api.cartesia.ai/tts/bytes"
	defaultAPIVersion  = "2025-04-16"
	defaultModelID     = "sonic-2"
	defaultContainer   = "mp3"
	defaultBitRate     = 128000
	defaultSampleRate  = 44100
	defaultHTTPTimeout = 2 * time.Minute
	maxErrorBody       = 4096
)

// Config captures the runtime settings required to talk to Cartesia.
type Config struct {
	BaseURL        string
	APIVersion     string
	ModelID        string
	Container      string
	BitRate        int
	SampleRate     int
	TimeoutSeconds int
}

// Request describes one synthesis call.
type Request struct {
	Text     string
	VoiceID  string
	Language string
}

// Client wraps the Cartesia TTS API.
type Client struct {
	cfg        Config
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

// NewClient constructs a Cartesia client, filling unset fields with defaults.
func NewClient(cfg Config, credential services.Credential, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = defaultModelID
	}
	if strings.TrimSpace(cfg.Container) == "" {
		cfg.Container = defaultContainer
	}
	if cfg.BitRate <= 0 {
		cfg.BitRate = defaultBitRate
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	client := &Client{
		cfg:        cfg,
		credential: credential,
		httpClient: &http.Client{Timeout: timeout},
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

// ContentType returns the MIME type of the audio this client produces.
func (c *Client) ContentType() string {
	switch c.cfg.Container {
	case "wav":
		return "audio/wav"
	case "raw":
		return "application/octet-stream"
	default:
		return "audio/mpeg"
	}
}

type ttsRequest struct {
	ModelID      string       `json:"model_id"`
	Transcript   string       `json:"transcript"`
	Voice        voiceSpec    `json:"voice"`
	OutputFormat outputFormat `json:"output_format"`
	Language     string       `json:"language,omitempty"`
}

type voiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type outputFormat struct {
	Container  string `json:"container"`
	BitRate    int    `json:"bit_rate,omitempty"`
	SampleRate int    `json:"sample_rate"`
}

// Synthesize renders req.Text with the requested voice and returns the
// encoded audio bytes. It makes a single attempt.
func (c *Client) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, services.Wrap(services.ErrValidation, "cartesia", "synthesize", "text required", nil)
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, services.Wrap(services.ErrValidation, "cartesia", "synthesize", "voice id required", nil)
	}
	key, err := c.credential.Resolve(ServiceName)
	if err != nil {
		return nil, err
	}

	payload := ttsRequest{
		ModelID:    c.cfg.ModelID,
		Transcript: req.Text,
		Voice:      voiceSpec{Mode: "id", ID: req.VoiceID},
		OutputFormat: outputFormat{
			Container:  c.cfg.Container,
			SampleRate: c.cfg.SampleRate,
		},
		Language: req.Language,
	}
	if c.cfg.Container == "mp3" {
		payload.OutputFormat.BitRate = c.cfg.BitRate
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("cartesia synthesize: encode body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("cartesia synthesize: new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Cartesia-Version", c.cfg.APIVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "cartesia", "synthesize", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, services.ResponseError(ServiceName, resp, body)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "cartesia", "synthesize", "read audio", err)
	}
	if len(audio) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "cartesia", "synthesize", "empty audio response", nil)
	}
	return audio, nil
}
