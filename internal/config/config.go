package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	BlobDir    string `toml:"blob_dir"`
	ScratchDir string `toml:"scratch_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
	EnvFile    string `toml:"env_file"`
}

// Transcription contains configuration for the speech-to-text service.
type Transcription struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Translation contains the chat completion settings used for translation.
type Translation struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	SystemPrompt   string  `toml:"system_prompt"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RetryAttempts  int     `toml:"retry_attempts"`
}

// Synthesis contains configuration for the text-to-speech service.
type Synthesis struct {
	APIKey         string            `toml:"api_key"`
	BaseURL        string            `toml:"base_url"`
	APIVersion     string            `toml:"api_version"`
	ModelID        string            `toml:"model_id"`
	Container      string            `toml:"container"`
	BitRate        int               `toml:"bit_rate"`
	SampleRate     int               `toml:"sample_rate"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	Voices         map[string]string `toml:"voices"`
}

// Transcoder contains configuration for the ffmpeg binary.
type Transcoder struct {
	Binary          string `toml:"binary"`
	AlignmentFilter string `toml:"alignment_filter"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Workflow contains configuration for change dispatch and stage execution.
type Workflow struct {
	PollIntervalMillis  int    `toml:"poll_interval_ms"`
	BatchSize           int    `toml:"batch_size"`
	MaxConcurrentStages int    `toml:"max_concurrent_stages"`
	StageTimeoutSeconds int    `toml:"stage_timeout_seconds"`
	MinFreeScratchMB    int    `toml:"min_free_scratch_mb"`
	StallSweepSchedule  string `toml:"stall_sweep_schedule"`
	StallAfterMinutes   int    `toml:"stall_after_minutes"`
	ChangeRetentionDays int    `toml:"change_retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Telemetry selects where the daemon exports traces and metrics.
type Telemetry struct {
	Exporter              string `toml:"exporter"`
	OTLPEndpoint          string `toml:"otlp_endpoint"`
	MetricIntervalSeconds int    `toml:"metric_interval_seconds"`
}

// Config encapsulates all configuration values for the dubbing pipeline.
//
// Configuration sections by subsystem:
//   - Paths: data, object, scratch and log directories plus the API bind address
//   - Transcription: Deepgram speech-to-text credentials and endpoint
//   - Translation: OpenAI-compatible chat completion settings
//   - Synthesis: Cartesia text-to-speech settings and per-language voices
//   - Transcoder: ffmpeg binary and alignment filter
//   - Workflow: dispatch polling, concurrency and stall detection
//   - Logging: log format and level
//   - Telemetry: OpenTelemetry exporter selection
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Translation   Translation   `toml:"translation"`
	Synthesis     Synthesis     `toml:"synthesis"`
	Transcoder    Transcoder    `toml:"transcoder"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Telemetry     Telemetry     `toml:"telemetry"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dubber.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.BlobDir, c.Paths.ScratchDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the job record database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.db")
}

// LockPath returns the location of the daemon single-instance lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "dubberd.lock")
}

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "dubber.log")
}

// VoiceFor returns the configured synthesis voice override for a language code.
func (c *Config) VoiceFor(code string) (string, bool) {
	if c == nil || len(c.Synthesis.Voices) == 0 {
		return "", false
	}
	voice, ok := c.Synthesis.Voices[strings.ToLower(strings.TrimSpace(code))]
	voice = strings.TrimSpace(voice)
	return voice, ok && voice != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() (string, error) {
	var b strings.Builder
	encoder := toml.NewEncoder(&b)
	encoder.SetIndentTables(true)
	if err := encoder.Encode(c); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return b.String(), nil
}

// Redacted returns a copy with credentials masked for display.
func (c *Config) Redacted() Config {
	out := *c
	out.Transcription.APIKey = redact(out.Transcription.APIKey)
	out.Translation.APIKey = redact(out.Translation.APIKey)
	out.Synthesis.APIKey = redact(out.Synthesis.APIKey)
	out.Paths.APIToken = redact(out.Paths.APIToken)
	if len(c.Synthesis.Voices) > 0 {
		out.Synthesis.Voices = make(map[string]string, len(c.Synthesis.Voices))
		for k, v := range c.Synthesis.Voices {
			out.Synthesis.Voices[k] = v
		}
	}
	return out
}

func redact(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "********"
}
