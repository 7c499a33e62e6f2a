package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables consulted when a credential is absent from the file.
const (
	EnvTranscriptionKey = "DEEPGRAM_API_KEY"
	EnvTranslationKey   = "OPENAI_API_KEY"
	EnvSynthesisKey     = "CARTESIA_API_KEY"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.loadEnvFile(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeTranslation()
	c.normalizeSynthesis()
	c.normalizeTranscoder()
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.normalizeTelemetry()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.BlobDir) == "" {
		c.Paths.BlobDir = defaultBlobDir
	}
	if c.Paths.BlobDir, err = expandPath(c.Paths.BlobDir); err != nil {
		return fmt.Errorf("paths.blob_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = defaultScratchDir
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.EnvFile, err = expandPath(strings.TrimSpace(c.Paths.EnvFile)); err != nil {
		return fmt.Errorf("paths.env_file: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

// loadEnvFile populates the process environment from a dotenv file without
// overriding variables that are already set.
func (c *Config) loadEnvFile() error {
	if c.Paths.EnvFile == "" {
		return nil
	}
	if err := godotenv.Load(c.Paths.EnvFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("paths.env_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		if value, ok := os.LookupEnv(EnvTranscriptionKey); ok {
			c.Transcription.APIKey = strings.TrimSpace(value)
		}
	}
	c.Transcription.BaseURL = strings.TrimSpace(c.Transcription.BaseURL)
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultTranscriptionBaseURL
	}
}

func (c *Config) normalizeTranslation() {
	c.Translation.APIKey = strings.TrimSpace(c.Translation.APIKey)
	if c.Translation.APIKey == "" {
		if value, ok := os.LookupEnv(EnvTranslationKey); ok {
			c.Translation.APIKey = strings.TrimSpace(value)
		}
	}
	c.Translation.BaseURL = strings.TrimSpace(c.Translation.BaseURL)
	if c.Translation.BaseURL == "" {
		c.Translation.BaseURL = defaultTranslationBaseURL
	}
	c.Translation.Model = strings.TrimSpace(c.Translation.Model)
	if c.Translation.Model == "" {
		c.Translation.Model = defaultTranslationModel
	}
	c.Translation.SystemPrompt = strings.TrimSpace(c.Translation.SystemPrompt)
	if c.Translation.SystemPrompt == "" {
		c.Translation.SystemPrompt = defaultTranslationSystemPrompt
	}
	if c.Translation.RetryAttempts <= 0 {
		c.Translation.RetryAttempts = 1
	}
}

func (c *Config) normalizeSynthesis() {
	c.Synthesis.APIKey = strings.TrimSpace(c.Synthesis.APIKey)
	if c.Synthesis.APIKey == "" {
		if value, ok := os.LookupEnv(EnvSynthesisKey); ok {
			c.Synthesis.APIKey = strings.TrimSpace(value)
		}
	}
	c.Synthesis.BaseURL = strings.TrimSpace(c.Synthesis.BaseURL)
	if c.Synthesis.BaseURL == "" {
		c.Synthesis.BaseURL = defaultSynthesisBaseURL
	}
	c.Synthesis.APIVersion = strings.TrimSpace(c.Synthesis.APIVersion)
	if c.Synthesis.APIVersion == "" {
		c.Synthesis.APIVersion = defaultSynthesisAPIVersion
	}
	c.Synthesis.ModelID = strings.TrimSpace(c.Synthesis.ModelID)
	if c.Synthesis.ModelID == "" {
		c.Synthesis.ModelID = defaultSynthesisModelID
	}
	c.Synthesis.Container = strings.ToLower(strings.TrimSpace(c.Synthesis.Container))
	if c.Synthesis.Container == "" {
		c.Synthesis.Container = defaultSynthesisContainer
	}
	if len(c.Synthesis.Voices) > 0 {
		voices := make(map[string]string, len(c.Synthesis.Voices))
		for code, voice := range c.Synthesis.Voices {
			voices[strings.ToLower(strings.TrimSpace(code))] = strings.TrimSpace(voice)
		}
		c.Synthesis.Voices = voices
	}
}

func (c *Config) normalizeTranscoder() {
	c.Transcoder.Binary = strings.TrimSpace(c.Transcoder.Binary)
	if c.Transcoder.Binary == "" {
		c.Transcoder.Binary = defaultTranscoderBinary
	}
	c.Transcoder.AlignmentFilter = strings.TrimSpace(c.Transcoder.AlignmentFilter)
	if c.Transcoder.AlignmentFilter == "" {
		c.Transcoder.AlignmentFilter = defaultAlignmentFilter
	}
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.StallSweepSchedule = strings.TrimSpace(c.Workflow.StallSweepSchedule)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeTelemetry() {
	c.Telemetry.Exporter = strings.ToLower(strings.TrimSpace(c.Telemetry.Exporter))
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = defaultTelemetryExporter
	}
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	if c.Telemetry.MetricIntervalSeconds <= 0 {
		c.Telemetry.MetricIntervalSeconds = defaultMetricIntervalSeconds
	}
}
