package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
//
// Service credentials are optional; a stage whose credential is missing
// aborts without touching the job record.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateTelemetry()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.BlobDir) == "" {
		return errors.New("paths.blob_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		return errors.New("paths.scratch_dir must be set")
	}
	return nil
}

func (c *Config) validateServices() error {
	if err := ensurePositiveMap(map[string]int{
		"transcription.timeout_seconds": c.Transcription.TimeoutSeconds,
		"translation.timeout_seconds":   c.Translation.TimeoutSeconds,
		"synthesis.timeout_seconds":     c.Synthesis.TimeoutSeconds,
		"synthesis.bit_rate":            c.Synthesis.BitRate,
		"synthesis.sample_rate":         c.Synthesis.SampleRate,
		"transcoder.timeout_seconds":    c.Transcoder.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Translation.Temperature < 0 || c.Translation.Temperature > 2 {
		return errors.New("translation.temperature must be between 0 and 2")
	}
	switch c.Synthesis.Container {
	case "mp3", "wav", "raw":
	default:
		return fmt.Errorf("synthesis.container: unsupported value %q", c.Synthesis.Container)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval_ms":      c.Workflow.PollIntervalMillis,
		"workflow.batch_size":            c.Workflow.BatchSize,
		"workflow.max_concurrent_stages": c.Workflow.MaxConcurrentStages,
		"workflow.stage_timeout_seconds": c.Workflow.StageTimeoutSeconds,
		"workflow.stall_after_minutes":   c.Workflow.StallAfterMinutes,
	}); err != nil {
		return err
	}
	if c.Workflow.MinFreeScratchMB < 0 {
		return errors.New("workflow.min_free_scratch_mb must not be negative")
	}
	if c.Workflow.ChangeRetentionDays < 0 {
		return errors.New("workflow.change_retention_days must not be negative")
	}
	if c.Workflow.StallSweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Workflow.StallSweepSchedule); err != nil {
			return fmt.Errorf("workflow.stall_sweep_schedule: %w", err)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	switch c.Telemetry.Exporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("telemetry.exporter: unsupported value %q", c.Telemetry.Exporter)
	}
	if c.Telemetry.MetricIntervalSeconds <= 0 {
		return errors.New("telemetry.metric_interval_seconds must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
