package config

const (
	defaultConfigPath                = "~/.config/dubber/config.toml"
	defaultDataDir                   = "~/.local/share/dubber"
	defaultBlobDir                   = "~/.local/share/dubber/objects"
	defaultScratchDir                = "~/.cache/dubber/scratch"
	defaultLogDir                    = "~/.local/share/dubber/logs"
	defaultAPIBind                   = "127.0.0.1:7488"
	defaultTranscriptionBaseURL      = "https://api.deepgram.com/v1/listen"
	defaultTranscriptionTimeout      = 300
	defaultTranslationBaseURL        = "https://api.openai.com/v1/chat/completions"
	defaultTranslationModel          = "gpt-3.5-turbo"
	defaultTranslationSystemPrompt   = "You are a helpful translator."
	defaultTranslationTimeout        = 120
	defaultTranslationRetryAttempts  = 3
	defaultSynthesisBaseURL          = "https://api.cartesia.ai/tts/bytes"
	defaultSynthesisAPIVersion       = "2025-04-16"
	defaultSynthesisModelID          = "sonic-2"
	defaultSynthesisContainer        = "mp3"
	defaultSynthesisBitRate          = 128000
	defaultSynthesisSampleRate       = 44100
	defaultSynthesisTimeout          = 120
	defaultTranscoderBinary          = "ffmpeg"
	defaultAlignmentFilter           = "adelay=0|0"
	defaultTranscoderTimeout         = 600
	defaultPollIntervalMillis        = 500
	defaultBatchSize                 = 50
	defaultMaxConcurrentStages       = 4
	defaultStageTimeoutSeconds       = 1800
	defaultMinFreeScratchMB          = 512
	defaultStallSweepSchedule        = "*/15 * * * *"
	defaultStallAfterMinutes         = 60
	defaultChangeRetentionDays       = 7
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultTelemetryExporter         = "none"
	defaultMetricIntervalSeconds     = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			BlobDir:    defaultBlobDir,
			ScratchDir: defaultScratchDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Transcription: Transcription{
			BaseURL:        defaultTranscriptionBaseURL,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Translation: Translation{
			BaseURL:        defaultTranslationBaseURL,
			Model:          defaultTranslationModel,
			SystemPrompt:   defaultTranslationSystemPrompt,
			TimeoutSeconds: defaultTranslationTimeout,
			RetryAttempts:  defaultTranslationRetryAttempts,
		},
		Synthesis: Synthesis{
			BaseURL:        defaultSynthesisBaseURL,
			APIVersion:     defaultSynthesisAPIVersion,
			ModelID:        defaultSynthesisModelID,
			Container:      defaultSynthesisContainer,
			BitRate:        defaultSynthesisBitRate,
			SampleRate:     defaultSynthesisSampleRate,
			TimeoutSeconds: defaultSynthesisTimeout,
		},
		Transcoder: Transcoder{
			Binary:          defaultTranscoderBinary,
			AlignmentFilter: defaultAlignmentFilter,
			TimeoutSeconds:  defaultTranscoderTimeout,
		},
		Workflow: Workflow{
			PollIntervalMillis:  defaultPollIntervalMillis,
			BatchSize:           defaultBatchSize,
			MaxConcurrentStages: defaultMaxConcurrentStages,
			StageTimeoutSeconds: defaultStageTimeoutSeconds,
			MinFreeScratchMB:    defaultMinFreeScratchMB,
			StallSweepSchedule:  defaultStallSweepSchedule,
			StallAfterMinutes:   defaultStallAfterMinutes,
			ChangeRetentionDays: defaultChangeRetentionDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Telemetry: Telemetry{
			Exporter:              defaultTelemetryExporter,
			MetricIntervalSeconds: defaultMetricIntervalSeconds,
		},
	}
}
