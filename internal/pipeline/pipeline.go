package pipeline

import (
	"time"

	"dubber/internal/config"
	"dubber/internal/language"
	"dubber/internal/services"
	"dubber/internal/services/cartesia"
	"dubber/internal/services/deepgram"
	"dubber/internal/services/ffmpeg"
	"dubber/internal/services/llm"
	"dubber/internal/stage"
)

// Services bundles the adapters and settings the stages call.
type Services struct {
	Transcoder      Transcoder
	Transcriber     Transcriber
	Translator      Translator
	Synthesizer     Synthesizer
	Languages       *language.Table
	SystemPrompt    string
	AlignmentFilter string
}

// ServicesFromConfig builds the production adapters. Credentials are
// resolved per call so a key added to the environment later is picked up.
func ServicesFromConfig(cfg *config.Config) Services {
	return Services{
		Transcoder: ffmpeg.New(cfg.Transcoder.Binary,
			ffmpeg.WithTimeout(time.Duration(cfg.Transcoder.TimeoutSeconds)*time.Second)),
		Transcriber: deepgram.NewClient(deepgram.Config{
			BaseURL:        cfg.Transcription.BaseURL,
			TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
		}, services.EnvCredential(cfg.Transcription.APIKey, config.EnvTranscriptionKey)),
		Translator: llm.NewClient(llm.Config{
			BaseURL:        cfg.Translation.BaseURL,
			Model:          cfg.Translation.Model,
			Temperature:    cfg.Translation.Temperature,
			TimeoutSeconds: cfg.Translation.TimeoutSeconds,
		}, services.EnvCredential(cfg.Translation.APIKey, config.EnvTranslationKey),
			llm.WithRetryMaxAttempts(cfg.Translation.RetryAttempts)),
		Synthesizer: cartesia.NewClient(cartesia.Config{
			BaseURL:        cfg.Synthesis.BaseURL,
			APIVersion:     cfg.Synthesis.APIVersion,
			ModelID:        cfg.Synthesis.ModelID,
			Container:      cfg.Synthesis.Container,
			BitRate:        cfg.Synthesis.BitRate,
			SampleRate:     cfg.Synthesis.SampleRate,
			TimeoutSeconds: cfg.Synthesis.TimeoutSeconds,
		}, services.EnvCredential(cfg.Synthesis.APIKey, config.EnvSynthesisKey)),
		Languages:       language.NewTable(cfg.Synthesis.Voices),
		SystemPrompt:    cfg.Translation.SystemPrompt,
		AlignmentFilter: cfg.Transcoder.AlignmentFilter,
	}
}

// NewStages returns the four stages in pipeline order.
func NewStages(deps Dependencies, svc Services) []stage.Handler {
	languages := svc.Languages
	if languages == nil {
		languages = language.NewTable(nil)
	}
	return []stage.Handler{
		NewTranscribe(deps, svc.Transcoder, svc.Transcriber),
		NewTranslate(deps, svc.Translator, languages, svc.SystemPrompt),
		NewSynthesize(deps, svc.Synthesizer, languages),
		NewAlign(deps, svc.Transcoder, svc.AlignmentFilter),
	}
}
