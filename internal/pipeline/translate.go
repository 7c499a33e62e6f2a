package pipeline

import (
	"context"
	"fmt"
	"strings"

	"dubber/internal/jobs"
	"dubber/internal/language"
	"dubber/internal/services"
	"dubber/internal/stage"
	"dubber/internal/workspace"
)

// DefaultSystemPrompt frames the translation request.
const DefaultSystemPrompt = "You are a helpful translator."

// Translate renders the transcript in the job's target language.
type Translate struct {
	deps         Dependencies
	translator   Translator
	languages    *language.Table
	systemPrompt string
}

// NewTranslate builds the Translate stage. An empty systemPrompt uses
// DefaultSystemPrompt.
func NewTranslate(deps Dependencies, translator Translator, languages *language.Table, systemPrompt string) *Translate {
	systemPrompt = strings.TrimSpace(systemPrompt)
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Translate{deps: deps, translator: translator, languages: languages, systemPrompt: systemPrompt}
}

func (s *Translate) Name() string                    { return StageTranslate }
func (s *Translate) Trigger() jobs.Status            { return jobs.StatusTranscribed }
func (s *Translate) next() jobs.Status               { return jobs.StatusTranslated }
func (s *Translate) errorField() jobs.ErrorField     { return jobs.FieldTranslationError }
func (s *Translate) Matches(change jobs.Change) bool { return stage.Triggered(change, s.Trigger()) }

// Process runs the stage for change.
func (s *Translate) Process(ctx context.Context, change jobs.Change) {
	s.deps.process(ctx, s, change)
}

// HealthCheck reports whether the translation credential is available.
func (s *Translate) HealthCheck(context.Context) stage.Health {
	return readiness(s.Name(), s.translator.Ready)
}

// TranslationPrompt builds the user prompt sent to the translator.
func TranslationPrompt(languageName, transcript string) string {
	return fmt.Sprintf("Translate this transcript to %s:\n\n%s", languageName, transcript)
}

func (s *Translate) prepare(rec *jobs.Record) (plan, error) {
	state, err := rec.State()
	if err != nil {
		return plan{}, preconditionError(StageTranslate, "invalid record", err)
	}
	transcribed, ok := state.(jobs.Transcribed)
	if !ok {
		return plan{}, preconditionError(StageTranslate, "record is "+string(state.Status()), nil)
	}
	if strings.TrimSpace(transcribed.LanguageToDub) == "" {
		return plan{}, preconditionError(StageTranslate, "languageToDub missing", nil)
	}
	lang, ok := s.languages.Lookup(transcribed.LanguageToDub)
	if !ok {
		return plan{}, preconditionError(StageTranslate, fmt.Sprintf("unsupported languageToDub %q", transcribed.LanguageToDub), nil)
	}
	if err := s.translator.Ready(); err != nil {
		return plan{}, err
	}

	return plan{run: func(ctx context.Context, _ *workspace.Workspace) (outcome, error) {
		prompt := TranslationPrompt(lang.Name, transcribed.Transcript)
		translation, err := s.translator.Translate(ctx, s.systemPrompt, prompt)
		if err != nil {
			return outcome{}, err
		}
		translation = strings.TrimSpace(translation)
		if translation == "" {
			return outcome{}, services.Wrap(services.ErrExternalTool, StageTranslate, "translate", "empty translation", nil)
		}
		detected := language.Detect(transcribed.Transcript)
		return outcome{apply: func(r *jobs.Record) {
			r.Translation = translation
			r.DetectedLanguage = detected
		}}, nil
	}}, nil
}
