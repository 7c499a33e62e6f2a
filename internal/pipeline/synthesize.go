package pipeline

import (
	"context"
	"fmt"

	"dubber/internal/blobstore"
	"dubber/internal/fileutil"
	"dubber/internal/jobs"
	"dubber/internal/language"
	"dubber/internal/services"
	"dubber/internal/services/cartesia"
	"dubber/internal/stage"
	"dubber/internal/workspace"
)

// Synthesize voices the translation in the target language.
type Synthesize struct {
	deps        Dependencies
	synthesizer Synthesizer
	languages   *language.Table
}

// NewSynthesize builds the Synthesize stage.
func NewSynthesize(deps Dependencies, synthesizer Synthesizer, languages *language.Table) *Synthesize {
	return &Synthesize{deps: deps, synthesizer: synthesizer, languages: languages}
}

func (s *Synthesize) Name() string                    { return StageSynthesize }
func (s *Synthesize) Trigger() jobs.Status            { return jobs.StatusTranslated }
func (s *Synthesize) next() jobs.Status               { return jobs.StatusSynthesized }
func (s *Synthesize) errorField() jobs.ErrorField     { return jobs.FieldSynthesisError }
func (s *Synthesize) Matches(change jobs.Change) bool { return stage.Triggered(change, s.Trigger()) }

// Process runs the stage for change.
func (s *Synthesize) Process(ctx context.Context, change jobs.Change) {
	s.deps.process(ctx, s, change)
}

// HealthCheck reports whether the synthesis credential is available.
func (s *Synthesize) HealthCheck(context.Context) stage.Health {
	return readiness(s.Name(), s.synthesizer.Ready)
}

func (s *Synthesize) prepare(rec *jobs.Record) (plan, error) {
	state, err := rec.State()
	if err != nil {
		return plan{}, preconditionError(StageSynthesize, "invalid record", err)
	}
	translated, ok := state.(jobs.Translated)
	if !ok {
		return plan{}, preconditionError(StageSynthesize, "record is "+string(state.Status()), nil)
	}
	lang, ok := s.languages.Lookup(translated.LanguageToDub)
	if !ok {
		return plan{}, preconditionError(StageSynthesize, fmt.Sprintf("unsupported languageToDub %q", translated.LanguageToDub), nil)
	}
	folder, err := blobstore.FolderToken(translated.FilePath)
	if err != nil {
		return plan{}, preconditionError(StageSynthesize, "derive artifact folder", err)
	}
	if err := s.synthesizer.Ready(); err != nil {
		return plan{}, err
	}

	return plan{scratch: true, run: func(ctx context.Context, ws *workspace.Workspace) (outcome, error) {
		audio, err := s.synthesizer.Synthesize(ctx, cartesia.Request{
			Text:     translated.Translation,
			VoiceID:  lang.VoiceID,
			Language: lang.Code,
		})
		if err != nil {
			return outcome{}, err
		}
		localPath := ws.Path(blobstore.SynthesizedName)
		if err := fileutil.WriteFileAtomic(localPath, audio, 0o644); err != nil {
			return outcome{}, services.Wrap(services.ErrTransient, StageSynthesize, "write audio", "", err)
		}
		objectPath := blobstore.ArtifactPath(rec.UserID, folder, blobstore.SynthesizedName)
		if err := s.deps.Blobs.Upload(ctx, localPath, objectPath, s.synthesizer.ContentType()); err != nil {
			return outcome{}, err
		}
		return outcome{
			artifact: objectPath,
			apply: func(r *jobs.Record) {
				r.SynthesizedAudioPath = objectPath
			},
		}, nil
	}}, nil
}
