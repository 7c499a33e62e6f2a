package pipeline

import (
	"context"
	"strings"

	"dubber/internal/blobstore"
	"dubber/internal/fileutil"
	"dubber/internal/jobs"
	"dubber/internal/services"
	"dubber/internal/stage"
	"dubber/internal/workspace"
)

const transcriptContentType = "text/plain; charset=utf-8"

// Transcribe turns a freshly uploaded video into a transcript.
type Transcribe struct {
	deps        Dependencies
	transcoder  Transcoder
	transcriber Transcriber
}

// NewTranscribe builds the Transcribe stage.
func NewTranscribe(deps Dependencies, transcoder Transcoder, transcriber Transcriber) *Transcribe {
	return &Transcribe{deps: deps, transcoder: transcoder, transcriber: transcriber}
}

func (s *Transcribe) Name() string                    { return StageTranscribe }
func (s *Transcribe) Trigger() jobs.Status            { return jobs.StatusUploaded }
func (s *Transcribe) next() jobs.Status               { return jobs.StatusTranscribed }
func (s *Transcribe) errorField() jobs.ErrorField     { return jobs.FieldError }
func (s *Transcribe) Matches(change jobs.Change) bool { return stage.Triggered(change, s.Trigger()) }

// Process runs the stage for change.
func (s *Transcribe) Process(ctx context.Context, change jobs.Change) {
	s.deps.process(ctx, s, change)
}

// HealthCheck reports whether the transcription credential is available.
func (s *Transcribe) HealthCheck(context.Context) stage.Health {
	return readiness(s.Name(), s.transcriber.Ready)
}

func (s *Transcribe) prepare(rec *jobs.Record) (plan, error) {
	state, err := rec.State()
	if err != nil {
		return plan{}, preconditionError(StageTranscribe, "invalid record", err)
	}
	uploaded, ok := state.(jobs.Uploaded)
	if !ok {
		return plan{}, preconditionError(StageTranscribe, "record is "+string(state.Status()), nil)
	}
	folder, err := blobstore.FolderToken(uploaded.FilePath)
	if err != nil {
		return plan{}, preconditionError(StageTranscribe, "derive artifact folder", err)
	}
	if err := s.transcriber.Ready(); err != nil {
		return plan{}, err
	}

	return plan{scratch: true, run: func(ctx context.Context, ws *workspace.Workspace) (outcome, error) {
		videoPath := ws.Path("source-video")
		audioPath := ws.Path("audio.wav")
		transcriptPath := ws.Path(blobstore.TranscriptName)

		if err := s.deps.Blobs.Download(ctx, uploaded.FilePath, videoPath); err != nil {
			return outcome{}, err
		}
		if err := s.transcoder.ExtractAudio(ctx, videoPath, audioPath); err != nil {
			return outcome{}, err
		}
		transcript, err := s.transcriber.Transcribe(ctx, audioPath)
		if err != nil {
			return outcome{}, err
		}
		transcript = strings.TrimSpace(transcript)
		if transcript == "" {
			return outcome{}, services.Wrap(services.ErrExternalTool, StageTranscribe, "transcribe", "no speech recognized", nil)
		}

		if err := fileutil.WriteFileAtomic(transcriptPath, []byte(transcript), 0o644); err != nil {
			return outcome{}, services.Wrap(services.ErrTransient, StageTranscribe, "write transcript", "", err)
		}
		objectPath := blobstore.ArtifactPath(rec.UserID, folder, blobstore.TranscriptName)
		if err := s.deps.Blobs.Upload(ctx, transcriptPath, objectPath, transcriptContentType); err != nil {
			return outcome{}, err
		}
		return outcome{
			artifact: objectPath,
			apply: func(r *jobs.Record) {
				r.Transcript = transcript
				r.TranscriptPath = objectPath
			},
		}, nil
	}}, nil
}
