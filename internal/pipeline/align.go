package pipeline

import (
	"context"
	"strings"

	"dubber/internal/blobstore"
	"dubber/internal/jobs"
	"dubber/internal/stage"
	"dubber/internal/workspace"
)

// DefaultAlignmentFilter is the audio filter graph applied by Align.
const DefaultAlignmentFilter = "adelay=0|0"

const alignedContentType = "audio/mpeg"

// Align applies the timing filter to the synthesized audio.
type Align struct {
	deps       Dependencies
	transcoder Transcoder
	filter     string
}

// NewAlign builds the Align stage. An empty filter uses
// DefaultAlignmentFilter.
func NewAlign(deps Dependencies, transcoder Transcoder, filter string) *Align {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		filter = DefaultAlignmentFilter
	}
	return &Align{deps: deps, transcoder: transcoder, filter: filter}
}

func (s *Align) Name() string                    { return StageAlign }
func (s *Align) Trigger() jobs.Status            { return jobs.StatusSynthesized }
func (s *Align) next() jobs.Status               { return jobs.StatusAligned }
func (s *Align) errorField() jobs.ErrorField     { return jobs.FieldAlignmentError }
func (s *Align) Matches(change jobs.Change) bool { return stage.Triggered(change, s.Trigger()) }

// Process runs the stage for change.
func (s *Align) Process(ctx context.Context, change jobs.Change) {
	s.deps.process(ctx, s, change)
}

// HealthCheck always reports ready; the transcoder binary is covered by the
// dependency check.
func (s *Align) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.Name())
}

func (s *Align) prepare(rec *jobs.Record) (plan, error) {
	state, err := rec.State()
	if err != nil {
		return plan{}, preconditionError(StageAlign, "invalid record", err)
	}
	synthesized, ok := state.(jobs.Synthesized)
	if !ok {
		return plan{}, preconditionError(StageAlign, "record is "+string(state.Status()), nil)
	}
	folder, err := blobstore.FolderToken(synthesized.FilePath)
	if err != nil {
		return plan{}, preconditionError(StageAlign, "derive artifact folder", err)
	}

	return plan{scratch: true, run: func(ctx context.Context, ws *workspace.Workspace) (outcome, error) {
		sourcePath := ws.Path(blobstore.SynthesizedName)
		alignedPath := ws.Path(blobstore.AlignedName)
		if err := s.deps.Blobs.Download(ctx, synthesized.SynthesizedAudioPath, sourcePath); err != nil {
			return outcome{}, err
		}
		if err := s.transcoder.ApplyFilter(ctx, sourcePath, alignedPath, s.filter); err != nil {
			return outcome{}, err
		}
		objectPath := blobstore.ArtifactPath(rec.UserID, folder, blobstore.AlignedName)
		if err := s.deps.Blobs.Upload(ctx, alignedPath, objectPath, alignedContentType); err != nil {
			return outcome{}, err
		}
		return outcome{
			artifact: objectPath,
			apply: func(r *jobs.Record) {
				r.AlignedAudioPath = objectPath
			},
		}, nil
	}}, nil
}
