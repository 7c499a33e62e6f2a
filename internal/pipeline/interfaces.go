package pipeline

import (
	"context"

	"dubber/internal/jobs"
	"dubber/internal/services/cartesia"
	"dubber/internal/workspace"
)

// JobStore is the slice of the job store the stages write through.
type JobStore interface {
	Claim(ctx context.Context, id, stage string, trigger jobs.Status) (bool, error)
	Transition(ctx context.Context, id string, from jobs.Status, mutate func(*jobs.Record)) (*jobs.Record, error)
}

// BlobStore moves artifacts between object storage and scratch files.
type BlobStore interface {
	Download(ctx context.Context, objectPath, localPath string) error
	Upload(ctx context.Context, localPath, objectPath, contentType string) error
	Delete(ctx context.Context, objectPath string) error
}

// ScratchAllocator hands out per-invocation scratch directories.
type ScratchAllocator interface {
	Acquire(ctx context.Context, label string) (*workspace.Workspace, error)
}

// Transcriber converts speech audio into text.
type Transcriber interface {
	Ready() error
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Translator answers a translation prompt.
type Translator interface {
	Ready() error
	Translate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Synthesizer renders text to encoded speech audio.
type Synthesizer interface {
	Ready() error
	ContentType() string
	Synthesize(ctx context.Context, req cartesia.Request) ([]byte, error)
}

// Transcoder runs local media conversions.
type Transcoder interface {
	ExtractAudio(ctx context.Context, source, dest string) error
	ApplyFilter(ctx context.Context, source, dest, filter string) error
}
