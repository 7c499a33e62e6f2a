package pipeline_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dubber/internal/blobstore"
	"dubber/internal/jobs"
	"dubber/internal/language"
	"dubber/internal/logging"
	"dubber/internal/observability"
	"dubber/internal/pipeline"
	"dubber/internal/services/cartesia"
	"dubber/internal/testsupport"
	"dubber/internal/workspace"
)

type stubTranscoder struct {
	extractCalls atomic.Int32
	filterCalls  atomic.Int32
	extractErr   error
	mu           sync.Mutex
	lastFilter   string
}

func (s *stubTranscoder) ExtractAudio(_ context.Context, source, dest string) error {
	s.extractCalls.Add(1)
	if s.extractErr != nil {
		return s.extractErr
	}
	if _, err := os.Stat(source); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("RIFF"), 0o644)
}

func (s *stubTranscoder) ApplyFilter(_ context.Context, source, dest, filter string) error {
	s.filterCalls.Add(1)
	s.mu.Lock()
	s.lastFilter = filter
	s.mu.Unlock()
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

type stubTranscriber struct {
	text     string
	err      error
	readyErr error
	calls    atomic.Int32
}

func (s *stubTranscriber) Ready() error { return s.readyErr }

func (s *stubTranscriber) Transcribe(context.Context, string) (string, error) {
	s.calls.Add(1)
	return s.text, s.err
}

type stubTranslator struct {
	text     string
	err      error
	readyErr error
	delay    time.Duration
	calls    atomic.Int32

	mu           sync.Mutex
	systemPrompt string
	userPrompt   string
}

func (s *stubTranslator) Ready() error { return s.readyErr }

func (s *stubTranslator) Translate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.systemPrompt = systemPrompt
	s.userPrompt = userPrompt
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.text, s.err
}

type stubSynthesizer struct {
	audio    []byte
	err      error
	readyErr error
	calls    atomic.Int32

	mu      sync.Mutex
	request cartesia.Request
}

func (s *stubSynthesizer) Ready() error        { return s.readyErr }
func (s *stubSynthesizer) ContentType() string { return "audio/mpeg" }

func (s *stubSynthesizer) Synthesize(_ context.Context, req cartesia.Request) ([]byte, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.request = req
	s.mu.Unlock()
	return s.audio, s.err
}

// flakyStore fails the next n Transition calls before delegating.
type flakyStore struct {
	*jobs.Store
	mu       sync.Mutex
	failNext int
	err      error
}

func (f *flakyStore) Transition(ctx context.Context, id string, from jobs.Status, mutate func(*jobs.Record)) (*jobs.Record, error) {
	f.mu.Lock()
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		return nil, f.err
	}
	f.mu.Unlock()
	return f.Store.Transition(ctx, id, from, mutate)
}

type undeletableBlobs struct {
	*blobstore.Store
}

func (undeletableBlobs) Delete(context.Context, string) error {
	return errors.New("permission denied")
}

type harness struct {
	store       *jobs.Store
	blobs       *blobstore.Store
	scratchRoot string
	deps        pipeline.Dependencies
	transcoder  *stubTranscoder
	transcriber *stubTranscriber
	translator  *stubTranslator
	synthesizer *stubSynthesizer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	blobs, err := blobstore.New(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	h := &harness{
		store:       store,
		blobs:       blobs,
		scratchRoot: cfg.Paths.ScratchDir,
		transcoder:  &stubTranscoder{},
		transcriber: &stubTranscriber{text: "hola"},
		translator:  &stubTranslator{text: "hola"},
		synthesizer: &stubSynthesizer{audio: []byte("ID3-audio")},
	}
	h.deps = pipeline.Dependencies{
		Store:   store,
		Blobs:   blobs,
		Scratch: workspace.NewManager(cfg.Paths.ScratchDir),
		Logger:  logging.NewNop(),
		Tracer:  observability.NewNoopTracer(),
		Metrics: observability.NewNoopMetrics(),
	}
	return h
}

func (h *harness) transcribe() *pipeline.Transcribe {
	return pipeline.NewTranscribe(h.deps, h.transcoder, h.transcriber)
}

func (h *harness) translate() *pipeline.Translate {
	return pipeline.NewTranslate(h.deps, h.translator, language.NewTable(nil), "")
}

func (h *harness) synthesize() *pipeline.Synthesize {
	return pipeline.NewSynthesize(h.deps, h.synthesizer, language.NewTable(nil))
}

func (h *harness) align() *pipeline.Align {
	return pipeline.NewAlign(h.deps, h.transcoder, "")
}

// seedOriginal stores a fake video at objectPath.
func (h *harness) seedOriginal(t *testing.T, objectPath string) {
	t.Helper()
	local := filepath.Join(t.TempDir(), "upload.mp4")
	testsupport.WriteVideo(t, local, 2048)
	if err := h.blobs.Upload(context.Background(), local, objectPath, "video/mp4"); err != nil {
		t.Fatalf("seed original: %v", err)
	}
}

func (h *harness) get(t *testing.T, id string) *jobs.Record {
	t.Helper()
	rec, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	return rec
}

func (h *harness) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.scratchRoot)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read scratch root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected scratch root to be empty, found %d entries", len(entries))
	}
}

// transcribedJob creates a record and advances it to transcribed.
func (h *harness) transcribedJob(t *testing.T, lang, transcript string) (before, after *jobs.Record) {
	t.Helper()
	before = testsupport.NewJob(t, h.store, "u1", "videos/u1/v1/original", lang)
	after = testsupport.Advance(t, h.store, before.ID, jobs.StatusUploaded, func(r *jobs.Record) {
		r.Transcript = transcript
		r.TranscriptPath = "videos/u1/v1/transcript.txt"
		r.Status = jobs.StatusTranscribed
	})
	return before, after
}

func (h *harness) translatedJob(t *testing.T, lang, translation string) (before, after *jobs.Record) {
	t.Helper()
	_, transcribed := h.transcribedJob(t, lang, "hello")
	after = testsupport.Advance(t, h.store, transcribed.ID, jobs.StatusTranscribed, func(r *jobs.Record) {
		r.Translation = translation
		r.Status = jobs.StatusTranslated
	})
	return transcribed, after
}

func (h *harness) synthesizedJob(t *testing.T) (before, after *jobs.Record) {
	t.Helper()
	_, translated := h.translatedJob(t, "es", "hola")
	objectPath := blobstore.ArtifactPath("u1", "v1", blobstore.SynthesizedName)
	local := filepath.Join(t.TempDir(), "synth.mp3")
	testsupport.WriteAudio(t, local, 512)
	if err := h.blobs.Upload(context.Background(), local, objectPath, "audio/mpeg"); err != nil {
		t.Fatalf("seed synthesized audio: %v", err)
	}
	after = testsupport.Advance(t, h.store, translated.ID, jobs.StatusTranslated, func(r *jobs.Record) {
		r.SynthesizedAudioPath = objectPath
		r.Status = jobs.StatusSynthesized
	})
	return translated, after
}

func update(before, after *jobs.Record) jobs.Change {
	return jobs.Change{Kind: jobs.ChangeUpdate, JobID: after.ID, UserID: after.UserID, Before: before, After: after}
}

func created(rec *jobs.Record) jobs.Change {
	return jobs.Change{Kind: jobs.ChangeCreate, JobID: rec.ID, UserID: rec.UserID, After: rec}
}
