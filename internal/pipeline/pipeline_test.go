package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"dubber/internal/blobstore"
	"dubber/internal/config"
	"dubber/internal/jobs"
	"dubber/internal/language"
	"dubber/internal/observability"
	"dubber/internal/pipeline"
	"dubber/internal/services"
	"dubber/internal/stage"
	"dubber/internal/testsupport"
	"dubber/internal/workspace"
)

func TestTranscribeCommitsTranscript(t *testing.T) {
	h := newHarness(t)
	h.seedOriginal(t, "videos/u1/v1/original")
	rec := testsupport.NewJob(t, h.store, "u1", "videos/u1/v1/original", "es")

	h.transcribe().Process(context.Background(), created(rec))

	got := h.get(t, rec.ID)
	if got.Status != jobs.StatusTranscribed {
		t.Fatalf("expected transcribed, got %s (error=%q)", got.Status, got.Error)
	}
	if got.Transcript != "hola" {
		t.Fatalf("expected transcript hola, got %q", got.Transcript)
	}
	if got.TranscriptPath != "videos/u1/v1/transcript.txt" {
		t.Fatalf("unexpected transcript path %q", got.TranscriptPath)
	}
	info, err := h.blobs.Stat(context.Background(), got.TranscriptPath)
	if err != nil {
		t.Fatalf("stat transcript object: %v", err)
	}
	if info.Size != int64(len("hola")) || !strings.HasPrefix(info.ContentType, "text/plain") {
		t.Fatalf("unexpected transcript object %+v", info)
	}
	if h.transcoder.extractCalls.Load() != 1 || h.transcriber.calls.Load() != 1 {
		t.Fatalf("expected one extract and one transcribe call, got %d/%d", h.transcoder.extractCalls.Load(), h.transcriber.calls.Load())
	}
	h.assertScratchEmpty(t)
}

func TestTranscribeEmptyTranscriptFails(t *testing.T) {
	h := newHarness(t)
	h.transcriber.text = "   "
	h.seedOriginal(t, "videos/u1/v1/original")
	rec := testsupport.NewJob(t, h.store, "u1", "videos/u1/v1/original", "es")

	h.transcribe().Process(context.Background(), created(rec))

	got := h.get(t, rec.ID)
	if got.Status != jobs.StatusError {
		t.Fatalf("expected error status, got %s", got.Status)
	}
	if !strings.Contains(got.Error, "no speech recognized") {
		t.Fatalf("unexpected error field %q", got.Error)
	}
	if ok, _ := h.blobs.Exists(context.Background(), "videos/u1/v1/transcript.txt"); ok {
		t.Fatal("transcript object should not be stored")
	}
	h.assertScratchEmpty(t)
}

func TestTranscribeMissingOriginalPersistsError(t *testing.T) {
	h := newHarness(t)
	rec := testsupport.NewJob(t, h.store, "u1", "videos/u1/v1/original", "es")

	h.transcribe().Process(context.Background(), created(rec))

	got := h.get(t, rec.ID)
	if got.Status != jobs.StatusError || got.Error == "" {
		t.Fatalf("expected persisted failure, got status=%s error=%q", got.Status, got.Error)
	}
	if h.transcriber.calls.Load() != 0 {
		t.Fatal("transcriber should not be called without audio")
	}
	h.assertScratchEmpty(t)
}

func TestTranscribeDeletesArtifactWhenCommitFails(t *testing.T) {
	h := newHarness(t)
	h.seedOriginal(t, "videos/u1/v1/original")
	rec := testsupport.NewJob(t, h.store, "u1", "videos/u1/v1/original", "es")
	h.deps.Store = &flakyStore{Store: h.store, failNext: 1, err: errors.New("disk I/O error")}

	h.transcribe().Process(context.Background(), created(rec))

	got := h.get(t, rec.ID)
	if got.Status != jobs.StatusError {
		t.Fatalf("expected error status, got %s", got.Status)
	}
	if got.Error != "commit transcribe: disk I/O error" {
		t.Fatalf("unexpected error field %q", got.Error)
	}
	if got.CompensationError != "" {
		t.Fatalf("expected no compensation error, got %q", got.CompensationError)
	}
	if ok, err := h.blobs.Exists(context.Background(), "videos/u1/v1/transcript.txt"); err != nil || ok {
		t.Fatalf("expected transcript object to be deleted (exists=%v err=%v)", ok, err)
	}
	h.assertScratchEmpty(t)
}

func TestTranscribeRecordsBothErrorsWhenCompensationFails(t *testing.T) {
	h := newHarness(t)
	h.seedOriginal(t, "videos/u1/v1/original")
	rec := testsupport.NewJob(t, h.store, "u1", "videos/u1/v1/original", "es")
	h.deps.Store = &flakyStore{Store: h.store, failNext: 1, err: errors.New("disk I/O error")}
	h.deps.Blobs = undeletableBlobs{Store: h.blobs}

	h.transcribe().Process(context.Background(), created(rec))

	got := h.get(t, rec.ID)
	if got.Status != jobs.StatusError {
		t.Fatalf("expected error status, got %s", got.Status)
	}
	if got.Error != "commit transcribe: disk I/O error" {
		t.Fatalf("unexpected error field %q", got.Error)
	}
	if got.CompensationError != "permission denied" {
		t.Fatalf("unexpected compensation error %q", got.CompensationError)
	}
	if ok, _ := h.blobs.Exists(context.Background(), "videos/u1/v1/transcript.txt"); !ok {
		t.Fatal("expected orphaned transcript object to remain")
	}
}

func TestTranslateCommitsTranslation(t *testing.T) {
	h := newHarness(t)
	h.translator.text = "  hola  "
	before, after := h.transcribedJob(t, "es", "hello")

	h.translate().Process(context.Background(), update(before, after))

	got := h.get(t, after.ID)
	if got.Status != jobs.StatusTranslated || got.Translation != "hola" {
		t.Fatalf("unexpected record status=%s translation=%q", got.Status, got.Translation)
	}
	if got.DetectedLanguage != language.Detect("hello") {
		t.Fatalf("unexpected detected language %q", got.DetectedLanguage)
	}
	if h.translator.userPrompt != "Translate this transcript to Spanish:\n\nhello" {
		t.Fatalf("unexpected prompt %q", h.translator.userPrompt)
	}
	if h.translator.systemPrompt != pipeline.DefaultSystemPrompt {
		t.Fatalf("unexpected system prompt %q", h.translator.systemPrompt)
	}
}

func TestTranslatePreconditionFailuresLeaveRecordUnchanged(t *testing.T) {
	tests := []struct {
		name       string
		lang       string
		transcript string
	}{
		{name: "unsupported language", lang: "xx", transcript: "hello"},
		{name: "missing language", lang: "", transcript: "hello"},
		{name: "missing transcript", lang: "es", transcript: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			before, after := h.transcribedJob(t, tt.lang, "placeholder")
			snapshot := after.Clone()
			snapshot.Transcript = tt.transcript

			h.translate().Process(context.Background(), update(before, snapshot))

			got := h.get(t, after.ID)
			if got.Status != jobs.StatusTranscribed || got.Version != after.Version {
				t.Fatalf("record changed: status=%s version=%d (was %d)", got.Status, got.Version, after.Version)
			}
			if got.TranslationError != "" || got.Error != "" {
				t.Fatalf("expected no error fields, got %q / %q", got.TranslationError, got.Error)
			}
			if h.translator.calls.Load() != 0 {
				t.Fatal("translator should not be called")
			}
			claims, err := h.store.Claims(context.Background(), after.ID)
			if err != nil {
				t.Fatalf("Claims: %v", err)
			}
			if len(claims) != 0 {
				t.Fatalf("expected no claims, got %v", claims)
			}
		})
	}
}

func TestTranslateClearsOwnStaleError(t *testing.T) {
	h := newHarness(t)
	rec := testsupport.NewJob(t, h.store, "u1", "videos/u1/v1/original", "fr")
	after := testsupport.Advance(t, h.store, rec.ID, jobs.StatusUploaded, func(r *jobs.Record) {
		r.Transcript = "hello"
		r.TranslationError = "stale failure"
		r.AlignmentError = "unrelated"
		r.Status = jobs.StatusTranscribed
	})

	h.translate().Process(context.Background(), update(rec, after))

	got := h.get(t, rec.ID)
	if got.Status != jobs.StatusTranslated {
		t.Fatalf("expected translated, got %s", got.Status)
	}
	if got.TranslationError != "" {
		t.Fatalf("expected translation error cleared, got %q", got.TranslationError)
	}
	if got.AlignmentError != "unrelated" {
		t.Fatalf("other stage errors should be kept, got %q", got.AlignmentError)
	}
}

func TestTranslateServiceFailurePersistsTranslationError(t *testing.T) {
	h := newHarness(t)
	h.translator.err = &services.APIError{Service: "OpenAI", Status: 429, Body: "slow down"}
	before, after := h.transcribedJob(t, "de", "hello")

	h.translate().Process(context.Background(), update(before, after))

	got := h.get(t, after.ID)
	if got.Status != jobs.StatusError || got.TranslationError != "OpenAI API error: 429 slow down" {
		t.Fatalf("unexpected record status=%s translationError=%q", got.Status, got.TranslationError)
	}
}

func TestSynthesizeCommitsAudio(t *testing.T) {
	h := newHarness(t)
	before, after := h.translatedJob(t, "es", "hola")

	h.synthesize().Process(context.Background(), update(before, after))

	got := h.get(t, after.ID)
	want := blobstore.ArtifactPath("u1", "v1", blobstore.SynthesizedName)
	if got.Status != jobs.StatusSynthesized || got.SynthesizedAudioPath != want {
		t.Fatalf("unexpected record status=%s path=%q", got.Status, got.SynthesizedAudioPath)
	}
	info, err := h.blobs.Stat(context.Background(), want)
	if err != nil {
		t.Fatalf("stat synthesized object: %v", err)
	}
	if info.ContentType != "audio/mpeg" || info.Size != int64(len("ID3-audio")) {
		t.Fatalf("unexpected object %+v", info)
	}
	req := h.synthesizer.request
	if req.Text != "hola" || req.Language != "es" || req.VoiceID != language.DefaultVoiceID {
		t.Fatalf("unexpected synthesis request %+v", req)
	}
	h.assertScratchEmpty(t)
}

func TestSynthesizeServerErrorPersistsAPIMessage(t *testing.T) {
	h := newHarness(t)
	h.synthesizer.err = &services.APIError{Service: "Cartesia", Status: 500, Body: "internal error"}
	before, after := h.translatedJob(t, "es", "hola")

	h.synthesize().Process(context.Background(), update(before, after))

	got := h.get(t, after.ID)
	if got.Status != jobs.StatusError {
		t.Fatalf("expected error status, got %s", got.Status)
	}
	if got.SynthesisError != "Cartesia API error: 500 internal error" {
		t.Fatalf("unexpected synthesis error %q", got.SynthesisError)
	}
	if ok, _ := h.blobs.Exists(context.Background(), blobstore.ArtifactPath("u1", "v1", blobstore.SynthesizedName)); ok {
		t.Fatal("no audio should be stored on failure")
	}
	h.assertScratchEmpty(t)
}

func TestSynthesizeWithoutCredentialIsSilent(t *testing.T) {
	h := newHarness(t)
	h.synthesizer.readyErr = services.Wrap(services.ErrConfiguration, "Cartesia", "credential", "api key not configured", nil)
	before, after := h.translatedJob(t, "es", "hola")

	h.synthesize().Process(context.Background(), update(before, after))

	got := h.get(t, after.ID)
	if got.Status != jobs.StatusTranslated || got.Version != after.Version {
		t.Fatalf("record should be untouched, got status=%s version=%d", got.Status, got.Version)
	}
	if h.synthesizer.calls.Load() != 0 {
		t.Fatal("synthesizer should not be called")
	}
}

func TestAlignCommitsAlignedAudio(t *testing.T) {
	h := newHarness(t)
	before, after := h.synthesizedJob(t)

	h.align().Process(context.Background(), update(before, after))

	got := h.get(t, after.ID)
	want := blobstore.ArtifactPath("u1", "v1", blobstore.AlignedName)
	if got.Status != jobs.StatusAligned || got.AlignedAudioPath != want {
		t.Fatalf("unexpected record status=%s path=%q (error=%q)", got.Status, got.AlignedAudioPath, got.AlignmentError)
	}
	if h.transcoder.lastFilter != pipeline.DefaultAlignmentFilter {
		t.Fatalf("unexpected filter %q", h.transcoder.lastFilter)
	}
	info, err := h.blobs.Stat(context.Background(), want)
	if err != nil {
		t.Fatalf("stat aligned object: %v", err)
	}
	if info.Size != 512 {
		t.Fatalf("unexpected aligned size %d", info.Size)
	}
	h.assertScratchEmpty(t)
}

func TestAlignMissingSourcePersistsAlignmentError(t *testing.T) {
	h := newHarness(t)
	before, after := h.synthesizedJob(t)
	if err := h.blobs.Delete(context.Background(), after.SynthesizedAudioPath); err != nil {
		t.Fatalf("delete seed: %v", err)
	}

	h.align().Process(context.Background(), update(before, after))

	got := h.get(t, after.ID)
	if got.Status != jobs.StatusError || got.AlignmentError == "" {
		t.Fatalf("expected alignment failure, got status=%s alignmentError=%q", got.Status, got.AlignmentError)
	}
	if h.transcoder.filterCalls.Load() != 0 {
		t.Fatal("filter should not run without a source")
	}
	h.assertScratchEmpty(t)
}

func TestGuardSkipsNonEdgeChanges(t *testing.T) {
	h := newHarness(t)
	rec := &jobs.Record{
		ID:                   "job-x",
		UserID:               "u1",
		FilePath:             "videos/u1/v1/original",
		LanguageToDub:        "es",
		Transcript:           "hello",
		Translation:          "hola",
		SynthesizedAudioPath: "videos/u1/v1/synthesized.mp3",
	}
	at := func(status jobs.Status) *jobs.Record {
		clone := rec.Clone()
		clone.Status = status
		return clone
	}
	handlers := pipeline.NewStages(h.deps, pipeline.Services{
		Transcoder:  h.transcoder,
		Transcriber: h.transcriber,
		Translator:  h.translator,
		Synthesizer: h.synthesizer,
	})
	for _, handler := range handlers {
		trigger := handler.Trigger()
		unchanged := jobs.Change{Kind: jobs.ChangeUpdate, JobID: rec.ID, Before: at(trigger), After: at(trigger)}
		elsewhere := jobs.Change{Kind: jobs.ChangeUpdate, JobID: rec.ID, Before: at(trigger), After: at(jobs.StatusError)}
		for _, change := range []jobs.Change{unchanged, elsewhere} {
			if handler.Matches(change) {
				t.Fatalf("%s should not match %s -> %s", handler.Name(), change.Before.Status, change.After.Status)
			}
			handler.Process(context.Background(), change)
		}
	}

	calls := h.transcoder.extractCalls.Load() + h.transcoder.filterCalls.Load() +
		h.transcriber.calls.Load() + h.translator.calls.Load() + h.synthesizer.calls.Load()
	if calls != 0 {
		t.Fatalf("expected no external calls, got %d", calls)
	}
}

func TestDuplicateDeliveryAfterCommitIsIgnored(t *testing.T) {
	h := newHarness(t)
	before, after := h.transcribedJob(t, "es", "hello")
	change := update(before, after)
	stageHandler := h.translate()

	stageHandler.Process(context.Background(), change)
	stageHandler.Process(context.Background(), change)

	if calls := h.translator.calls.Load(); calls != 1 {
		t.Fatalf("expected one translation call, got %d", calls)
	}
	if got := h.get(t, after.ID); got.Status != jobs.StatusTranslated {
		t.Fatalf("expected translated, got %s", got.Status)
	}
}

func TestConcurrentDuplicateDeliveryCallsServiceOnce(t *testing.T) {
	h := newHarness(t)
	h.translator.delay = 20 * time.Millisecond
	before, after := h.transcribedJob(t, "es", "hello")
	change := update(before, after)
	stageHandler := h.translate()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stageHandler.Process(context.Background(), change)
		}()
	}
	wg.Wait()

	if calls := h.translator.calls.Load(); calls != 1 {
		t.Fatalf("expected exactly one translation call, got %d", calls)
	}
	got := h.get(t, after.ID)
	if got.Status != jobs.StatusTranslated || got.Version != after.Version+1 {
		t.Fatalf("expected a single commit, got status=%s version=%d", got.Status, got.Version)
	}
}

func TestNewStagesOrderAndHealth(t *testing.T) {
	h := newHarness(t)
	h.translator.readyErr = services.Wrap(services.ErrConfiguration, "OpenAI", "credential", "api key not configured", nil)
	handlers := pipeline.NewStages(h.deps, pipeline.Services{
		Transcoder:  h.transcoder,
		Transcriber: h.transcriber,
		Translator:  h.translator,
		Synthesizer: h.synthesizer,
	})

	wantNames := []string{pipeline.StageTranscribe, pipeline.StageTranslate, pipeline.StageSynthesize, pipeline.StageAlign}
	wantTriggers := []jobs.Status{jobs.StatusUploaded, jobs.StatusTranscribed, jobs.StatusTranslated, jobs.StatusSynthesized}
	if len(handlers) != len(wantNames) {
		t.Fatalf("expected %d stages, got %d", len(wantNames), len(handlers))
	}
	var health []stage.Health
	for i, handler := range handlers {
		if handler.Name() != wantNames[i] || handler.Trigger() != wantTriggers[i] {
			t.Fatalf("stage %d = %s/%s", i, handler.Name(), handler.Trigger())
		}
		health = append(health, handler.HealthCheck(context.Background()))
	}
	if stage.AllReady(health) {
		t.Fatal("expected translate to report unhealthy")
	}
	if health[1].Ready || !strings.Contains(health[1].Detail, "api key not configured") {
		t.Fatalf("unexpected translate health %+v", health[1])
	}
}

func TestServicesFromConfigReadiness(t *testing.T) {
	for _, key := range []string{config.EnvTranscriptionKey, config.EnvTranslationKey, config.EnvSynthesisKey} {
		t.Setenv(key, "")
	}
	h := newHarness(t)

	bare := pipeline.NewStages(h.deps, pipeline.ServicesFromConfig(testsupport.NewConfig(t)))
	for _, handler := range bare[:3] {
		if health := handler.HealthCheck(context.Background()); health.Ready {
			t.Fatalf("%s should not be ready without a key", handler.Name())
		}
	}

	cfg := testsupport.NewConfig(t, testsupport.WithAPIKeys(), testsupport.WithStubFFmpeg())
	var health []stage.Health
	for _, handler := range pipeline.NewStages(h.deps, pipeline.ServicesFromConfig(cfg)) {
		health = append(health, handler.HealthCheck(context.Background()))
	}
	if !stage.AllReady(health) {
		t.Fatalf("expected every stage ready with keys configured: %+v", health)
	}
}

func TestProcessSurvivesMissingScratchRoot(t *testing.T) {
	h := newHarness(t)
	h.seedOriginal(t, "videos/u1/v1/original")
	rec := testsupport.NewJob(t, h.store, "u1", "videos/u1/v1/original", "es")
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	h.deps.Scratch = workspace.NewManager(filepath.Join(blocker, "scratch"))

	h.transcribe().Process(context.Background(), created(rec))

	got := h.get(t, rec.ID)
	if got.Status != jobs.StatusError || !strings.Contains(got.Error, "scratch") {
		t.Fatalf("expected scratch failure to be persisted, got status=%s error=%q", got.Status, got.Error)
	}
	if h.transcriber.calls.Load() != 0 {
		t.Fatal("transcriber should not be called")
	}
}

func TestStageRunIsTracedAndCounted(t *testing.T) {
	h := newHarness(t)
	recorder := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	providers, err := observability.NewProviders(context.Background(), observability.ProviderOptions{
		SpanProcessors: []sdktrace.SpanProcessor{recorder},
		Readers:        []sdkmetric.Reader{reader},
	})
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	t.Cleanup(func() { _ = providers.Shutdown(context.Background()) })
	h.deps.Tracer = providers.Tracer()
	h.deps.Metrics = providers.Metrics()

	h.seedOriginal(t, "videos/u1/v1/original")
	rec := testsupport.NewJob(t, h.store, "u1", "videos/u1/v1/original", "es")
	h.transcribe().Process(context.Background(), created(rec))

	ended := recorder.Ended()
	if len(ended) != 1 || ended[0].Name() != "dubber.stage."+pipeline.StageTranscribe {
		t.Fatalf("expected one transcribe span, got %d", len(ended))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var committed int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if m.Name != "dubber.stage.runs" || !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(observability.AttrOutcome); ok && v.AsString() == observability.OutcomeCommitted {
					committed += dp.Value
				}
			}
		}
	}
	if committed != 1 {
		t.Fatalf("expected one committed run, got %d", committed)
	}
}
