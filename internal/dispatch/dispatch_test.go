package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dubber/internal/dispatch"
	"dubber/internal/jobs"
	"dubber/internal/logging"
	"dubber/internal/observability"
	"dubber/internal/stage"
	"dubber/internal/testsupport"
)

type recordingHandler struct {
	name    string
	trigger jobs.Status
	process func(ctx context.Context, change jobs.Change)

	mu   sync.Mutex
	seen []jobs.Change
}

func (h *recordingHandler) Name() string         { return h.name }
func (h *recordingHandler) Trigger() jobs.Status { return h.trigger }
func (h *recordingHandler) Matches(change jobs.Change) bool {
	return stage.Triggered(change, h.trigger)
}

func (h *recordingHandler) Process(ctx context.Context, change jobs.Change) {
	h.mu.Lock()
	h.seen = append(h.seen, change)
	h.mu.Unlock()
	if h.process != nil {
		h.process(ctx, change)
	}
}

func (h *recordingHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy(h.name) }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func snapshot(id string, status jobs.Status) *jobs.Record {
	return &jobs.Record{ID: id, UserID: "u1", Status: status}
}

func TestDispatchRoutesToMatchingStage(t *testing.T) {
	transcribe := &recordingHandler{name: "transcribe", trigger: jobs.StatusUploaded}
	translate := &recordingHandler{name: "translate", trigger: jobs.StatusTranscribed}
	d := dispatch.New([]stage.Handler{transcribe, translate},
		dispatch.WithLogger(logging.NewNop()),
		dispatch.WithMetrics(observability.NewNoopMetrics()),
	)

	started, err := d.Dispatch(context.Background(), jobs.Change{
		Kind:   jobs.ChangeUpdate,
		JobID:  "job-1",
		Before: snapshot("job-1", jobs.StatusUploaded),
		After:  snapshot("job-1", jobs.StatusTranscribed),
	})
	if err != nil || !started {
		t.Fatalf("Dispatch = %v, %v", started, err)
	}
	d.Wait()

	if transcribe.count() != 0 || translate.count() != 1 {
		t.Fatalf("expected only translate to run, got transcribe=%d translate=%d", transcribe.count(), translate.count())
	}
}

func TestDispatchIgnoresUnmatchedChanges(t *testing.T) {
	handler := &recordingHandler{name: "align", trigger: jobs.StatusSynthesized}
	d := dispatch.New([]stage.Handler{handler})

	changes := []jobs.Change{
		{Kind: jobs.ChangeUpdate, Before: snapshot("a", jobs.StatusSynthesized), After: snapshot("a", jobs.StatusSynthesized)},
		{Kind: jobs.ChangeUpdate, Before: snapshot("a", jobs.StatusSynthesized), After: snapshot("a", jobs.StatusAligned)},
		{Kind: jobs.ChangeUpdate, Before: snapshot("a", jobs.StatusSynthesized), After: snapshot("a", jobs.StatusError)},
	}
	for _, change := range changes {
		started, err := d.Dispatch(context.Background(), change)
		if err != nil || started {
			t.Fatalf("expected no dispatch for %s -> %s, got %v, %v", change.Before.Status, change.After.Status, started, err)
		}
	}
	d.Wait()
	if handler.count() != 0 {
		t.Fatalf("expected no invocations, got %d", handler.count())
	}
}

func TestDispatchBoundsConcurrency(t *testing.T) {
	release := make(chan struct{})
	var active, peak atomic.Int32
	handler := &recordingHandler{
		name:    "transcribe",
		trigger: jobs.StatusUploaded,
		process: func(context.Context, jobs.Change) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			active.Add(-1)
		},
	}
	d := dispatch.New([]stage.Handler{handler}, dispatch.WithMaxConcurrent(2))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			if _, err := d.Dispatch(context.Background(), jobs.Change{Kind: jobs.ChangeCreate, After: snapshot("job", jobs.StatusUploaded)}); err != nil {
				t.Errorf("Dispatch: %v", err)
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	if got := handler.count(); got != 2 {
		t.Fatalf("expected 2 running stages while saturated, got %d", got)
	}
	close(release)
	<-done
	d.Wait()

	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent stages, saw %d", peak.Load())
	}
	if handler.count() != 5 {
		t.Fatalf("expected 5 invocations, got %d", handler.count())
	}
}

func TestDispatchSurvivesCallerCancellation(t *testing.T) {
	proceed := make(chan struct{})
	stageErr := make(chan error, 1)
	handler := &recordingHandler{
		name:    "transcribe",
		trigger: jobs.StatusUploaded,
		process: func(ctx context.Context, _ jobs.Change) {
			<-proceed
			stageErr <- ctx.Err()
		},
	}
	d := dispatch.New([]stage.Handler{handler})

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := d.Dispatch(ctx, jobs.Change{Kind: jobs.ChangeCreate, After: snapshot("job", jobs.StatusUploaded)}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	cancel()
	close(proceed)
	d.Wait()

	if err := <-stageErr; err != nil {
		t.Fatalf("stage context should not be cancelled by the caller, got %v", err)
	}
}

func TestDispatchAppliesStageTimeout(t *testing.T) {
	stageErr := make(chan error, 1)
	handler := &recordingHandler{
		name:    "transcribe",
		trigger: jobs.StatusUploaded,
		process: func(ctx context.Context, _ jobs.Change) {
			<-ctx.Done()
			stageErr <- ctx.Err()
		},
	}
	d := dispatch.New([]stage.Handler{handler}, dispatch.WithStageTimeout(20*time.Millisecond))

	if _, err := d.Dispatch(context.Background(), jobs.Change{Kind: jobs.ChangeCreate, After: snapshot("job", jobs.StatusUploaded)}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	d.Wait()

	if err := <-stageErr; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDispatchWaitingForSlotHonorsContext(t *testing.T) {
	release := make(chan struct{})
	handler := &recordingHandler{
		name:    "transcribe",
		trigger: jobs.StatusUploaded,
		process: func(context.Context, jobs.Change) { <-release },
	}
	d := dispatch.New([]stage.Handler{handler}, dispatch.WithMaxConcurrent(1))
	change := jobs.Change{Kind: jobs.ChangeCreate, After: snapshot("job", jobs.StatusUploaded)}
	if _, err := d.Dispatch(context.Background(), change); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if started, err := d.Dispatch(ctx, change); err == nil || started {
		t.Fatalf("expected blocked dispatch to fail, got %v, %v", started, err)
	}
	close(release)
	d.Wait()
}

func TestDispatchRecoversStagePanic(t *testing.T) {
	handler := &recordingHandler{
		name:    "transcribe",
		trigger: jobs.StatusUploaded,
		process: func(context.Context, jobs.Change) { panic("boom") },
	}
	d := dispatch.New([]stage.Handler{handler}, dispatch.WithMaxConcurrent(1))
	change := jobs.Change{Kind: jobs.ChangeCreate, After: snapshot("job", jobs.StatusUploaded)}
	for i := 0; i < 2; i++ {
		if _, err := d.Dispatch(context.Background(), change); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	d.Wait()
	if handler.count() != 2 {
		t.Fatalf("expected worker slot to be released after panic, got %d runs", handler.count())
	}
}

func TestPollOnceDispatchesAndMarksDelivered(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	first := testsupport.NewJob(t, store, "u1", "videos/u1/1_a/original", "es")
	second := testsupport.NewJob(t, store, "u2", "videos/u2/2_b/original", "fr")
	testsupport.Advance(t, store, first.ID, jobs.StatusUploaded, func(r *jobs.Record) {
		r.Transcript = "hello"
		r.Status = jobs.StatusTranscribed
	})

	transcribe := &recordingHandler{name: "transcribe", trigger: jobs.StatusUploaded}
	translate := &recordingHandler{name: "translate", trigger: jobs.StatusTranscribed}
	d := dispatch.New([]stage.Handler{transcribe, translate})
	poller := dispatch.NewPoller(store, d, time.Millisecond, 10, logging.NewNop())

	n, err := poller.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	d.Wait()
	if n != 3 {
		t.Fatalf("expected 3 changes handed over, got %d", n)
	}
	if transcribe.count() != 2 || translate.count() != 1 {
		t.Fatalf("unexpected routing transcribe=%d translate=%d", transcribe.count(), translate.count())
	}
	ids := map[string]bool{}
	for _, change := range transcribe.seen {
		ids[change.JobID] = true
	}
	if !ids[first.ID] || !ids[second.ID] {
		t.Fatalf("expected both jobs transcribed, got %v", ids)
	}

	pending, err := store.PendingChanges(context.Background(), 10)
	if err != nil {
		t.Fatalf("PendingChanges: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending changes, got %d", len(pending))
	}
	if n, err := poller.PollOnce(context.Background()); err != nil || n != 0 {
		t.Fatalf("second poll = %d, %v", n, err)
	}
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	seen := make(chan string, 1)
	handler := &recordingHandler{
		name:    "transcribe",
		trigger: jobs.StatusUploaded,
		process: func(_ context.Context, change jobs.Change) { seen <- change.JobID },
	}
	d := dispatch.New([]stage.Handler{handler})
	poller := dispatch.NewPoller(store, d, 5*time.Millisecond, 10, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	rec := testsupport.NewJob(t, store, "u1", "videos/u1/1_a/original", "es")
	select {
	case id := <-seen:
		if id != rec.ID {
			t.Fatalf("unexpected job %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
