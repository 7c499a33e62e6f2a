package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dubber/internal/jobs"
	"dubber/internal/services"
	"dubber/internal/testsupport"
)

func TestCreateAppendsCreateChange(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record, err := store.Create(ctx, jobs.NewJob{UserID: "u1", FilePath: "videos/u1/v1/original", LanguageToDub: "es"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if record.ID == "" {
		t.Fatal("expected generated id")
	}
	if record.Status != jobs.StatusUploaded || record.Version != 1 {
		t.Fatalf("unexpected record %+v", record)
	}

	fetched, err := store.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.FilePath != "videos/u1/v1/original" || fetched.LanguageToDub != "es" || fetched.UserID != "u1" {
		t.Fatalf("unexpected fetched record %+v", fetched)
	}

	changes, err := store.PendingChanges(ctx, 10)
	if err != nil {
		t.Fatalf("PendingChanges failed: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected one change, got %d", len(changes))
	}
	change := changes[0]
	if change.Kind != jobs.ChangeCreate || change.Before != nil || change.After == nil {
		t.Fatalf("unexpected create change %+v", change)
	}
	if change.After.Status != jobs.StatusUploaded || change.UserID != "u1" || change.JobID != record.ID {
		t.Fatalf("unexpected create snapshot %+v", change)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.Create(ctx, jobs.NewJob{FilePath: "videos/u/v/original"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing user, got %v", err)
	}
	if _, err := store.Create(ctx, jobs.NewJob{UserID: "u"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing path, got %v", err)
	}
	for _, userID := range []string{"team/alice", `team\alice`, ".", ".."} {
		if _, err := store.Create(ctx, jobs.NewJob{UserID: userID, FilePath: "videos/x/v/original"}); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for user %q, got %v", userID, err)
		}
	}
	if _, err := store.Create(ctx, jobs.NewJob{UserID: "alice.smith", FilePath: "videos/alice.smith/v/original"}); err != nil {
		t.Fatalf("dotted user id should be accepted: %v", err)
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := jobs.NewJob{ID: "job-1", UserID: "u", FilePath: "videos/u/v/original"}
	if _, err := store.Create(ctx, job); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, err := store.Create(ctx, job); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
}

func TestGetMissingReportsNotFound(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTransitionAdvancesAndRecordsSnapshots(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	record := testsupport.NewJob(t, store, "u1", "videos/u1/v1/original", "es")
	if err := store.MarkDelivered(ctx, 1); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}

	updated, err := store.Transition(ctx, record.ID, jobs.StatusUploaded, func(r *jobs.Record) {
		r.Transcript = "hola"
		r.TranscriptPath = "videos/u1/v1/transcript.txt"
		r.Status = jobs.StatusTranscribed
	})
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if updated.Status != jobs.StatusTranscribed || updated.Transcript != "hola" || updated.Version != 2 {
		t.Fatalf("unexpected updated record %+v", updated)
	}

	changes, err := store.PendingChanges(ctx, 10)
	if err != nil {
		t.Fatalf("PendingChanges failed: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected one pending change, got %d", len(changes))
	}
	change := changes[0]
	if change.Kind != jobs.ChangeUpdate {
		t.Fatalf("expected update change, got %s", change.Kind)
	}
	if change.Before.Status != jobs.StatusUploaded || change.After.Status != jobs.StatusTranscribed {
		t.Fatalf("unexpected snapshots before=%s after=%s", change.Before.Status, change.After.Status)
	}
	if change.After.Transcript != "hola" {
		t.Fatalf("expected transcript in after snapshot, got %q", change.After.Transcript)
	}
}

func TestTransitionRejectsStaleFromStatus(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	record := testsupport.NewJob(t, store, "u1", "videos/u1/v1/original", "es")

	_, err := store.Transition(ctx, record.ID, jobs.StatusTranscribed, func(r *jobs.Record) {
		r.Status = jobs.StatusTranslated
	})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestTransitionRejectsIllegalMoves(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	record := testsupport.NewJob(t, store, "u1", "videos/u1/v1/original", "es")

	cases := []struct {
		name   string
		mutate func(*jobs.Record)
	}{
		{"skip forward", func(r *jobs.Record) { r.Status = jobs.StatusTranslated }},
		{"unknown status", func(r *jobs.Record) { r.Status = "paused" }},
		{"change owner", func(r *jobs.Record) { r.UserID = "u2" }},
		{"change file path", func(r *jobs.Record) { r.FilePath = "videos/u1/other/original" }},
		{"change language", func(r *jobs.Record) { r.LanguageToDub = "fr" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.Transition(ctx, record.ID, jobs.StatusUploaded, tc.mutate); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	fetched, err := store.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Version != 1 || fetched.Status != jobs.StatusUploaded {
		t.Fatalf("rejected transitions must not write, got %+v", fetched)
	}
}

func TestTransitionNeverLeavesTerminalStatus(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	record := testsupport.NewJob(t, store, "u1", "videos/u1/v1/original", "es")
	testsupport.Advance(t, store, record.ID, jobs.StatusUploaded, func(r *jobs.Record) {
		r.SetFailed(jobs.FieldError, "boom")
	})

	_, err := store.Transition(ctx, record.ID, jobs.StatusError, func(r *jobs.Record) {
		r.Status = jobs.StatusUploaded
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error leaving error status, got %v", err)
	}
}

func TestTransitionMissingRecord(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	_, err := store.Transition(context.Background(), "nope", jobs.StatusUploaded, func(*jobs.Record) {})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClaimSucceedsOncePerStage(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	record := testsupport.NewJob(t, store, "u1", "videos/u1/v1/original", "es")

	ok, err := store.Claim(ctx, record.ID, "transcribe", jobs.StatusUploaded)
	if err != nil || !ok {
		t.Fatalf("expected first claim to win, ok=%v err=%v", ok, err)
	}
	ok, err = store.Claim(ctx, record.ID, "transcribe", jobs.StatusUploaded)
	if err != nil || ok {
		t.Fatalf("expected second claim to lose, ok=%v err=%v", ok, err)
	}
	ok, err = store.Claim(ctx, record.ID, "translate", jobs.StatusTranscribed)
	if err != nil || ok {
		t.Fatalf("claim must require the trigger status, ok=%v err=%v", ok, err)
	}

	stages, err := store.Claims(ctx, record.ID)
	if err != nil {
		t.Fatalf("Claims failed: %v", err)
	}
	if len(stages) != 1 || stages[0] != "transcribe" {
		t.Fatalf("unexpected claims %v", stages)
	}
}

func TestClaimConcurrentSingleWinner(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	record := testsupport.NewJob(t, store, "u1", "videos/u1/v1/original", "es")

	const contenders = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Claim(ctx, record.ID, "transcribe", jobs.StatusUploaded)
			if err != nil {
				t.Errorf("Claim failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestListFiltersByUserAndStatus(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	a := testsupport.NewJob(t, store, "alice", "videos/alice/1/original", "es")
	testsupport.NewJob(t, store, "alice", "videos/alice/2/original", "fr")
	testsupport.NewJob(t, store, "bob", "videos/bob/1/original", "de")
	testsupport.Advance(t, store, a.ID, jobs.StatusUploaded, func(r *jobs.Record) {
		r.SetFailed(jobs.FieldError, "boom")
	})

	all, err := store.List(ctx, jobs.Filter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 records, got %d err=%v", len(all), err)
	}
	alice, err := store.List(ctx, jobs.Filter{UserID: "alice"})
	if err != nil || len(alice) != 2 {
		t.Fatalf("expected 2 alice records, got %d err=%v", len(alice), err)
	}
	failed, err := store.List(ctx, jobs.Filter{UserID: "alice", Statuses: []jobs.Status{jobs.StatusError}})
	if err != nil || len(failed) != 1 || failed[0].ID != a.ID {
		t.Fatalf("expected alice's failed record, got %v err=%v", failed, err)
	}
	limited, err := store.List(ctx, jobs.Filter{Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d err=%v", len(limited), err)
	}
}

func TestCountsAndStalled(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	a := testsupport.NewJob(t, store, "u", "videos/u/1/original", "es")
	testsupport.NewJob(t, store, "u", "videos/u/2/original", "es")
	testsupport.Advance(t, store, a.ID, jobs.StatusUploaded, func(r *jobs.Record) {
		r.SetFailed(jobs.FieldError, "boom")
	})

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[jobs.StatusUploaded] != 1 || counts[jobs.StatusError] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	stalled, err := store.Stalled(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Stalled failed: %v", err)
	}
	if len(stalled) != 1 || stalled[0].Status != jobs.StatusUploaded {
		t.Fatalf("expected only the uploaded record to be stalled, got %v", stalled)
	}
	none, err := store.Stalled(ctx, time.Now().Add(-time.Hour))
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no stalled records before cutoff, got %d err=%v", len(none), err)
	}
}

func TestMarkDeliveredAndPrune(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewJob(t, store, "u", "videos/u/1/original", "es")
	testsupport.NewJob(t, store, "u", "videos/u/2/original", "es")

	pending, err := store.PendingChanges(ctx, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected 2 pending changes, got %d err=%v", len(pending), err)
	}
	if pending[0].Seq >= pending[1].Seq {
		t.Fatalf("expected ascending sequence, got %d then %d", pending[0].Seq, pending[1].Seq)
	}
	if err := store.MarkDelivered(ctx, pending[0].Seq); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}
	pending, err = store.PendingChanges(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected 1 pending change, got %d err=%v", len(pending), err)
	}

	pruned, err := store.PruneDelivered(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PruneDelivered failed: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned change, got %d", pruned)
	}
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	record, err := store.Create(context.Background(), jobs.NewJob{UserID: "u", FilePath: "videos/u/1/original"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	if _, err := reopened.Get(context.Background(), record.ID); err != nil {
		t.Fatalf("expected record to survive reopen: %v", err)
	}
}
