package testsupport

import (
	"context"
	"testing"

	"dubber/internal/config"
	"dubber/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates an uploaded record owned by userID for tests.
func NewJob(t testing.TB, store *jobs.Store, userID, filePath, lang string) *jobs.Record {
	t.Helper()

	record, err := store.Create(context.Background(), jobs.NewJob{UserID: userID, FilePath: filePath, LanguageToDub: lang})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return record
}

// Advance moves a record forward with mutate, failing the test on error.
func Advance(t testing.TB, store *jobs.Store, id string, from jobs.Status, mutate func(*jobs.Record)) *jobs.Record {
	t.Helper()

	record, err := store.Transition(context.Background(), id, from, mutate)
	if err != nil {
		t.Fatalf("store.Transition(%s from %s): %v", id, from, err)
	}
	return record
}
