package testsupport

import (
	"context"
	"testing"
	"time"

	"dubsync/internal/config"
	"dubsync/internal/export"
	"dubsync/internal/logging"
	"dubsync/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// RecordExport inserts an export snapshot in the given state.
func RecordExport(t testing.TB, st *store.Store, id, sessionID string, state export.JobState) export.JobSnapshot {
	t.Helper()

	now := time.Now().UTC()
	snap := export.JobSnapshot{
		ID:        id,
		SessionID: sessionID,
		VideoPath: "/media/" + sessionID + ".mp4",
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.Record(context.Background(), snap); err != nil {
		t.Fatalf("store.Record: %v", err)
	}
	return snap
}
