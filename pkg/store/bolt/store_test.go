package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/thedude61636/states-rebuilder/pkg/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cells.db"))
	if err != nil {
		t.Fatalf("unexpected error opening store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error from Init: %v", err)
	}
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatalf("expected empty path to be rejected")
	}
}

func TestReadWriteDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, ok, err := s.Read(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing key to report ok=false, got ok=%v err=%v", ok, err)
	}

	if err := s.Write(ctx, "counter", "42"); err != nil {
		t.Fatalf("unexpected error from Write: %v", err)
	}
	raw, ok, err := s.Read(ctx, "counter")
	if err != nil || !ok || raw != "42" {
		t.Fatalf("expected stored payload, got raw=%q ok=%v err=%v", raw, ok, err)
	}

	if err := s.Write(ctx, "counter", "43"); err != nil {
		t.Fatalf("unexpected error overwriting: %v", err)
	}
	if raw, _, _ := s.Read(ctx, "counter"); raw != "43" {
		t.Fatalf("expected overwrite to stick, got %q", raw)
	}

	if err := s.Delete(ctx, "counter"); err != nil {
		t.Fatalf("unexpected error from Delete: %v", err)
	}
	if _, ok, _ := s.Read(ctx, "counter"); ok {
		t.Fatalf("expected deleted key to be gone")
	}
}

func TestDeleteAllResetsBucket(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_ = s.Write(ctx, "a", "1")
	_ = s.Write(ctx, "b", "2")
	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("unexpected error from DeleteAll: %v", err)
	}
	if _, ok, _ := s.Read(ctx, "a"); ok {
		t.Fatalf("expected all keys removed")
	}
	if err := s.Write(ctx, "a", "3"); err != nil {
		t.Fatalf("expected store usable after DeleteAll: %v", err)
	}
}

func TestPersistedPayloadSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cells.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error opening store: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("unexpected error from Init: %v", err)
	}
	if err := s.Write(ctx, "theme", "1"); err != nil {
		t.Fatalf("unexpected error from Write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error from Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error reopening store: %v", err)
	}
	defer reopened.Close()
	raw, ok, err := reopened.Read(ctx, "theme")
	if err != nil || !ok || raw != "1" {
		t.Fatalf("expected payload to survive reopen, got raw=%q ok=%v err=%v", raw, ok, err)
	}
}

func TestOperationsWrapPersistErrors(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Write(ctx, "counter", "1")
	var perr *store.PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistError from cancelled context, got %v", err)
	}
}

func TestDriverRegisteredWithStoreRegistry(t *testing.T) {
	s, err := store.Open(store.Config{Driver: "bolt", Path: filepath.Join(t.TempDir(), "cells.db")})
	if err != nil {
		t.Fatalf("unexpected error from registry open: %v", err)
	}
	defer s.Close()
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error from Init: %v", err)
	}
}
