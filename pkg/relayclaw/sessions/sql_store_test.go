package sessions

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	cfg := database.DefaultConfig()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "relayclaw.db")
	db, err := database.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	return db
}

func TestSQLStore_PutGetReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewSQLStore(openTestDB(t), nil)
	defer s.Close()

	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	key := Key{ChatID: "-100", UserID: "7"}
	if _, ok, err := s.Get(ctx, key); err != nil || ok {
		t.Fatalf("Get on empty store = %v, %v", ok, err)
	}

	if err := s.Put(ctx, key, Record{Handle: "thread_a", Version: "v1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, key, Record{Handle: "thread_b", Version: "v2"}); err != nil {
		t.Fatalf("Put (update): %v", err)
	}

	rec, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if rec.Handle != "thread_b" || rec.Version != "v2" {
		t.Errorf("record = %+v, want {thread_b v2}", rec)
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("All() returned %d rows, want 1", len(all))
	}

	if err := s.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	if _, ok, _ := s.Get(ctx, key); ok {
		t.Error("record survived ResetAll")
	}
}

func TestSQLStore_WithResolver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewSQLStore(openTestDB(t), nil)
	defer s.Close()

	r := NewResolver(s, &fakeCreator{}, "v1", nil)
	key := Key{ChatID: "5", UserID: "5"}
	a, err := r.Resolve(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("handles differ across resolves: %q vs %q", a, b)
	}
}
