package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/hex-mosaic/internal/mosaic"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "mosaic.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndReadBack(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	recs := []mosaic.Record{
		{ID: "a", Kind: mosaic.KindSeed, Prompt: "p", Status: mosaic.StatusOK, PayloadBytes: 1200, Duration: 2 * time.Second, CreatedAt: base},
		{ID: "b", Kind: mosaic.KindExtend, Q: 1, Direction: "E", Prompt: "p", Status: mosaic.StatusFailed, Error: "no image", CreatedAt: base.Add(time.Minute)},
		{ID: "c", Kind: mosaic.KindExtend, Q: 1, R: -1, Direction: "NE", Prompt: "p", Status: mosaic.StatusDiscarded, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range recs {
		if err := db.RecordGeneration(ctx, r); err != nil {
			t.Fatalf("RecordGeneration: %v", err)
		}
	}

	got, err := db.RecentGenerations(ctx, 2)
	if err != nil {
		t.Fatalf("RecentGenerations: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("expected newest first, got %+v", got)
	}
	if got[1].Error != "no image" || got[1].Direction != "E" || !got[1].CreatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("fields not preserved: %+v", got[1])
	}

	all, err := db.RecentGenerations(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if all[2].Duration != 2*time.Second || all[2].PayloadBytes != 1200 {
		t.Fatalf("seed record = %+v", all[2])
	}

	stats, err := db.GenerationStats(ctx)
	if err != nil {
		t.Fatalf("GenerationStats: %v", err)
	}
	if stats.Total != 3 || stats.OK != 1 || stats.Failed != 1 || stats.Discarded != 1 || stats.PayloadBytes != 1200 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	db := openTemp(t)
	rec := mosaic.Record{ID: "dup", Kind: mosaic.KindSeed, Status: mosaic.StatusOK, CreatedAt: time.Now()}
	if err := db.RecordGeneration(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordGeneration(context.Background(), rec); err == nil {
		t.Fatalf("expected unique constraint error")
	}
}

func TestEmptyJournal(t *testing.T) {
	db := openTemp(t)
	got, err := db.RecentGenerations(context.Background(), 5)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty journal, got %v %v", got, err)
	}
	stats, err := db.GenerationStats(context.Background())
	if err != nil || stats.Total != 0 {
		t.Fatalf("stats = %+v %v", stats, err)
	}
}

func TestReopenKeepsJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	db.RecordGeneration(context.Background(), mosaic.Record{ID: "x", Kind: mosaic.KindSeed, Status: mosaic.StatusOK, CreatedAt: time.Now()})
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	got, err := db.RecentGenerations(context.Background(), 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("journal lost on reopen: %v %v", got, err)
	}
}
