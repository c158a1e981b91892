package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"linkreview/api/internal/session"
)

func testSession(token string, expiresAt time.Time) session.Session {
	return session.Session{
		Token:          token,
		OwnerUserID:    "reviewer-1",
		CreatedAt:      time.Now().Add(-time.Hour),
		ExpiresAt:      expiresAt,
		LastAccessedAt: time.Now(),
		Records: []session.Record{
			{Link: "https://docs.example.com/a", Status: session.StatusAccepted, Position: 0},
			{Link: "https://docs.example.com/b", Status: session.StatusRejected, Feedback: "blurry scan", Position: 1},
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	future := time.Now().Add(24 * time.Hour)
	saved := []session.Session{testSession("tok-1", future), testSession("tok-2", future)}
	if err := fs.SaveAll(ctx, saved); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	loaded, err := fs.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(loaded))
	}

	byToken := map[string]session.Session{}
	for _, sess := range loaded {
		byToken[sess.Token] = sess
	}
	got, ok := byToken["tok-1"]
	if !ok {
		t.Fatal("tok-1 missing after round trip")
	}
	if len(got.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got.Records))
	}
	if got.Records[1].Status != session.StatusRejected || got.Records[1].Feedback != "blurry scan" {
		t.Errorf("record state lost: %+v", got.Records[1])
	}
	if got.Records[0].Position != 0 || got.Records[1].Position != 1 {
		t.Errorf("positions lost: %+v", got.Records)
	}
}

func TestFileStoreLoadDropsExpired(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	saved := []session.Session{
		testSession("live", time.Now().Add(time.Hour)),
		testSession("dead", time.Now().Add(-time.Hour)),
	}
	if err := fs.SaveAll(ctx, saved); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	loaded, err := fs.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Token != "live" {
		t.Errorf("expected only live session, got %+v", loaded)
	}
}

func TestFileStoreDelete(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	future := time.Now().Add(time.Hour)
	if err := fs.SaveAll(ctx, []session.Session{testSession("a", future), testSession("b", future)}); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}
	if err := fs.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := fs.Delete(ctx, "missing"); err != nil {
		t.Fatalf("Delete of missing token failed: %v", err)
	}

	loaded, err := fs.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Token != "b" {
		t.Errorf("expected only b, got %+v", loaded)
	}
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	loaded, err := fs.Load(context.Background())
	if err != nil {
		t.Fatalf("Load of missing file failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty load, got %d", len(loaded))
	}
}
