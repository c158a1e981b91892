package store

import (
	"context"
	"os"
	"testing"
	"time"

	"linkreview/api/internal/session"
)

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres integration test")
	}
	return url
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := ApplyMigrations(ctx, db, "../../db/migrations"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	pg := NewPostgresStore(db)
	token := "it-" + time.Now().Format("150405.000000000")
	sess := testSession(token, time.Now().Add(time.Hour))

	if err := pg.SaveAll(ctx, []session.Session{sess}); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}
	defer func() { _ = pg.Delete(ctx, token) }()

	loaded, err := pg.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	var found *session.Session
	for i := range loaded {
		if loaded[i].Token == token {
			found = &loaded[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("session %s not found after save", token)
	}
	if len(found.Records) != 2 || found.Records[1].Feedback != "blurry scan" {
		t.Errorf("record state lost: %+v", found.Records)
	}

	if err := pg.Delete(ctx, token); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
}
