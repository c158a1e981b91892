package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestStore(ttl time.Duration) (*Store, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(ttl)
	store.now = func() time.Time { return now }
	return store, &now
}

func records(links ...string) []Record {
	out := make([]Record, len(links))
	for i, link := range links {
		out[i] = Record{Link: link}
	}
	return out
}

func TestCreateAssignsContiguousPositions(t *testing.T) {
	store, _ := newTestStore(24 * time.Hour)
	sess := store.Create("user-1", records("A", "B", "C"), CreateOptions{})

	snap, err := store.Snapshot(sess.Token)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	for i, rec := range snap.Records {
		if rec.Position != i {
			t.Errorf("record %d: expected position %d, got %d", i, i, rec.Position)
		}
		if rec.Status != StatusPending {
			t.Errorf("record %d: expected Pending, got %s", i, rec.Status)
		}
	}
}

func TestPositionsStableAfterUpdate(t *testing.T) {
	store, _ := newTestStore(24 * time.Hour)
	sess := store.Create("user-1", records("A", "B", "C"), CreateOptions{})

	if _, err := store.UpdateRecord(sess.Token, "B", StatusRejected, "blurry scan"); err != nil {
		t.Fatalf("UpdateRecord failed: %v", err)
	}

	snap, _ := store.Snapshot(sess.Token)
	if len(snap.Records) != 3 {
		t.Fatalf("record count changed: %d", len(snap.Records))
	}
	for i, rec := range snap.Records {
		if rec.Position != i {
			t.Errorf("position changed at %d: got %d", i, rec.Position)
		}
	}
	if snap.Records[1].Status != StatusRejected || snap.Records[1].Feedback != "blurry scan" {
		t.Errorf("update not applied: %+v", snap.Records[1])
	}
}

func TestUpdateRecordIdempotent(t *testing.T) {
	store, _ := newTestStore(24 * time.Hour)
	sess := store.Create("user-1", records("A", "B"), CreateOptions{})

	first, err := store.UpdateRecord(sess.Token, "A", StatusAccepted, "")
	if err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	second, err := store.UpdateRecord(sess.Token, "A", StatusAccepted, "")
	if err != nil {
		t.Fatalf("second update failed: %v", err)
	}
	if first != second {
		t.Errorf("identical updates diverged: %+v vs %+v", first, second)
	}
}

func TestUpdateRecordUnknownLink(t *testing.T) {
	store, _ := newTestStore(24 * time.Hour)
	sess := store.Create("user-1", records("A"), CreateOptions{})

	_, err := store.UpdateRecord(sess.Token, "missing", StatusAccepted, "")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestUnknownTokenFailsUniformly(t *testing.T) {
	store, _ := newTestStore(24 * time.Hour)

	if err := store.Touch("nope"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Touch: expected ErrSessionExpired, got %v", err)
	}
	if _, err := store.Snapshot("nope"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Snapshot: expected ErrSessionExpired, got %v", err)
	}
	if _, err := store.UpdateRecord("nope", "A", StatusAccepted, ""); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("UpdateRecord: expected ErrSessionExpired, got %v", err)
	}
}

func TestExpiryAndTouchExtension(t *testing.T) {
	store, now := newTestStore(time.Hour)
	sess := store.Create("user-1", records("A"), CreateOptions{})

	*now = now.Add(50 * time.Minute)
	if err := store.Touch(sess.Token); err != nil {
		t.Fatalf("Touch within TTL failed: %v", err)
	}

	// Touch slid the expiry forward, so another 50 minutes stays valid.
	*now = now.Add(50 * time.Minute)
	if err := store.Touch(sess.Token); err != nil {
		t.Fatalf("Touch after extension failed: %v", err)
	}

	*now = now.Add(2 * time.Hour)
	if err := store.Touch(sess.Token); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired after TTL, got %v", err)
	}
}

func TestSweepExpiredFiresHooks(t *testing.T) {
	store, now := newTestStore(time.Hour)

	var mu sync.Mutex
	var invalidated []string
	store.OnInvalidate(func(token string) {
		mu.Lock()
		invalidated = append(invalidated, token)
		mu.Unlock()
	})

	sess := store.Create("user-1", records("A"), CreateOptions{})
	if n := store.SweepExpired(); n != 0 {
		t.Fatalf("premature sweep removed %d", n)
	}

	*now = now.Add(2 * time.Hour)
	if n := store.SweepExpired(); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(invalidated) != 1 || invalidated[0] != sess.Token {
		t.Errorf("hook not fired for %s: %v", sess.Token, invalidated)
	}
}

func TestInvalidateRemovesSession(t *testing.T) {
	store, _ := newTestStore(time.Hour)
	sess := store.Create("user-1", records("A"), CreateOptions{})

	store.Invalidate(sess.Token)
	if err := store.Touch(sess.Token); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired after invalidate, got %v", err)
	}
	// A second invalidate of the same token is harmless.
	store.Invalidate(sess.Token)
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	store, _ := newTestStore(time.Hour)
	var links []string
	for i := 0; i < 50; i++ {
		links = append(links, fmt.Sprintf("link-%d", i))
	}
	sess := store.Create("user-1", records(links...), CreateOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(link string) {
			defer wg.Done()
			if _, err := store.UpdateRecord(sess.Token, link, StatusAccepted, ""); err != nil {
				t.Errorf("update %s failed: %v", link, err)
			}
		}(links[i])
	}
	wg.Wait()

	snap, _ := store.Snapshot(sess.Token)
	for _, rec := range snap.Records {
		if rec.Status != StatusAccepted {
			t.Errorf("record %s not updated", rec.Link)
		}
	}
}

func TestRestoreSkipsExpired(t *testing.T) {
	store, now := newTestStore(time.Hour)

	live := &Session{Token: "live", ExpiresAt: now.Add(time.Hour), Records: records("A")}
	dead := &Session{Token: "dead", ExpiresAt: now.Add(-time.Minute), Records: records("B")}
	store.Restore(live)
	store.Restore(dead)

	if store.Len() != 1 {
		t.Fatalf("expected 1 restored session, got %d", store.Len())
	}
	if err := store.Touch("live"); err != nil {
		t.Errorf("live session not restored: %v", err)
	}
	if err := store.Touch("dead"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expired session restored: %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"Accepted", StatusAccepted},
		{"accept", StatusAccepted},
		{"ACCEPTED", StatusAccepted},
		{"acept", StatusAccepted},
		{"Rejected", StatusRejected},
		{"rej", StatusRejected},
		{"rejected ", StatusRejected},
		{"", StatusPending},
		{"Pending", StatusPending},
		{"something else", StatusPending},
	}
	for _, tt := range tests {
		if got := ParseStatus(tt.in); got != tt.want {
			t.Errorf("ParseStatus(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
