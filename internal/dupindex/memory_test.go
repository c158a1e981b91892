package dupindex

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryRecordAndCheck(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()

	if err := idx.Record(ctx, []string{"https://a", "https://b", ""}, Provenance{UploadedBy: "alice"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	dups, err := idx.Check(ctx, []string{"https://a", "https://c"})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(dups) != 1 || dups[0].Link != "https://a" {
		t.Fatalf("expected https://a flagged, got %+v", dups)
	}

	// Empty links are never recorded.
	dups, _ = idx.Check(ctx, []string{""})
	if len(dups) != 0 {
		t.Errorf("empty link recorded: %+v", dups)
	}
}

func TestMemoryConcurrentAppends(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = idx.Record(ctx, []string{"https://a"}, Provenance{UploadedBy: "bot"})
			_, _ = idx.Check(ctx, []string{"https://a"})
		}()
	}
	wg.Wait()

	dups, err := idx.Check(ctx, []string{"https://a"})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(dups) != 1 || len(dups[0].Provenance) != 20 {
		t.Errorf("expected 20 provenance entries, got %+v", dups)
	}
}
