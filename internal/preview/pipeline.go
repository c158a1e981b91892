package preview

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/singleflight"
)

// State is the preparation state of one session+link snapshot.
type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Entry reports the state of a prepared snapshot. URL is set once Ready.
type Entry struct {
	State     State     `json:"state"`
	URL       string    `json:"url,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Pipeline fetches, compresses and caches page snapshots in the background.
//
// Each session+link key is prepared at most once concurrently: a key that is
// Pending is never rescheduled, a Ready key is never regenerated, and a
// Failed key is retried on the next request that covers it.
type Pipeline struct {
	fetcher Fetcher
	store   ArtifactStore
	slots   chan struct{}
	group   singleflight.Group

	mu      sync.Mutex
	entries map[string]Entry
}

func NewPipeline(fetcher Fetcher, store ArtifactStore, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		fetcher: fetcher,
		store:   store,
		slots:   make(chan struct{}, workers),
		entries: make(map[string]Entry),
	}
}

// Window computes the slice of record positions to prepare for a page
// request: the requested page plus one page of lookahead.
func Window(total, pageIndex, pageSize int) (start, end int) {
	if pageSize < 1 {
		pageSize = 1
	}
	if pageIndex < 0 {
		pageIndex = 0
	}
	start = pageIndex * pageSize
	if start > total {
		start = total
	}
	end = start + 2*pageSize
	if end > total {
		end = total
	}
	return start, end
}

// PrepareWindow schedules background preparation for the given links.
// It returns immediately; the number returned is how many fetches were
// actually scheduled (links already Ready or in flight are skipped).
func (p *Pipeline) PrepareWindow(token string, links []string) int {
	scheduled := 0
	for _, link := range links {
		if p.schedule(token, link) {
			scheduled++
		}
	}
	return scheduled
}

func (p *Pipeline) schedule(token, link string) bool {
	key := cacheKey(token, link)

	p.mu.Lock()
	entry, exists := p.entries[key]
	if exists && entry.State != StateFailed {
		p.mu.Unlock()
		return false
	}
	p.entries[key] = Entry{State: StatePending, UpdatedAt: time.Now()}
	p.mu.Unlock()

	go func() {
		p.group.Do(key, func() (interface{}, error) {
			p.slots <- struct{}{}
			defer func() { <-p.slots }()
			p.prepare(key, token, link)
			return nil, nil
		})
	}()
	return true
}

func (p *Pipeline) prepare(key, token, link string) {
	fetched, err := p.fetcher.Fetch(context.Background(), link)
	if err != nil {
		p.fail(key, err)
		return
	}

	compressed, err := compress(fetched.Body)
	if err != nil {
		p.fail(key, fmt.Errorf("compress snapshot: %w", err))
		return
	}

	artifactKey := token + "/" + hashLink(link) + ".gz"
	url, err := p.store.Put(context.Background(), artifactKey, compressed, "application/gzip")
	if err != nil {
		p.fail(key, err)
		return
	}

	p.mu.Lock()
	p.entries[key] = Entry{State: StateReady, URL: url, UpdatedAt: time.Now()}
	p.mu.Unlock()
}

func (p *Pipeline) fail(key string, err error) {
	log.Printf("preview preparation failed: key=%s err=%v", key, err)
	p.mu.Lock()
	p.entries[key] = Entry{State: StateFailed, Error: err.Error(), UpdatedAt: time.Now()}
	p.mu.Unlock()
}

// Status reports the current entries for the given links. Links never
// scheduled are absent from the result.
func (p *Pipeline) Status(token string, links []string) map[string]Entry {
	out := make(map[string]Entry, len(links))
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, link := range links {
		if entry, ok := p.entries[cacheKey(token, link)]; ok {
			out[link] = entry
		}
	}
	return out
}

// PurgeSession drops all cached entries and stored artifacts for a session.
// Wired as an invalidation hook so removed sessions do not leak snapshots.
func (p *Pipeline) PurgeSession(token string) {
	prefix := token + "\x00"
	p.mu.Lock()
	for key := range p.entries {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(p.entries, key)
		}
	}
	p.mu.Unlock()

	if err := p.store.DeletePrefix(context.Background(), token+"/"); err != nil {
		log.Printf("purge artifacts failed: token=%s err=%v", token, err)
	}
}

func cacheKey(token, link string) string {
	return token + "\x00" + link
}

func hashLink(link string) string {
	sum := sha256.Sum256([]byte(link))
	return hex.EncodeToString(sum[:16])
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
