// Package dupindex tracks every link ever uploaded, across sessions and
// uploads, so repeat uploads can be flagged before a reviewer duplicates
// work. The index is advisory only: it never blocks an upload, and the log
// is append-only, so concurrent writers need no coordination and duplicate
// provenance entries are harmless.
package dupindex

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Provenance records one historical upload of a link.
type Provenance struct {
	UploadedBy      string    `json:"uploaded_by"`
	UploadedAt      time.Time `json:"uploaded_at"`
	AssignedByAdmin bool      `json:"assigned_by_admin"`
}

// Duplicate pairs a link with everywhere it has been seen before.
type Duplicate struct {
	Link       string       `json:"link"`
	Provenance []Provenance `json:"provenance"`
}

// Index is the duplicate log. Check is read-only; Record appends provenance
// once per committed upload and is never retried.
type Index interface {
	Check(ctx context.Context, links []string) ([]Duplicate, error)
	Record(ctx context.Context, links []string, prov Provenance) error
}

// Normalize trims surrounding whitespace. Comparison stays case sensitive:
// document URLs may be case sensitive on their hosts.
func Normalize(link string) string {
	return strings.TrimSpace(link)
}

// Memory is the in-process fallback used when no Redis is configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]Provenance
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]Provenance)}
}

func (m *Memory) Check(ctx context.Context, links []string) ([]Duplicate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Duplicate
	for _, link := range links {
		link = Normalize(link)
		if provs, ok := m.entries[link]; ok && len(provs) > 0 {
			copied := make([]Provenance, len(provs))
			copy(copied, provs)
			out = append(out, Duplicate{Link: link, Provenance: copied})
		}
	}
	return out, nil
}

func (m *Memory) Record(ctx context.Context, links []string, prov Provenance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, link := range links {
		link = Normalize(link)
		if link == "" {
			continue
		}
		m.entries[link] = append(m.entries[link], prov)
	}
	return nil
}
