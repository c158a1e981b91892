package search

import (
	"sort"
	"strings"
	"sync"
)

// Local implements Searcher and Indexer over an in-memory map. It is the
// fallback when Meilisearch is not configured or unreachable; sessions live
// in memory anyway, so the fallback never lags behind.
type Local struct {
	mu      sync.RWMutex
	records map[string]LinkRecord // by record ID
}

func NewLocal() *Local {
	return &Local{records: make(map[string]LinkRecord)}
}

// Healthy always returns true.
func (l *Local) Healthy() bool {
	return true
}

func (l *Local) IndexRecords(records []LinkRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range records {
		l.records[rec.ID] = rec
	}
	return nil
}

func (l *Local) DeleteSession(token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, rec := range l.records {
		if rec.Token == token {
			delete(l.records, id)
		}
	}
	return nil
}

// Search does a case-insensitive substring match over link, feedback and
// verified_by, honoring status and owner filters.
func (l *Local) Search(q Query) ([]Result, int, error) {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	if text == "" {
		return nil, 0, nil
	}

	l.mu.RLock()
	var matched []LinkRecord
	for _, rec := range l.records {
		if q.FilterStatus != "" && rec.Status != q.FilterStatus {
			continue
		}
		if q.FilterOwner != "" && rec.Owner != q.FilterOwner {
			continue
		}
		if strings.Contains(strings.ToLower(rec.Link), text) ||
			strings.Contains(strings.ToLower(rec.Feedback), text) ||
			strings.Contains(strings.ToLower(rec.VerifiedBy), text) {
			matched = append(matched, rec)
		}
	}
	l.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := len(matched)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	end := offset + limit
	if end > total {
		end = total
	}

	results := make([]Result, 0, end-offset)
	for _, rec := range matched[offset:end] {
		results = append(results, toResult(rec))
	}
	return results, total, nil
}
