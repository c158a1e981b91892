package search

import (
	"fmt"
	"log"

	"linkreview/api/internal/session"
)

// Service is the facade that tries Meilisearch first and falls back to the
// in-memory index. The local index is always kept current so a fallback
// search never comes up empty.
type Service struct {
	meili *Meili
	local *Local
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, local *Local) *Service {
	return &Service{meili: meili, local: local}
}

// Search tries Meilisearch if healthy, otherwise uses the local index.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to local index: %v", err)
	}

	results, total, err := s.local.Search(q)
	if err != nil {
		log.Printf("search: local index error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexSession indexes every record of a session. The local index is updated
// synchronously; Meilisearch is fire-and-forget.
func (s *Service) IndexSession(sess session.Session) {
	records := sessionRecords(sess)
	if err := s.local.IndexRecords(records); err != nil {
		log.Printf("search: local index session %s: %v", sess.Token, err)
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexRecords(records); err != nil {
			log.Printf("search: index session %s: %v", sess.Token, err)
		}
	}()
}

// DeleteSession removes a session's records from both indexes.
func (s *Service) DeleteSession(token string) {
	if err := s.local.DeleteSession(token); err != nil {
		log.Printf("search: local delete session %s: %v", token, err)
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteSession(token); err != nil {
			log.Printf("search: delete session %s: %v", token, err)
		}
	}()
}

func sessionRecords(sess session.Session) []LinkRecord {
	records := make([]LinkRecord, 0, len(sess.Records))
	for _, rec := range sess.Records {
		records = append(records, LinkRecord{
			ID:         fmt.Sprintf("%s-%d", sess.Token, rec.Position),
			Token:      sess.Token,
			Owner:      sess.OwnerUserID,
			Link:       rec.Link,
			Status:     string(rec.Status),
			Feedback:   rec.Feedback,
			VerifiedBy: rec.VerifiedBy,
		})
	}
	return records
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
