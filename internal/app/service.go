// Package app wires the review engine together and exposes it over HTTP.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"linkreview/api/internal/csvio"
	"linkreview/api/internal/dupindex"
	"linkreview/api/internal/partition"
	"linkreview/api/internal/preview"
	"linkreview/api/internal/search"
	"linkreview/api/internal/session"
)

// SessionPersister saves and restores session snapshots across restarts.
type SessionPersister interface {
	SaveAll(ctx context.Context, sessions []session.Session) error
	Delete(ctx context.Context, token string) error
	Load(ctx context.Context) ([]session.Session, error)
	Ping(ctx context.Context) error
}

// Service implements the review session operations behind the HTTP layer.
type Service struct {
	sessions  *session.Store
	dups      dupindex.Index
	previews  *preview.Pipeline
	search    *search.Service
	persister SessionPersister
}

func NewService(sessions *session.Store, dups dupindex.Index, previews *preview.Pipeline, searchSvc *search.Service, persister SessionPersister) *Service {
	return &Service{
		sessions:  sessions,
		dups:      dups,
		previews:  previews,
		search:    searchSvc,
		persister: persister,
	}
}

// Sessions exposes the underlying store for invalidation hook wiring.
func (s *Service) Sessions() *session.Store {
	return s.sessions
}

// Ping reports whether the persistence backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.persister.Ping(ctx)
}

// RestoreSessions loads persisted sessions into the store. Expired sessions
// are dropped by both the persister and the store.
func (s *Service) RestoreSessions(ctx context.Context) (int, error) {
	sessions, err := s.persister.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load sessions: %w", err)
	}
	for i := range sessions {
		s.sessions.Restore(&sessions[i])
		if snap, err := s.sessions.Snapshot(sessions[i].Token); err == nil {
			s.search.IndexSession(snap)
		}
	}
	return s.sessions.Len(), nil
}

// PersistAll writes every live session to the persistence backend.
func (s *Service) PersistAll(ctx context.Context) error {
	return s.persister.SaveAll(ctx, s.sessions.All())
}

// SweepExpired removes expired sessions and fires their invalidation hooks.
func (s *Service) SweepExpired() int {
	return s.sessions.SweepExpired()
}

// UploadResult is the response payload for a reviewer upload.
type UploadResult struct {
	Message           string               `json:"message"`
	Token             string               `json:"token"`
	Total             int                  `json:"total"`
	DuplicatesRemoved int                  `json:"duplicates_removed"`
	EmptyRemoved      int                  `json:"empty_links_removed"`
	KnownLinks        []dupindex.Duplicate `json:"known_links"`
	ExpiresAt         time.Time            `json:"expires_at"`
	ExpiresInHours    int                  `json:"expires_in_hours"`
}

// Upload parses a reviewer's CSV, deduplicates it, reports links the corpus
// has seen before, records provenance and opens a fresh session. An empty
// uploader name falls back to anonymous.
func (s *Service) Upload(ctx context.Context, ownerUserID, filename string, file io.Reader) (UploadResult, error) {
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		ownerUserID = "anonymous"
	}

	parsed, err := csvio.Parse(file)
	if err != nil {
		return UploadResult{}, uploadParseError(err)
	}

	known := s.checkKnown(ctx, parsed.Links())

	sess := s.sessions.Create(ownerUserID, parsed.Records, session.CreateOptions{
		OriginalFilename:  filepath.Base(filename),
		DuplicatesRemoved: parsed.DuplicatesRemoved,
	})
	s.indexSnapshot(sess.Token)

	if err := s.dups.Record(ctx, parsed.Links(), dupindex.Provenance{
		UploadedBy: ownerUserID,
		UploadedAt: time.Now().UTC(),
	}); err != nil {
		log.Printf("upload: record provenance: %v", err)
	}

	return UploadResult{
		Message:           "File uploaded successfully",
		Token:             sess.Token,
		Total:             parsed.Total,
		DuplicatesRemoved: parsed.DuplicatesRemoved,
		EmptyRemoved:      parsed.EmptyRemoved,
		KnownLinks:        known,
		ExpiresAt:         sess.ExpiresAt,
		ExpiresInHours:    int(math.Round(time.Until(sess.ExpiresAt).Hours())),
	}, nil
}

// DuplicateReport is the response of a dry-run duplicate check.
type DuplicateReport struct {
	IsDuplicate       bool                 `json:"is_duplicate"`
	Message           string               `json:"message"`
	Total             int                  `json:"total"`
	DuplicatesRemoved int                  `json:"duplicates_removed"`
	KnownLinks        []dupindex.Duplicate `json:"duplicates"`
}

// CheckDuplicateFile parses an upload and reports which of its links the
// corpus already knows, without creating a session or recording anything.
func (s *Service) CheckDuplicateFile(ctx context.Context, file io.Reader) (DuplicateReport, error) {
	parsed, err := csvio.Parse(file)
	if err != nil {
		return DuplicateReport{}, uploadParseError(err)
	}
	known := s.checkKnown(ctx, parsed.Links())
	report := DuplicateReport{
		IsDuplicate:       len(known) > 0,
		Message:           "No previously uploaded links found",
		Total:             parsed.Total,
		DuplicatesRemoved: parsed.DuplicatesRemoved,
		KnownLinks:        known,
	}
	if report.IsDuplicate {
		report.Message = fmt.Sprintf("%d of %d links were uploaded before", len(known), parsed.Total)
	}
	return report, nil
}

func (s *Service) checkKnown(ctx context.Context, links []string) []dupindex.Duplicate {
	known, err := s.dups.Check(ctx, links)
	if err != nil {
		log.Printf("duplicate check failed: %v", err)
		return []dupindex.Duplicate{}
	}
	if known == nil {
		known = []dupindex.Duplicate{}
	}
	return known
}

// SessionInfo is the response of a session check.
type SessionInfo struct {
	Token            string       `json:"token"`
	Owner            string       `json:"owner"`
	OriginalFilename string       `json:"original_filename,omitempty"`
	AssignedByAdmin  bool         `json:"assigned_by_admin"`
	Assignment       string       `json:"assignment,omitempty"`
	Total            int          `json:"total"`
	Counts           StatusCounts `json:"counts"`
	ExpiresAt        time.Time    `json:"expires_at"`
}

// SessionCheck validates a token and returns session metadata. A valid check
// slides the session's expiry window.
func (s *Service) SessionCheck(token string) (SessionInfo, error) {
	var info SessionInfo
	err := s.sessions.View(token, func(sess *session.Session) error {
		info = SessionInfo{
			Token:            sess.Token,
			Owner:            sess.OwnerUserID,
			OriginalFilename: sess.OriginalFilename,
			AssignedByAdmin:  sess.AssignedByAdmin,
			Total:            len(sess.Records),
			Counts:           countStatuses(sess.Records),
			ExpiresAt:        sess.ExpiresAt,
		}
		if sess.Descriptor != nil {
			info.Assignment = sess.Descriptor.Describe()
		}
		return nil
	})
	if err != nil {
		return SessionInfo{}, err
	}
	return info, nil
}

// DataResult carries a session's records for the review UI.
type DataResult struct {
	Records []session.Record `json:"data"`
	Total   int              `json:"total"`
	Counts  StatusCounts     `json:"counts"`
}

// Data returns the session's records in position order. A non-empty verifier
// restricts the result to records verified by that user, compared
// case-insensitively.
func (s *Service) Data(token, verifier string) (DataResult, error) {
	var result DataResult
	err := s.sessions.View(token, func(sess *session.Session) error {
		result.Counts = countStatuses(sess.Records)
		result.Records = make([]session.Record, 0, len(sess.Records))
		for _, rec := range sess.Records {
			if verifier != "" && !strings.EqualFold(rec.VerifiedBy, verifier) {
				continue
			}
			result.Records = append(result.Records, rec)
		}
		result.Total = len(result.Records)
		return nil
	})
	if err != nil {
		return DataResult{}, err
	}
	return result, nil
}

// PrepareItem is the preparation state of one record in the window.
type PrepareItem struct {
	Index         int           `json:"index"`
	Link          string        `json:"link"`
	State         preview.State `json:"state"`
	CompressedURL string        `json:"compressed_url,omitempty"`
}

// PrepareResult reports the preparation window and current snapshot states.
type PrepareResult struct {
	Items     []PrepareItem `json:"items"`
	Scheduled int           `json:"scheduled"`
	Start     int           `json:"start"`
	End       int           `json:"end"`
}

// PreparePage schedules background snapshot preparation for the requested
// page plus one page of lookahead, and reports current states. Fetch
// failures never fail the request; they show up as a failed item state on a
// later poll.
func (s *Service) PreparePage(token string, page, itemsPerPage int) (PrepareResult, error) {
	var links []string
	var start, end int
	err := s.sessions.View(token, func(sess *session.Session) error {
		start, end = preview.Window(len(sess.Records), page, itemsPerPage)
		for _, rec := range sess.Records[start:end] {
			links = append(links, rec.Link)
		}
		return nil
	})
	if err != nil {
		return PrepareResult{}, err
	}

	scheduled := s.previews.PrepareWindow(token, links)
	states := s.previews.Status(token, links)

	result := PrepareResult{
		Items:     make([]PrepareItem, 0, len(links)),
		Scheduled: scheduled,
		Start:     start,
		End:       end,
	}
	for i, link := range links {
		item := PrepareItem{Index: start + i, Link: link, State: preview.StatePending}
		if entry, ok := states[link]; ok {
			item.State = entry.State
			item.CompressedURL = entry.URL
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// UpdateStatus sets the status and feedback of one record. The raw status is
// normalized; anything unrecognized resets the record to pending.
func (s *Service) UpdateStatus(token, link, rawStatus, feedback string) (session.Record, error) {
	status := session.ParseStatus(rawStatus)
	rec, err := s.sessions.UpdateRecord(token, link, status, feedback)
	if err != nil {
		return session.Record{}, err
	}
	s.indexSnapshot(token)
	return rec, nil
}

// Export serializes the session's records as a CSV download. The filename
// echoes the original upload when one was recorded.
func (s *Service) Export(token string) (string, []byte, error) {
	var buf bytes.Buffer
	var filename string
	err := s.sessions.View(token, func(sess *session.Session) error {
		filename = exportFilename(sess.OriginalFilename)
		return csvio.Export(&buf, sess.Records)
	})
	if err != nil {
		return "", nil, err
	}
	return filename, buf.Bytes(), nil
}

func exportFilename(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	if base == "" || base == "." {
		return "review_export.csv"
	}
	return "reviewed_" + base + ".csv"
}

// AssignedSession is one reviewer's share of an admin upload.
type AssignedSession struct {
	UserID     string    `json:"user_id"`
	Token      string    `json:"token"`
	Total      int       `json:"total"`
	Assignment string    `json:"assignment"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AdminAssignResult is the response for an admin upload-and-assign.
type AdminAssignResult struct {
	Sessions          []AssignedSession `json:"sessions"`
	Total             int               `json:"total"`
	DuplicatesRemoved int               `json:"duplicates_removed"`
	Unassigned        int               `json:"unassigned"`
}

// AdminAssign parses an admin upload, validates the partition plan against
// the deduplicated corpus and opens one session per plan entry.
func (s *Service) AdminAssign(ctx context.Context, uploadedBy, filename string, file io.Reader, plan partition.Plan) (AdminAssignResult, error) {
	parsed, err := csvio.Parse(file)
	if err != nil {
		return AdminAssignResult{}, uploadParseError(err)
	}

	if err := plan.Validate(parsed.Total); err != nil {
		return AdminAssignResult{}, domainError(http.StatusUnprocessableEntity, "INVALID_PLAN", err.Error(), nil)
	}
	slices, err := plan.Split(parsed.Records)
	if err != nil {
		return AdminAssignResult{}, domainError(http.StatusUnprocessableEntity, "INVALID_PLAN", err.Error(), nil)
	}

	result := AdminAssignResult{
		Sessions:          make([]AssignedSession, 0, len(slices)),
		Total:             parsed.Total,
		DuplicatesRemoved: parsed.DuplicatesRemoved,
	}
	assigned := 0
	created := make([]string, 0, len(slices))
	for i, slice := range slices {
		// The corpus-wide duplicate count is attributed to the first slice
		// only, so dashboard totals do not multiply it per reviewer.
		dupCount := 0
		if i == 0 {
			dupCount = parsed.DuplicatesRemoved
		}
		sess := s.sessions.Create(slice.UserID, slice.Records, session.CreateOptions{
			OriginalFilename:  filepath.Base(filename),
			AssignedByAdmin:   true,
			Descriptor:        slice.Descriptor,
			DuplicatesRemoved: dupCount,
		})
		created = append(created, sess.Token)
		assigned += len(slice.Records)
		entry := AssignedSession{
			UserID:    slice.UserID,
			Token:     sess.Token,
			Total:     len(slice.Records),
			ExpiresAt: sess.ExpiresAt,
		}
		if slice.Descriptor != nil {
			entry.Assignment = slice.Descriptor.Describe()
		}
		result.Sessions = append(result.Sessions, entry)
	}
	result.Unassigned = parsed.Total - assigned

	for _, token := range created {
		s.indexSnapshot(token)
	}

	// Provenance and durability run in parallel; admin-assigned sessions
	// are persisted immediately rather than waiting for the next snapshot.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.dups.Record(gctx, parsed.Links(), dupindex.Provenance{
			UploadedBy:      uploadedBy,
			UploadedAt:      time.Now().UTC(),
			AssignedByAdmin: true,
		})
	})
	g.Go(func() error {
		return s.persister.SaveAll(gctx, s.sessions.All())
	})
	if err := g.Wait(); err != nil {
		log.Printf("admin assign: post-create bookkeeping: %v", err)
	}

	return result, nil
}

// Dashboard aggregates all live sessions. Reading the dashboard never
// extends any session's expiry.
func (s *Service) Dashboard() DashboardReport {
	return buildDashboard(s.sessions.All())
}

// RemoveSession invalidates a session by token. Invalidation hooks take care
// of persisted snapshots, cached previews and search entries.
func (s *Service) RemoveSession(token string) error {
	if _, err := s.sessions.Snapshot(token); err != nil {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Session not found", nil)
	}
	s.sessions.Invalidate(token)
	return nil
}

// Search runs an admin full-text query over all indexed records.
func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) indexSnapshot(token string) {
	snap, err := s.sessions.Snapshot(token)
	if err != nil {
		return
	}
	s.search.IndexSession(snap)
}

func uploadParseError(err error) error {
	if errors.Is(err, csvio.ErrNoLinkColumn) {
		return domainError(http.StatusBadRequest, "UPLOAD_PARSE_ERROR", "no link or url column found", nil)
	}
	if errors.Is(err, csvio.ErrEmptyFile) {
		return domainError(http.StatusBadRequest, "UPLOAD_PARSE_ERROR", "uploaded file is empty", nil)
	}
	return domainError(http.StatusBadRequest, "UPLOAD_PARSE_ERROR", err.Error(), nil)
}
