package app

import (
	"sort"
	"time"

	"linkreview/api/internal/session"
)

// StatusCounts is the per-status record tally for one session.
type StatusCounts struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Pending  int `json:"pending"`
}

// SessionStats is one row of the admin dashboard.
type SessionStats struct {
	Token             string       `json:"token"`
	Owner             string       `json:"owner"`
	OriginalFilename  string       `json:"original_filename,omitempty"`
	AssignedByAdmin   bool         `json:"assigned_by_admin"`
	Assignment        string       `json:"assignment,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	ExpiresAt         time.Time    `json:"expires_at"`
	Total             int          `json:"total"`
	DuplicatesRemoved int          `json:"duplicates_removed"`
	Counts            StatusCounts `json:"counts"`
	CompletionRate    float64      `json:"completion_rate"`
}

// DashboardReport aggregates every live session for the admin view.
// Totals are computed on demand from the live sessions, never maintained
// incrementally.
type DashboardReport struct {
	Sessions           []SessionStats `json:"sessions"`
	TotalSessions      int            `json:"total_sessions"`
	TotalUploadedLinks int            `json:"total_uploaded_links"`
	TotalAssignedLinks int            `json:"total_assigned_links"`
	TotalDuplicates    int            `json:"total_duplicates"`
	TotalAccepted      int            `json:"total_accepted"`
	TotalRejected      int            `json:"total_rejected"`
	TotalPending       int            `json:"total_pending"`
	CompletionRate     float64        `json:"completion_rate"`
}

func countStatuses(records []session.Record) StatusCounts {
	var counts StatusCounts
	for _, rec := range records {
		switch rec.Status {
		case session.StatusAccepted:
			counts.Accepted++
		case session.StatusRejected:
			counts.Rejected++
		default:
			counts.Pending++
		}
	}
	return counts
}

func completionRate(counts StatusCounts, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(counts.Accepted+counts.Rejected) / float64(total)
}

func sessionStats(sess session.Session) SessionStats {
	counts := countStatuses(sess.Records)
	total := len(sess.Records)
	stats := SessionStats{
		Token:             sess.Token,
		Owner:             sess.OwnerUserID,
		OriginalFilename:  sess.OriginalFilename,
		AssignedByAdmin:   sess.AssignedByAdmin,
		CreatedAt:         sess.CreatedAt,
		ExpiresAt:         sess.ExpiresAt,
		Total:             total,
		DuplicatesRemoved: sess.DuplicatesRemoved,
		Counts:            counts,
		CompletionRate:    completionRate(counts, total),
	}
	if sess.Descriptor != nil {
		stats.Assignment = sess.Descriptor.Describe()
	}
	return stats
}

func buildDashboard(sessions []session.Session) DashboardReport {
	report := DashboardReport{Sessions: make([]SessionStats, 0, len(sessions))}
	for _, sess := range sessions {
		stats := sessionStats(sess)
		report.Sessions = append(report.Sessions, stats)
		report.TotalAssignedLinks += stats.Total
		report.TotalDuplicates += stats.DuplicatesRemoved
		report.TotalAccepted += stats.Counts.Accepted
		report.TotalRejected += stats.Counts.Rejected
		report.TotalPending += stats.Counts.Pending
	}
	report.TotalSessions = len(report.Sessions)
	report.TotalUploadedLinks = report.TotalAssignedLinks + report.TotalDuplicates
	if report.TotalAssignedLinks > 0 {
		report.CompletionRate = float64(report.TotalAccepted+report.TotalRejected) / float64(report.TotalAssignedLinks)
	}
	sort.Slice(report.Sessions, func(i, j int) bool {
		return report.Sessions[i].CreatedAt.After(report.Sessions[j].CreatedAt)
	})
	return report
}
