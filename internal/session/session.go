// Package session owns the per-reviewer session and its ordered record list.
//
// A session is created once with a fixed-length record sequence; records are
// mutated in place afterwards, never inserted or removed. All mutation on a
// session is serialized by a per-session lock so status updates and page
// preparation touching the same session never race; unrelated sessions stay
// fully concurrent.
package session

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending  Status = "Pending"
	StatusAccepted Status = "Accepted"
	StatusRejected Status = "Rejected"
)

// ParseStatus maps free-form status text to a canonical Status. Common
// shorthand variants from hand-edited spreadsheets are recognized; anything
// unrecognized or blank is Pending.
func ParseStatus(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return StatusPending
	case strings.HasPrefix(s, "accept"), s == "acept", s == "acpt":
		return StatusAccepted
	case strings.HasPrefix(s, "reject"), s == "rej":
		return StatusRejected
	case s == "pending":
		return StatusPending
	default:
		return StatusPending
	}
}

// Record is one reviewed link. Link is the sole stable identity key;
// Position is display ordering only and never identifies a record, because
// filtered views reorder and shrink the visible sequence.
type Record struct {
	Link       string `json:"link"`
	Status     Status `json:"status"`
	Feedback   string `json:"feedback"`
	VerifiedBy string `json:"verified_by"`
	Position   int    `json:"position"`
}

// Assignment describes how an admin partitioned this session's slice out of
// the uploaded corpus. Exactly one of Percentage or Start/End is meaningful.
type Assignment struct {
	Percentage int `json:"percentage,omitempty"`
	Start      int `json:"start,omitempty"`
	End        int `json:"end,omitempty"`
}

// Describe renders the assignment for dashboards: "60%" or "rows 3-7".
func (a *Assignment) Describe() string {
	if a == nil {
		return ""
	}
	if a.Percentage > 0 {
		return fmt.Sprintf("%d%%", a.Percentage)
	}
	return fmt.Sprintf("rows %d-%d", a.Start, a.End)
}

type Session struct {
	Token             string      `json:"token"`
	OwnerUserID       string      `json:"owner_user_id"`
	OriginalFilename  string      `json:"original_filename,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	ExpiresAt         time.Time   `json:"expires_at"`
	LastAccessedAt    time.Time   `json:"last_accessed_at"`
	AssignedByAdmin   bool        `json:"assigned_by_admin"`
	Descriptor        *Assignment `json:"descriptor,omitempty"`
	DuplicatesRemoved int         `json:"duplicates_removed"`
	Records           []Record    `json:"records"`
}

// Expired reports whether the session's TTL has lapsed at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
