// Package partition splits a deduplicated link corpus across reviewers,
// either by percentage shares or by explicit row ranges. Validation runs
// against the whole plan before anything is handed to the session store, so
// a bad plan never commits partially.
package partition

import (
	"errors"
	"fmt"
	"log"

	"linkreview/api/internal/session"
)

var ErrInvalidPlan = errors.New("invalid assignment plan")

// Entry is one reviewer's share. Percentage and Start/End are mutually
// exclusive; a plan mixes modes only at its peril and Validate rejects that.
type Entry struct {
	UserID     string `json:"user_id"`
	Percentage int    `json:"percentage,omitempty"`
	Start      int    `json:"start,omitempty"`
	End        int    `json:"end,omitempty"`
}

// Plan is an ordered list of entries. Percentage plans grant contiguous
// slices in plan order; range plans address rows directly (1-indexed,
// inclusive).
type Plan struct {
	Entries []Entry `json:"entries"`
}

// Slice is one reviewer's share of the corpus, ready to become a session.
// Records are fresh Pending copies; the descriptor is retained for
// dashboards.
type Slice struct {
	UserID     string
	Descriptor *session.Assignment
	Records    []session.Record
}

func (p Plan) isPercentage() bool {
	for _, e := range p.Entries {
		if e.Percentage != 0 {
			return true
		}
	}
	return false
}

// Validate checks the plan against a corpus of n links. Any violation
// returns ErrInvalidPlan wrapped with the reason.
func (p Plan) Validate(n int) error {
	if len(p.Entries) == 0 {
		return fmt.Errorf("%w: no entries", ErrInvalidPlan)
	}
	for _, e := range p.Entries {
		if e.UserID == "" {
			return fmt.Errorf("%w: entry missing user_id", ErrInvalidPlan)
		}
	}

	if p.isPercentage() {
		total := 0
		for _, e := range p.Entries {
			if e.Start != 0 || e.End != 0 {
				return fmt.Errorf("%w: entry for %s mixes percentage and range", ErrInvalidPlan, e.UserID)
			}
			if e.Percentage <= 0 {
				return fmt.Errorf("%w: percentage for %s must be positive", ErrInvalidPlan, e.UserID)
			}
			total += e.Percentage
		}
		if total > 100 {
			return fmt.Errorf("%w: percentages total %d, exceeding 100", ErrInvalidPlan, total)
		}
		return nil
	}

	for _, e := range p.Entries {
		if e.Start > e.End {
			return fmt.Errorf("%w: range for %s has start %d after end %d", ErrInvalidPlan, e.UserID, e.Start, e.End)
		}
		if e.Start < 1 {
			return fmt.Errorf("%w: range for %s starts at %d, ranges are 1-indexed", ErrInvalidPlan, e.UserID, e.Start)
		}
		if e.End > n {
			return fmt.Errorf("%w: range for %s ends at %d, corpus has %d links", ErrInvalidPlan, e.UserID, e.End, n)
		}
	}
	warnOverlaps(p.Entries)
	return nil
}

// Overlapping ranges are allowed: two reviewers then hold the same link with
// independently mutable status. The divergence risk is the admin's to accept,
// but it is worth a log line.
func warnOverlaps(entries []Entry) {
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			if a.Start <= b.End && b.Start <= a.End {
				log.Printf("partition: ranges for %s (%d-%d) and %s (%d-%d) overlap; statuses may diverge",
					a.UserID, a.Start, a.End, b.UserID, b.Start, b.End)
			}
		}
	}
}

// Split applies a validated plan to the deduplicated corpus and returns one
// slice per entry, in plan order.
//
// Percentage mode: each entry receives floor(pct/100 * n) records as a
// contiguous slice; the flooring remainder is appended to the last entry.
// When the total is under 100 the tail of the corpus stays unassigned.
func (p Plan) Split(records []session.Record) ([]Slice, error) {
	n := len(records)
	if err := p.Validate(n); err != nil {
		return nil, err
	}

	if p.isPercentage() {
		return p.splitPercentage(records), nil
	}
	return p.splitRanges(records), nil
}

func (p Plan) splitPercentage(records []session.Record) []Slice {
	n := len(records)
	shares := make([]int, len(p.Entries))
	sum := 0
	totalPct := 0
	for i, e := range p.Entries {
		shares[i] = e.Percentage * n / 100
		sum += shares[i]
		totalPct += e.Percentage
	}
	if totalPct == 100 {
		// Flooring remainder goes to the last entry.
		shares[len(shares)-1] += n - sum
	}

	out := make([]Slice, 0, len(p.Entries))
	offset := 0
	for i, e := range p.Entries {
		out = append(out, Slice{
			UserID:     e.UserID,
			Descriptor: &session.Assignment{Percentage: e.Percentage},
			Records:    freshCopies(records[offset : offset+shares[i]]),
		})
		offset += shares[i]
	}
	return out
}

func (p Plan) splitRanges(records []session.Record) []Slice {
	out := make([]Slice, 0, len(p.Entries))
	for _, e := range p.Entries {
		out = append(out, Slice{
			UserID:     e.UserID,
			Descriptor: &session.Assignment{Start: e.Start, End: e.End},
			Records:    freshCopies(records[e.Start-1 : e.End]),
		})
	}
	return out
}

// freshCopies resets review state: assigned slices start Pending regardless
// of any state carried in the uploaded CSV.
func freshCopies(records []session.Record) []session.Record {
	out := make([]session.Record, len(records))
	for i, rec := range records {
		out[i] = session.Record{Link: rec.Link, Status: session.StatusPending}
	}
	return out
}
