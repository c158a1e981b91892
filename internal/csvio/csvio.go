// Package csvio reads uploaded link lists and writes review exports.
//
// Uploads arrive as spreadsheets exported by hand from many tools, so the
// reader is deliberately forgiving: it tolerates a UTF-8 BOM, falls back to
// Windows-1252 for legacy exports, accepts Link/URL column names in any
// casing, and resumes partially reviewed files by honoring Status, Feedback
// and Verified By columns when present.
package csvio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"linkreview/api/internal/session"
)

var (
	ErrNoLinkColumn = errors.New("no link column found")
	ErrEmptyFile    = errors.New("empty csv file")
)

// ParseResult is a deduplicated upload. Total + DuplicatesRemoved +
// EmptyRemoved always equals the raw data row count.
type ParseResult struct {
	Records           []session.Record
	Total             int
	DuplicatesRemoved int
	EmptyRemoved      int
}

// Parse reads a CSV upload into ordered records, deduplicating by link
// (keep first) and dropping rows with an empty link.
func Parse(r io.Reader) (ParseResult, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return ParseResult{}, fmt.Errorf("read upload: %w", err)
	}

	rows, err := decodeRows(raw)
	if err != nil {
		return ParseResult{}, err
	}
	if len(rows) == 0 {
		return ParseResult{}, ErrEmptyFile
	}

	header := rows[0]
	linkCol := findLinkColumn(header)
	if linkCol < 0 {
		return ParseResult{}, ErrNoLinkColumn
	}
	statusCol := findColumn(header, isStatusColumn)
	feedbackCol := findColumn(header, isFeedbackColumn)
	verifiedCol := findColumn(header, isVerifiedColumn)

	result := ParseResult{}
	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		link := strings.TrimSpace(cell(row, linkCol))
		if link == "" {
			result.EmptyRemoved++
			continue
		}
		if seen[link] {
			result.DuplicatesRemoved++
			continue
		}
		seen[link] = true

		result.Records = append(result.Records, session.Record{
			Link:       link,
			Status:     session.ParseStatus(cell(row, statusCol)),
			Feedback:   strings.TrimSpace(cell(row, feedbackCol)),
			VerifiedBy: strings.TrimSpace(cell(row, verifiedCol)),
			Position:   len(result.Records),
		})
	}
	result.Total = len(result.Records)
	return result, nil
}

// Links returns just the normalized links, for duplicate-index lookups.
func (r ParseResult) Links() []string {
	links := make([]string, len(r.Records))
	for i, rec := range r.Records {
		links[i] = rec.Link
	}
	return links
}

// decodeRows parses CSV bytes, trying UTF-8 first (BOM tolerated) and
// falling back to Windows-1252 when the payload is not valid UTF-8.
func decodeRows(raw []byte) ([][]string, error) {
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(raw) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, fmt.Errorf("decode windows-1252: %w", err)
		}
		raw = decoded
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// findLinkColumn prefers an exact (case-insensitive) "link" or "url" header
// and falls back to any header containing either word.
func findLinkColumn(header []string) int {
	for i, name := range header {
		lc := strings.ToLower(strings.TrimSpace(name))
		if lc == "link" || lc == "url" {
			return i
		}
	}
	for i, name := range header {
		lc := strings.ToLower(strings.TrimSpace(name))
		if strings.Contains(lc, "link") || strings.Contains(lc, "url") {
			return i
		}
	}
	return -1
}

func findColumn(header []string, match func(string) bool) int {
	for i, name := range header {
		if match(name) {
			return i
		}
	}
	return -1
}

func isStatusColumn(name string) bool {
	return strings.ToLower(strings.TrimSpace(name)) == "status"
}

func isFeedbackColumn(name string) bool {
	return strings.ToLower(strings.TrimSpace(name)) == "feedback"
}

// isVerifiedColumn matches "Verified By" and its usual mutations:
// verified_by, verifiedby, Verified.
func isVerifiedColumn(name string) bool {
	lc := strings.TrimSpace(strings.ReplaceAll(strings.ToLower(name), "_", " "))
	if lc == "verified by" || lc == "verifiedby" || lc == "verified" {
		return true
	}
	return strings.Contains(lc, "verified")
}
