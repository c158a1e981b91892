package csvio

import (
	"encoding/csv"
	"fmt"
	"io"

	"linkreview/api/internal/session"
)

// Export writes the full ordered record set as CSV in position order,
// ignoring any client-side filtering. Pending rows carry an empty status
// cell so a re-upload of the export resumes cleanly.
func Export(w io.Writer, records []session.Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Link", "Status", "Feedback", "Verified By"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		status := string(rec.Status)
		if rec.Status == session.StatusPending {
			status = ""
		}
		if err := writer.Write([]string{rec.Link, status, rec.Feedback, rec.VerifiedBy}); err != nil {
			return fmt.Errorf("write record %s: %w", rec.Link, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return nil
}
