// Package search indexes review records for the admin search surface.
package search

// LinkRecord is the data indexed for one review record.
type LinkRecord struct {
	ID         string `json:"id"`
	Token      string `json:"token"`
	Owner      string `json:"owner"`
	Link       string `json:"link"`
	Status     string `json:"status"`
	Feedback   string `json:"feedback"`
	VerifiedBy string `json:"verified_by"`
}

// Query describes an admin search request.
type Query struct {
	Text         string
	FilterStatus string // empty = all statuses
	FilterOwner  string
	Limit        int
	Offset       int
}

// Result is a single search hit.
type Result struct {
	Token      string `json:"token"`
	Owner      string `json:"owner"`
	Link       string `json:"link"`
	Status     string `json:"status"`
	Feedback   string `json:"feedback,omitempty"`
	VerifiedBy string `json:"verified_by,omitempty"`
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over indexed records.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push review records into an index and remove them by session.
type Indexer interface {
	IndexRecords(records []LinkRecord) error
	DeleteSession(token string) error
}

func toResult(rec LinkRecord) Result {
	return Result{
		Token:      rec.Token,
		Owner:      rec.Owner,
		Link:       rec.Link,
		Status:     rec.Status,
		Feedback:   rec.Feedback,
		VerifiedBy: rec.VerifiedBy,
	}
}
