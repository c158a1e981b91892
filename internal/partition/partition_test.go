package partition

import (
	"errors"
	"fmt"
	"testing"

	"linkreview/api/internal/session"
)

func corpus(n int) []session.Record {
	out := make([]session.Record, n)
	for i := range out {
		out[i] = session.Record{Link: fmt.Sprintf("https://docs.example.com/%d", i), Status: session.StatusAccepted}
	}
	return out
}

func sliceLinks(s Slice) []string {
	links := make([]string, len(s.Records))
	for i, rec := range s.Records {
		links[i] = rec.Link
	}
	return links
}

func TestPercentageSixtyForty(t *testing.T) {
	plan := Plan{Entries: []Entry{
		{UserID: "u1", Percentage: 60},
		{UserID: "u2", Percentage: 40},
	}}

	slices, err := plan.Split(corpus(10))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(slices) != 2 {
		t.Fatalf("expected 2 slices, got %d", len(slices))
	}
	if len(slices[0].Records) != 6 {
		t.Errorf("u1: expected 6 records, got %d", len(slices[0].Records))
	}
	if len(slices[1].Records) != 4 {
		t.Errorf("u2: expected 4 records, got %d", len(slices[1].Records))
	}
	if got := slices[0].Records[0].Link; got != "https://docs.example.com/0" {
		t.Errorf("u1 should start at record 0, got %s", got)
	}
	if got := slices[1].Records[0].Link; got != "https://docs.example.com/6" {
		t.Errorf("u2 should start at record 6, got %s", got)
	}
	if slices[0].Descriptor.Describe() != "60%" {
		t.Errorf("descriptor: got %q", slices[0].Descriptor.Describe())
	}
}

func TestPercentageFlooringRemainderGoesToLast(t *testing.T) {
	plan := Plan{Entries: []Entry{
		{UserID: "u1", Percentage: 33},
		{UserID: "u2", Percentage: 33},
		{UserID: "u3", Percentage: 34},
	}}

	slices, err := plan.Split(corpus(10))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	counts := []int{len(slices[0].Records), len(slices[1].Records), len(slices[2].Records)}
	if counts[0] != 3 || counts[1] != 3 || counts[2] != 4 {
		t.Errorf("expected [3 3 4], got %v", counts)
	}
	if counts[0]+counts[1]+counts[2] != 10 {
		t.Errorf("plan at 100%% must cover the whole corpus, got %d", counts[0]+counts[1]+counts[2])
	}
}

func TestPercentageUnderHundredLeavesTailUnassigned(t *testing.T) {
	plan := Plan{Entries: []Entry{{UserID: "u1", Percentage: 60}}}

	slices, err := plan.Split(corpus(10))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(slices[0].Records) != 6 {
		t.Errorf("expected 6 assigned, got %d", len(slices[0].Records))
	}
}

func TestPercentageNoLinkAssignedTwice(t *testing.T) {
	plan := Plan{Entries: []Entry{
		{UserID: "u1", Percentage: 45},
		{UserID: "u2", Percentage: 35},
		{UserID: "u3", Percentage: 20},
	}}

	slices, err := plan.Split(corpus(17))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	seen := map[string]string{}
	for _, s := range slices {
		for _, link := range sliceLinks(s) {
			if prev, dup := seen[link]; dup {
				t.Errorf("link %s assigned to both %s and %s", link, prev, s.UserID)
			}
			seen[link] = s.UserID
		}
	}
	if len(seen) != 17 {
		t.Errorf("expected all 17 links assigned, got %d", len(seen))
	}
}

func TestPercentageValidation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantErr bool
	}{
		{"valid 100", []Entry{{UserID: "a", Percentage: 60}, {UserID: "b", Percentage: 40}}, false},
		{"valid under 100", []Entry{{UserID: "a", Percentage: 10}}, false},
		{"zero percentage", []Entry{{UserID: "a", Percentage: 0}, {UserID: "b", Percentage: 100}}, true},
		{"negative percentage", []Entry{{UserID: "a", Percentage: -5}, {UserID: "b", Percentage: 50}}, true},
		{"over 100", []Entry{{UserID: "a", Percentage: 70}, {UserID: "b", Percentage: 40}}, true},
		{"missing user", []Entry{{Percentage: 50}}, true},
		{"empty plan", nil, true},
		{"mixed modes", []Entry{{UserID: "a", Percentage: 50}, {UserID: "b", Start: 1, End: 3}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Plan{Entries: tt.entries}.Validate(10)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPlan) {
				t.Errorf("error should wrap ErrInvalidPlan: %v", err)
			}
		})
	}
}

func TestRangeValidationTruthTable(t *testing.T) {
	// InvalidPlan iff start > end, start < 1, or end > n (n = 10).
	tests := []struct {
		start, end int
		wantErr    bool
	}{
		{1, 10, false},
		{1, 1, false},
		{10, 10, false},
		{3, 7, false},
		{7, 3, true},
		{0, 5, true},
		{-1, 5, true},
		{1, 11, true},
		{11, 12, true},
	}

	for _, tt := range tests {
		plan := Plan{Entries: []Entry{{UserID: "u1", Start: tt.start, End: tt.end}}}
		err := plan.Validate(10)
		if (err != nil) != tt.wantErr {
			t.Errorf("range [%d,%d]: error = %v, wantErr %v", tt.start, tt.end, err, tt.wantErr)
		}
	}
}

func TestRangeSplit(t *testing.T) {
	plan := Plan{Entries: []Entry{
		{UserID: "u1", Start: 1, End: 4},
		{UserID: "u2", Start: 5, End: 10},
	}}

	slices, err := plan.Split(corpus(10))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(slices[0].Records) != 4 || len(slices[1].Records) != 6 {
		t.Fatalf("expected 4/6 split, got %d/%d", len(slices[0].Records), len(slices[1].Records))
	}
	if slices[0].Records[0].Link != "https://docs.example.com/0" {
		t.Errorf("u1 starts wrong: %s", slices[0].Records[0].Link)
	}
	if slices[1].Records[0].Link != "https://docs.example.com/4" {
		t.Errorf("u2 starts wrong: %s", slices[1].Records[0].Link)
	}
	if slices[1].Descriptor.Describe() != "rows 5-10" {
		t.Errorf("descriptor: got %q", slices[1].Descriptor.Describe())
	}
}

func TestRangeOverlapPermitted(t *testing.T) {
	plan := Plan{Entries: []Entry{
		{UserID: "u1", Start: 1, End: 6},
		{UserID: "u2", Start: 4, End: 10},
	}}

	slices, err := plan.Split(corpus(10))
	if err != nil {
		t.Fatalf("overlapping ranges must be permitted: %v", err)
	}
	if len(slices[0].Records) != 6 || len(slices[1].Records) != 7 {
		t.Errorf("expected 6/7, got %d/%d", len(slices[0].Records), len(slices[1].Records))
	}
}

func TestSplitYieldsFreshPendingCopies(t *testing.T) {
	records := corpus(4) // corpus marks everything Accepted
	plan := Plan{Entries: []Entry{{UserID: "u1", Start: 1, End: 4}}}

	slices, err := plan.Split(records)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	for _, rec := range slices[0].Records {
		if rec.Status != session.StatusPending {
			t.Errorf("assigned record %s should be Pending, got %s", rec.Link, rec.Status)
		}
	}

	// Mutating the slice must not touch the source corpus.
	slices[0].Records[0].Status = session.StatusRejected
	if records[0].Status != session.StatusAccepted {
		t.Errorf("source corpus mutated through slice")
	}
}
