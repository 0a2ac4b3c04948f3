package freerider

import (
	"time"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/database"
)

// ReportEntry is one flagged member as returned to callers
type ReportEntry struct {
	MemberID       string     `json:"member_id"`
	MemberName     string     `json:"member_name"`
	CompositeScore float64    `json:"composite_score"`
	CommitCount    int        `json:"commit_count"`
	LinesAdded     int        `json:"lines_added"`
	LinesRemoved   int        `json:"lines_removed"`
	FilesModified  int        `json:"files_modified"`
	LastCommitDate *time.Time `json:"last_commit_date"`
}

// Report is the persisted flag set of a group, ordered by ascending score then member ID.
// DiffFailures counts commits scored without diff stats and is only set on
// the report returned by the run that produced it; it is not persisted.
type Report struct {
	GroupID      string        `json:"group_id"`
	RunID        string        `json:"run_id,omitempty"`
	Threshold    float64       `json:"threshold"`
	GeneratedAt  time.Time     `json:"generated_at"`
	FreeRiders   []ReportEntry `json:"free_riders"`
	DiffFailures int           `json:"diff_failures,omitempty"`
}

func newReportEntry(r database.FreeRiderRecord) ReportEntry {
	return ReportEntry{
		MemberID:       r.MemberID,
		MemberName:     r.MemberName,
		CompositeScore: r.Score,
		CommitCount:    r.CommitCount,
		LinesAdded:     r.LinesAdded,
		LinesRemoved:   r.LinesRemoved,
		FilesModified:  r.FilesModified,
		LastCommitDate: r.LastCommitDate,
	}
}
