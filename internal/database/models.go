package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/analysis"
)

// FreeRiderRecord is one persisted flag. At most one exists per (group, member).
type FreeRiderRecord struct {
	ID             string     `json:"id" db:"id"`
	GroupID        string     `json:"group_id" db:"group_id"`
	MemberID       string     `json:"member_id" db:"member_id"`
	MemberName     string     `json:"member_name" db:"member_name"`
	Score          float64    `json:"composite_score" db:"score"`
	CommitCount    int        `json:"commit_count" db:"commit_count"`
	LinesAdded     int        `json:"lines_added" db:"lines_added"`
	LinesRemoved   int        `json:"lines_removed" db:"lines_removed"`
	FilesModified  int        `json:"files_modified" db:"files_modified"`
	LastCommitDate *time.Time `json:"last_commit_date" db:"last_commit_date"`
	RunID          string     `json:"run_id" db:"run_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Evaluation is a peer or instructor grade for a student on a project.
// Score is nil for evaluations that were opened but never graded.
type Evaluation struct {
	ID          string    `json:"id" db:"id"`
	ProjectID   string    `json:"project_id" db:"project_id"`
	StudentID   string    `json:"student_id" db:"student_id"`
	EvaluatorID string    `json:"evaluator_id,omitempty" db:"evaluator_id"`
	Score       *float64  `json:"score" db:"score"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// NewFreeRiderRecord creates a record for a flagged member score. Members
// without countable commits get zero counters and no last commit date.
func NewFreeRiderRecord(groupID, runID string, score analysis.MemberScore, now time.Time) FreeRiderRecord {
	rec := FreeRiderRecord{
		ID:         uuid.New().String(),
		GroupID:    groupID,
		MemberID:   score.Member.ID,
		MemberName: score.Member.Name,
		Score:      score.Composite,
		RunID:      runID,
		CreatedAt:  now.UTC(),
	}

	if t := score.Totals; t != nil {
		rec.CommitCount = t.CommitCount
		rec.LinesAdded = t.LinesAdded
		rec.LinesRemoved = t.LinesRemoved
		rec.FilesModified = t.FilesModified
		if t.LastCommitDate != nil {
			last := t.LastCommitDate.UTC()
			rec.LastCommitDate = &last
		}
	}

	return rec
}

// NewFreeRiderRecords converts a run's flagged set into records sharing one run ID
func NewFreeRiderRecords(groupID, runID string, flagged []analysis.MemberScore, now time.Time) []FreeRiderRecord {
	records := make([]FreeRiderRecord, 0, len(flagged))
	for _, s := range flagged {
		records = append(records, NewFreeRiderRecord(groupID, runID, s, now))
	}
	return records
}

// NewEvaluation creates an evaluation with a generated ID
func NewEvaluation(projectID, studentID, evaluatorID string, score *float64) *Evaluation {
	return &Evaluation{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		StudentID:   studentID,
		EvaluatorID: evaluatorID,
		Score:       score,
		CreatedAt:   time.Now().UTC(),
	}
}
