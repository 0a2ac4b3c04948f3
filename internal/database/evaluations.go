package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/free-rider-o-meter/internal/errors"
)

// EvaluationRepository stores evaluations. It satisfies analysis.EvaluationStore.
type EvaluationRepository struct {
	db *DB
}

var _ analysis.EvaluationStore = (*EvaluationRepository)(nil)

// NewEvaluationRepository creates a new evaluation repository
func NewEvaluationRepository(db *DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// FindEvaluations returns every evaluation of studentID on projectID, ungraded ones included
func (r *EvaluationRepository) FindEvaluations(ctx context.Context, projectID, studentID string) ([]analysis.EvaluationScore, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT id, score FROM evaluations
		WHERE project_id = ? AND student_id = ?
		ORDER BY created_at ASC, id ASC
	`), projectID, studentID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("find_evaluations", err)
	}
	defer rows.Close()

	scores := make([]analysis.EvaluationScore, 0)
	for rows.Next() {
		var (
			e     analysis.EvaluationScore
			score sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &score); err != nil {
			return nil, apperrors.NewPersistenceError("scan_evaluation", err)
		}
		if score.Valid {
			v := score.Float64
			e.Score = &v
		}
		scores = append(scores, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("find_evaluations", err)
	}

	return scores, nil
}

// InsertEvaluation stores a new evaluation
func (r *EvaluationRepository) InsertEvaluation(ctx context.Context, e *Evaluation) error {
	if strings.TrimSpace(e.ProjectID) == "" || strings.TrimSpace(e.StudentID) == "" {
		return apperrors.NewValidationError("project_id and student_id are required")
	}

	var score sql.NullFloat64
	if e.Score != nil {
		score = sql.NullFloat64{Float64: *e.Score, Valid: true}
	}
	evaluator := sql.NullString{String: e.EvaluatorID, Valid: e.EvaluatorID != ""}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO evaluations (id, project_id, student_id, evaluator_id, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), e.ID, e.ProjectID, e.StudentID, evaluator, score, e.CreatedAt)
	if err != nil {
		return apperrors.NewPersistenceError("insert_evaluation", err)
	}

	return nil
}
