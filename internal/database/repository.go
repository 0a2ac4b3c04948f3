package database

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/ZanzyTHEbar/free-rider-o-meter/internal/errors"
)

// FreeRiderRepository owns the free_riders table
type FreeRiderRepository struct {
	db *DB
}

// NewFreeRiderRepository creates a new repository
func NewFreeRiderRepository(db *DB) *FreeRiderRepository {
	return &FreeRiderRepository{db: db}
}

// ReplaceForGroup makes records the complete flag set for groupID. The delete
// and the inserts commit together, so a reader sees either the previous set or
// the new one. Calling it twice with the same records leaves the same rows.
func (r *FreeRiderRepository) ReplaceForGroup(ctx context.Context, groupID string, records []FreeRiderRecord) (err error) {
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if rec.GroupID != groupID {
			return apperrors.NewValidationError(
				fmt.Sprintf("record for member %s belongs to group %s, not %s", rec.MemberID, rec.GroupID, groupID))
		}
		if _, dup := seen[rec.MemberID]; dup {
			return apperrors.NewValidationError(
				fmt.Sprintf("member %s flagged twice for group %s", rec.MemberID, groupID))
		}
		seen[rec.MemberID] = struct{}{}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewPersistenceError("begin_replace_free_riders", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM free_riders WHERE group_id = ?`), groupID); err != nil {
		return apperrors.NewPersistenceError("delete_free_riders", err)
	}

	if len(records) > 0 {
		stmt, prepErr := tx.PrepareContext(ctx, r.db.Rebind(`
			INSERT INTO free_riders (id, group_id, member_id, member_name, score, commit_count,
				lines_added, lines_removed, files_modified, last_commit_date, run_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`))
		if prepErr != nil {
			err = prepErr
			return apperrors.NewPersistenceError("prepare_insert_free_rider", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			var last sql.NullTime
			if rec.LastCommitDate != nil {
				last = sql.NullTime{Time: *rec.LastCommitDate, Valid: true}
			}
			if _, err = stmt.ExecContext(ctx,
				rec.ID, rec.GroupID, rec.MemberID, rec.MemberName, rec.Score, rec.CommitCount,
				rec.LinesAdded, rec.LinesRemoved, rec.FilesModified, last, rec.RunID, rec.CreatedAt,
			); err != nil {
				return apperrors.NewPersistenceError("insert_free_rider", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return apperrors.NewPersistenceError("commit_replace_free_riders", err)
	}
	return nil
}

// ListByGroup returns the persisted flags for groupID, lowest score first
func (r *FreeRiderRepository) ListByGroup(ctx context.Context, groupID string) ([]FreeRiderRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT id, group_id, member_id, member_name, score, commit_count,
			lines_added, lines_removed, files_modified, last_commit_date, run_id, created_at
		FROM free_riders
		WHERE group_id = ?
		ORDER BY score ASC, member_id ASC
	`), groupID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list_free_riders", err)
	}
	defer rows.Close()

	records := make([]FreeRiderRecord, 0)
	for rows.Next() {
		var (
			rec  FreeRiderRecord
			last sql.NullTime
		)
		if err := rows.Scan(
			&rec.ID, &rec.GroupID, &rec.MemberID, &rec.MemberName, &rec.Score, &rec.CommitCount,
			&rec.LinesAdded, &rec.LinesRemoved, &rec.FilesModified, &last, &rec.RunID, &rec.CreatedAt,
		); err != nil {
			return nil, apperrors.NewPersistenceError("scan_free_rider", err)
		}
		if last.Valid {
			t := last.Time.UTC()
			rec.LastCommitDate = &t
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("list_free_riders", err)
	}

	return records, nil
}
