package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/free-rider-o-meter/internal/errors"
)

// GroupRepository stores project groups and their ordered member lists.
// It satisfies analysis.GroupStore.
type GroupRepository struct {
	db *DB
}

var _ analysis.GroupStore = (*GroupRepository)(nil)

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// GetGroup loads the group snapshot used by a run
func (r *GroupRepository) GetGroup(ctx context.Context, groupID string) (*analysis.GroupContext, error) {
	var (
		group   analysis.GroupContext
		repoURL sql.NullString
	)

	err := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT id, project_id, repository_url FROM project_groups WHERE id = ?
	`), groupID).Scan(&group.GroupID, &group.ProjectID, &repoURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("group", groupID)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("load_group", err)
	}
	group.RepositoryURL = strings.TrimSpace(repoURL.String)

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT member_id, name, github_handle
		FROM group_members
		WHERE group_id = ?
		ORDER BY position ASC
	`), groupID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("load_group_members", err)
	}
	defer rows.Close()

	group.Members = make([]analysis.Member, 0)
	for rows.Next() {
		var (
			m      analysis.Member
			handle sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Name, &handle); err != nil {
			return nil, apperrors.NewPersistenceError("scan_group_member", err)
		}
		m.GitHubHandle = strings.TrimSpace(handle.String)
		group.Members = append(group.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("load_group_members", err)
	}

	return &group, nil
}

// UpsertGroup creates or replaces a group and its member list
func (r *GroupRepository) UpsertGroup(ctx context.Context, group analysis.GroupContext) (err error) {
	if strings.TrimSpace(group.GroupID) == "" {
		return apperrors.NewValidationError("group id is required", "group_id")
	}
	if strings.TrimSpace(group.ProjectID) == "" {
		return apperrors.NewValidationError("project id is required", "project_id")
	}
	seen := make(map[string]struct{}, len(group.Members))
	for _, m := range group.Members {
		if strings.TrimSpace(m.ID) == "" {
			return apperrors.NewValidationError("member id is required", "members")
		}
		if _, dup := seen[m.ID]; dup {
			return apperrors.NewValidationError("duplicate member id "+m.ID, "members")
		}
		seen[m.ID] = struct{}{}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewPersistenceError("begin_upsert_group", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	repoURL := sql.NullString{String: group.RepositoryURL, Valid: group.RepositoryURL != ""}

	var exists int
	if err = tx.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM project_groups WHERE id = ?`), group.GroupID).Scan(&exists); err != nil {
		return apperrors.NewPersistenceError("lookup_group", err)
	}

	if exists > 0 {
		_, err = tx.ExecContext(ctx, r.db.Rebind(`
			UPDATE project_groups SET project_id = ?, repository_url = ?, updated_at = ? WHERE id = ?
		`), group.ProjectID, repoURL, now, group.GroupID)
	} else {
		_, err = tx.ExecContext(ctx, r.db.Rebind(`
			INSERT INTO project_groups (id, project_id, repository_url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`), group.GroupID, group.ProjectID, repoURL, now, now)
	}
	if err != nil {
		return apperrors.NewPersistenceError("upsert_group", err)
	}

	if _, err = tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM group_members WHERE group_id = ?`), group.GroupID); err != nil {
		return apperrors.NewPersistenceError("delete_group_members", err)
	}

	for i, m := range group.Members {
		handle := sql.NullString{String: m.GitHubHandle, Valid: m.GitHubHandle != ""}
		if _, err = tx.ExecContext(ctx, r.db.Rebind(`
			INSERT INTO group_members (group_id, member_id, name, github_handle, position)
			VALUES (?, ?, ?, ?, ?)
		`), group.GroupID, m.ID, m.Name, handle, i); err != nil {
			return apperrors.NewPersistenceError("insert_group_member", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return apperrors.NewPersistenceError("commit_upsert_group", err)
	}
	return nil
}
