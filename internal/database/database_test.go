package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/free-rider-o-meter/internal/errors"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := Config{Backend: BackendSQLite, DataDir: t.TempDir()}
	require.NoError(t, Migrate(cfg, -1))

	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func floatPtr(v float64) *float64 { return &v }

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendSQLite, false},
		{"SQLite", BackendSQLite, false},
		{" postgres ", BackendPostgres, false},
		{"mysql", BackendMySQL, false},
		{"oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM free_riders WHERE group_id = ? AND member_id = ?`

	assert.Equal(t, q, rebind(BackendSQLite, q))
	assert.Equal(t, q, rebind(BackendMySQL, q))
	assert.Equal(t, `SELECT * FROM free_riders WHERE group_id = $1 AND member_id = $2`, rebind(BackendPostgres, q))
}

func TestMigrate_UpDownUp(t *testing.T) {
	cfg := Config{Backend: BackendSQLite, DataDir: t.TempDir()}

	require.NoError(t, Migrate(cfg, -1))
	require.NoError(t, Migrate(cfg, -1), "re-running an applied migration is a no-op")
	require.NoError(t, Migrate(cfg, 0))
	require.NoError(t, Migrate(cfg, 1))

	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM free_riders`).Scan(&n))
	assert.Zero(t, n)
}

func TestGroupRepository_UpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()

	group := analysis.GroupContext{
		GroupID:       "g-1",
		ProjectID:     "p-1",
		RepositoryURL: "https://github.com/acme/widgets",
		Members: []analysis.Member{
			{ID: "m-2", Name: "Bob", GitHubHandle: "bob"},
			{ID: "m-1", Name: "Alice", GitHubHandle: "alice"},
			{ID: "m-3", Name: "Carol"},
		},
	}
	require.NoError(t, repo.UpsertGroup(ctx, group))

	got, err := repo.GetGroup(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, group, *got, "members keep their insertion order")

	// Replacing the member list drops the old members.
	group.RepositoryURL = ""
	group.Members = []analysis.Member{{ID: "m-1", Name: "Alice", GitHubHandle: "alice"}}
	require.NoError(t, repo.UpsertGroup(ctx, group))

	got, err = repo.GetGroup(ctx, "g-1")
	require.NoError(t, err)
	assert.Empty(t, got.RepositoryURL)
	assert.Len(t, got.Members, 1)
}

func TestGroupRepository_GetMissing(t *testing.T) {
	repo := NewGroupRepository(setupTestDB(t))

	_, err := repo.GetGroup(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryNotFound))
}

func TestGroupRepository_UpsertValidation(t *testing.T) {
	repo := NewGroupRepository(setupTestDB(t))
	ctx := context.Background()

	tests := []struct {
		name  string
		group analysis.GroupContext
	}{
		{"missing group id", analysis.GroupContext{ProjectID: "p"}},
		{"missing project id", analysis.GroupContext{GroupID: "g"}},
		{"blank member id", analysis.GroupContext{GroupID: "g", ProjectID: "p", Members: []analysis.Member{{Name: "x"}}}},
		{"duplicate member", analysis.GroupContext{GroupID: "g", ProjectID: "p", Members: []analysis.Member{{ID: "a"}, {ID: "a"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.UpsertGroup(ctx, tt.group)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))
		})
	}
}

func TestEvaluationRepository_NullScores(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEvaluationRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.InsertEvaluation(ctx, NewEvaluation("p-1", "m-1", "m-2", floatPtr(0.5))))
	require.NoError(t, repo.InsertEvaluation(ctx, NewEvaluation("p-1", "m-1", "m-3", nil)))
	require.NoError(t, repo.InsertEvaluation(ctx, NewEvaluation("p-1", "m-1", "", floatPtr(1.0))))
	require.NoError(t, repo.InsertEvaluation(ctx, NewEvaluation("p-2", "m-1", "m-2", floatPtr(0.0))))

	scores, err := repo.FindEvaluations(ctx, "p-1", "m-1")
	require.NoError(t, err)
	require.Len(t, scores, 3)

	nulls := 0
	for _, s := range scores {
		if s.Score == nil {
			nulls++
		}
	}
	assert.Equal(t, 1, nulls)

	summary := analysis.MeanScore(scores)
	assert.InDelta(t, 0.75, summary.Mean, 1e-12)
	assert.Equal(t, 2, summary.Count)

	none, err := repo.FindEvaluations(ctx, "p-1", "stranger")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEvaluationRepository_InsertValidation(t *testing.T) {
	repo := NewEvaluationRepository(setupTestDB(t))

	err := repo.InsertEvaluation(context.Background(), NewEvaluation("", "m-1", "", nil))
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))
}

func flaggedScores() []analysis.MemberScore {
	last := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []analysis.MemberScore{
		{
			Member:    analysis.Member{ID: "m-2", Name: "Bob", GitHubHandle: "bob"},
			Totals:    &analysis.ContributorTotals{Identity: "bob", CommitCount: 2, LinesAdded: 10, LinesRemoved: 4, FilesModified: 3, LastCommitDate: &last},
			Composite: 0.12,
			Flagged:   true,
		},
		{
			Member:    analysis.Member{ID: "m-1", Name: "Alice"},
			Composite: 0,
			Flagged:   true,
		},
		{
			Member:    analysis.Member{ID: "m-0", Name: "Zed"},
			Composite: 0.12,
			Flagged:   true,
		},
	}
}

func TestNewFreeRiderRecord(t *testing.T) {
	now := time.Now()
	scores := flaggedScores()

	rec := NewFreeRiderRecord("g-1", "run-1", scores[0], now)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "m-2", rec.MemberID)
	assert.Equal(t, 2, rec.CommitCount)
	assert.Equal(t, 10, rec.LinesAdded)
	assert.Equal(t, 4, rec.LinesRemoved)
	assert.Equal(t, 3, rec.FilesModified)
	require.NotNil(t, rec.LastCommitDate)

	empty := NewFreeRiderRecord("g-1", "run-1", scores[1], now)
	assert.Zero(t, empty.CommitCount)
	assert.Nil(t, empty.LastCommitDate)
	assert.Zero(t, empty.Score)
}

func TestFreeRiderRepository_ReplaceForGroup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFreeRiderRepository(db)
	ctx := context.Background()
	now := time.Now()

	records := NewFreeRiderRecords("g-1", "run-1", flaggedScores(), now)
	require.NoError(t, repo.ReplaceForGroup(ctx, "g-1", records))

	got, err := repo.ListByGroup(ctx, "g-1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Ascending score, ties broken by member id.
	assert.Equal(t, []string{"m-1", "m-0", "m-2"}, []string{got[0].MemberID, got[1].MemberID, got[2].MemberID})

	bob := got[2]
	require.NotNil(t, bob.LastCommitDate)
	assert.True(t, bob.LastCommitDate.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	assert.Nil(t, got[0].LastCommitDate)
	assert.Equal(t, 14, bob.LinesAdded+bob.LinesRemoved)

	// Same records again leave the same rows.
	require.NoError(t, repo.ReplaceForGroup(ctx, "g-1", records))
	again, err := repo.ListByGroup(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, got, again)

	// A smaller set replaces the whole group.
	next := NewFreeRiderRecords("g-1", "run-2", flaggedScores()[:1], now)
	require.NoError(t, repo.ReplaceForGroup(ctx, "g-1", next))
	got, err = repo.ListByGroup(ctx, "g-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "run-2", got[0].RunID)

	// An empty set clears the group.
	require.NoError(t, repo.ReplaceForGroup(ctx, "g-1", nil))
	got, err = repo.ListByGroup(ctx, "g-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFreeRiderRepository_GroupsAreIsolated(t *testing.T) {
	repo := NewFreeRiderRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.ReplaceForGroup(ctx, "g-1", NewFreeRiderRecords("g-1", "r1", flaggedScores(), now)))
	require.NoError(t, repo.ReplaceForGroup(ctx, "g-2", NewFreeRiderRecords("g-2", "r2", flaggedScores()[:2], now)))
	require.NoError(t, repo.ReplaceForGroup(ctx, "g-2", nil))

	g1, err := repo.ListByGroup(ctx, "g-1")
	require.NoError(t, err)
	assert.Len(t, g1, 3)

	g2, err := repo.ListByGroup(ctx, "g-2")
	require.NoError(t, err)
	assert.Empty(t, g2)
}

func TestFreeRiderRepository_RejectsBadBatch(t *testing.T) {
	repo := NewFreeRiderRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.ReplaceForGroup(ctx, "g-1", NewFreeRiderRecords("g-1", "r1", flaggedScores(), now)))

	foreign := NewFreeRiderRecords("g-2", "r2", flaggedScores()[:1], now)
	err := repo.ReplaceForGroup(ctx, "g-1", foreign)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))

	dup := NewFreeRiderRecords("g-1", "r2", flaggedScores()[:1], now)
	dup = append(dup, dup[0])
	err = repo.ReplaceForGroup(ctx, "g-1", dup)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))

	// A rejected batch leaves the previous set intact.
	got, err := repo.ListByGroup(ctx, "g-1")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestDB_HealthCheckAndStats(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.HealthCheck(context.Background()))
	assert.Equal(t, BackendSQLite, db.Backend())

	stats := db.GetPoolStats()
	assert.Equal(t, 1, stats["max_open_connections"])
}
