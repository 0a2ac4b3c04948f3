package analysis

import "time"

// Member is one group member as known to the group store
type Member struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	GitHubHandle string `json:"github_handle,omitempty"`
}

// GroupContext is the read-only snapshot of a group taken at the start of a run
type GroupContext struct {
	GroupID       string   `json:"group_id"`
	ProjectID     string   `json:"project_id"`
	Members       []Member `json:"members"`
	RepositoryURL string   `json:"repository_url,omitempty"`
}

// CommitRecord is a single commit as listed by the hosting API
type CommitRecord struct {
	SHA       string    `json:"sha"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// CommitDiffStat holds the per-commit line and file counts
type CommitDiffStat struct {
	SHA          string `json:"sha"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
	FilesChanged int    `json:"files_changed"`
}

// ContributorSummary is one row of the repository contributor listing
type ContributorSummary struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
}

// CommitWithDiff pairs a commit with its diff stats. Diff is nil when the
// fetch failed, in which case DiffErr holds the cause.
type CommitWithDiff struct {
	Commit  CommitRecord
	Diff    *CommitDiffStat
	DiffErr error
}

// ContributorTotals accumulates activity for one canonical identity
type ContributorTotals struct {
	Identity       string     `json:"identity"`
	CommitCount    int        `json:"commit_count"`
	LinesAdded     int        `json:"lines_added"`
	LinesRemoved   int        `json:"lines_removed"`
	FilesModified  int        `json:"files_modified"`
	LastCommitDate *time.Time `json:"last_commit_date,omitempty"`
	Messages       []string   `json:"messages,omitempty"`
	DiffFailures   int        `json:"diff_failures"`
}

// LOC is lines touched: added plus removed.
func (t *ContributorTotals) LOC() int {
	if t == nil {
		return 0
	}
	return t.LinesAdded + t.LinesRemoved
}

// EvaluationScore is one stored evaluation; Score is nil when it was never graded
type EvaluationScore struct {
	ID    string   `json:"id"`
	Score *float64 `json:"score"`
}

// EvaluationSummary is the mean of the non-null scores for a (project, student) pair
type EvaluationSummary struct {
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

// MemberScore is the scoring result for one member. Totals is nil for members
// without countable commits.
type MemberScore struct {
	Member         Member             `json:"member"`
	Totals         *ContributorTotals `json:"totals,omitempty"`
	LOCScore       float64            `json:"loc_score"`
	EvaluationMean float64            `json:"evaluation_mean"`
	Composite      float64            `json:"composite_score"`
	Flagged        bool               `json:"flagged"`
}
