package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeHostingAPI struct {
	commits      []CommitRecord
	contributors []ContributorSummary
	diffs        map[string]CommitDiffStat
	diffErrs     map[string]error
	listErr      error
	delay        time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	diffCalls   atomic.Int32
}

func (f *fakeHostingAPI) ListCommits(ctx context.Context, _, _ string) ([]CommitRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.commits, nil
}

func (f *fakeHostingAPI) ListContributors(ctx context.Context, _, _ string) ([]ContributorSummary, error) {
	return f.contributors, nil
}

func (f *fakeHostingAPI) GetCommitDiff(ctx context.Context, _, _, sha string) (CommitDiffStat, error) {
	f.diffCalls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return CommitDiffStat{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	if err, ok := f.diffErrs[sha]; ok {
		return CommitDiffStat{}, err
	}
	return f.diffs[sha], nil
}

func tenCommits() ([]CommitRecord, map[string]CommitDiffStat) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	commits := make([]CommitRecord, 0, 12)
	diffs := map[string]CommitDiffStat{}
	for i := 0; i < 10; i++ {
		sha := fmt.Sprintf("c%02d", i)
		commits = append(commits, CommitRecord{SHA: sha, Author: "alice", Timestamp: t0.Add(time.Duration(i) * time.Minute), Message: "work"})
		diffs[sha] = CommitDiffStat{SHA: sha, Additions: 3, Deletions: 1, FilesChanged: 1}
	}
	commits = append(commits,
		CommitRecord{SHA: "m1", Author: "alice", Timestamp: t0, Message: "Merge pull request #2"},
		CommitRecord{SHA: "u1", Author: "Unknown", Timestamp: t0, Message: "drive-by"},
	)
	return commits, diffs
}

func TestActivityFetcher_Fetch(t *testing.T) {
	commits, diffs := tenCommits()
	api := &fakeHostingAPI{
		commits:      commits,
		contributors: []ContributorSummary{{Login: "alice", Contributions: 11}},
		diffs:        diffs,
		diffErrs:     map[string]error{"c04": errors.New("502 bad gateway")},
	}

	var mu sync.Mutex
	partial := []string{}
	f := NewActivityFetcher(api, FetcherConfig{
		Workers: 3,
		OnPartialFetch: func(_ RepositoryRef, sha string, _ error) {
			mu.Lock()
			defer mu.Unlock()
			partial = append(partial, sha)
		},
	})

	activity, err := f.Fetch(context.Background(), RepositoryRef{Owner: "o", Repo: "r"})
	require.NoError(t, err)

	assert.Len(t, activity.Commits, 10)
	assert.Equal(t, int32(10), api.diffCalls.Load())
	assert.Equal(t, 1, activity.DiffFailures)
	assert.Equal(t, []string{"c04"}, partial)
	assert.Equal(t, "c00", activity.Commits[0].Commit.SHA)

	totals := AggregateContributors(activity.Commits, activity.Contributors, nil)
	assert.Equal(t, 10, totals["alice"].CommitCount)
	assert.Equal(t, 27, totals["alice"].LinesAdded)
	assert.Equal(t, 9, totals["alice"].LinesRemoved)
}

func TestActivityFetcher_BoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	commits, diffs := tenCommits()
	api := &fakeHostingAPI{commits: commits, diffs: diffs, delay: 5 * time.Millisecond}

	f := NewActivityFetcher(api, FetcherConfig{Workers: 2})
	_, err := f.Fetch(context.Background(), RepositoryRef{Owner: "o", Repo: "r"})
	require.NoError(t, err)

	assert.LessOrEqual(t, api.maxInFlight.Load(), int32(2))
}

func TestActivityFetcher_ListFailureIsTerminal(t *testing.T) {
	listErr := errors.New("repository not found")
	f := NewActivityFetcher(&fakeHostingAPI{listErr: listErr}, FetcherConfig{})

	activity, err := f.Fetch(context.Background(), RepositoryRef{Owner: "o", Repo: "r"})
	assert.Nil(t, activity)
	assert.ErrorIs(t, err, listErr)
}

func TestActivityFetcher_CancellationDiscardsResult(t *testing.T) {
	defer goleak.VerifyNone(t)

	commits, diffs := tenCommits()
	api := &fakeHostingAPI{commits: commits, diffs: diffs, delay: 200 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	f := NewActivityFetcher(api, FetcherConfig{Workers: 4})
	activity, err := f.Fetch(ctx, RepositoryRef{Owner: "o", Repo: "r"})

	assert.Nil(t, activity)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type countingThrottle struct {
	calls atomic.Int32
	err   error
}

func (c *countingThrottle) Wait(ctx context.Context, key string) error {
	c.calls.Add(1)
	if key != ThrottleKey {
		return fmt.Errorf("unexpected key %q", key)
	}
	return c.err
}

func TestActivityFetcher_ThrottlesEveryRequest(t *testing.T) {
	commits, diffs := tenCommits()
	throttle := &countingThrottle{}
	f := NewActivityFetcher(&fakeHostingAPI{commits: commits, diffs: diffs}, FetcherConfig{Throttle: throttle})

	_, err := f.Fetch(context.Background(), RepositoryRef{Owner: "o", Repo: "r"})
	require.NoError(t, err)
	assert.Equal(t, int32(12), throttle.calls.Load())

	throttle.err = context.Canceled
	_, err = f.Fetch(context.Background(), RepositoryRef{Owner: "o", Repo: "r"})
	assert.ErrorIs(t, err, context.Canceled)
}
