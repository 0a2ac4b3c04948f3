package analysis

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// HostingAPI is the subset of the code-hosting REST API the fetcher needs.
// Implementations classify failures as transient or permanent and retry the
// transient ones before returning.
type HostingAPI interface {
	ListCommits(ctx context.Context, owner, repo string) ([]CommitRecord, error)
	ListContributors(ctx context.Context, owner, repo string) ([]ContributorSummary, error)
	GetCommitDiff(ctx context.Context, owner, repo, sha string) (CommitDiffStat, error)
}

// Throttle blocks until another outbound request under key may be sent
type Throttle interface {
	Wait(ctx context.Context, key string) error
}

// ThrottleKey is the bucket every hosting API request is charged against;
// the upstream quota is per token, not per repository.
const ThrottleKey = "hosting_api"

// PartialFetchFunc is told about each commit whose diff stats could not be
// fetched. When set, it replaces the fetcher's own warning log.
type PartialFetchFunc func(ref RepositoryRef, sha string, err error)

// DefaultFetchWorkers bounds concurrent diff-stat requests
const DefaultFetchWorkers = 8

// FetcherConfig configures an ActivityFetcher
type FetcherConfig struct {
	Workers        int
	Preprocessor   *Preprocessor
	Throttle       Throttle
	OnPartialFetch PartialFetchFunc
	Logger         *slog.Logger
}

// Activity is everything fetched for one repository in one run
type Activity struct {
	Repository   RepositoryRef
	Contributors []ContributorSummary
	Commits      []CommitWithDiff
	DiffFailures int
}

// ActivityFetcher lists a repository's contributors and commits and fans
// out per-commit diff-stat requests over a bounded worker pool.
type ActivityFetcher struct {
	api          HostingAPI
	workers      int
	preprocessor *Preprocessor
	throttle     Throttle
	onPartial    PartialFetchFunc
	logger       *slog.Logger
}

// NewActivityFetcher creates a fetcher over api
func NewActivityFetcher(api HostingAPI, cfg FetcherConfig) *ActivityFetcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultFetchWorkers
	}
	if cfg.Preprocessor == nil {
		cfg.Preprocessor = NewPreprocessor(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ActivityFetcher{
		api:          api,
		workers:      cfg.Workers,
		preprocessor: cfg.Preprocessor,
		throttle:     cfg.Throttle,
		onPartial:    cfg.OnPartialFetch,
		logger:       cfg.Logger,
	}
}

// Fetch returns the contributor listing and every kept commit paired with its
// diff stats. A failed diff fetch is recorded on the pair and never fails the
// call; listing failures and cancellation do, and nothing partial is returned.
func (f *ActivityFetcher) Fetch(ctx context.Context, ref RepositoryRef) (*Activity, error) {
	var (
		contributors []ContributorSummary
		commits      []CommitRecord
	)

	listGroup, listCtx := errgroup.WithContext(ctx)
	listGroup.Go(func() error {
		if err := f.wait(listCtx); err != nil {
			return err
		}
		var err error
		contributors, err = f.api.ListContributors(listCtx, ref.Owner, ref.Repo)
		return err
	})
	listGroup.Go(func() error {
		if err := f.wait(listCtx); err != nil {
			return err
		}
		var err error
		commits, err = f.api.ListCommits(listCtx, ref.Owner, ref.Repo)
		return err
	})
	if err := listGroup.Wait(); err != nil {
		return nil, err
	}

	kept := f.preprocessor.FilterCommits(commits)
	f.logger.Debug("Listed repository activity",
		"repository", ref.String(),
		"contributors", len(contributors),
		"commits", len(commits),
		"kept_commits", len(kept))

	pairs, failures, err := f.fetchDiffs(ctx, ref, kept)
	if err != nil {
		return nil, err
	}

	return &Activity{
		Repository:   ref,
		Contributors: contributors,
		Commits:      pairs,
		DiffFailures: failures,
	}, nil
}

func (f *ActivityFetcher) fetchDiffs(ctx context.Context, ref RepositoryRef, commits []CommitRecord) ([]CommitWithDiff, int, error) {
	// One slot per commit; each worker writes only its own index.
	results := make([]CommitWithDiff, len(commits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for i, commit := range commits {
		g.Go(func() error {
			results[i].Commit = commit

			if err := f.wait(gctx); err != nil {
				return err
			}

			stat, err := f.api.GetCommitDiff(gctx, ref.Owner, ref.Repo, commit.SHA)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				results[i].DiffErr = err
				return nil
			}

			results[i].Diff = &stat
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	failures := 0
	for _, r := range results {
		if r.DiffErr == nil {
			continue
		}
		failures++
		if f.onPartial != nil {
			f.onPartial(ref, r.Commit.SHA, r.DiffErr)
			continue
		}
		f.logger.Warn("Commit diff stats unavailable",
			"event", "partial_fetch",
			"repository", ref.String(),
			"sha", r.Commit.SHA,
			"author", r.Commit.Author,
			"error", r.DiffErr)
	}

	return results, failures, nil
}

func (f *ActivityFetcher) wait(ctx context.Context) error {
	if f.throttle == nil {
		return ctx.Err()
	}
	return f.throttle.Wait(ctx, ThrottleKey)
}
