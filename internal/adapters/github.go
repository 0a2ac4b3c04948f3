package adapters

import (
	"context"
	stderrors "errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v76/github"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/resilience"
)

const (
	apiName    = "GitHub"
	pageSize   = 100
	userAgent  = "Free-Rider-o-Meter/1.0"
	breakerKey = "github"
)

// APIObserver is told about every completed hosting API call
type APIObserver interface {
	ObserveAPICall(apiName, operation string, statusCode int, duration time.Duration, err error)
}

// GitHubConfig configures a GitHubAdapter
type GitHubConfig struct {
	Token     string
	BaseURL   string
	UserAgent string
	Retry     resilience.RetryConfig
	Pool      resilience.PoolConfig
	Breaker   *resilience.CircuitBreaker
	Observer  APIObserver
	Logger    *slog.Logger
}

// GitHubAdapter implements analysis.HostingAPI on the GitHub REST API.
// Requests go through a circuit-breaking pooled transport and transient
// failures are retried with backoff before being surfaced.
type GitHubAdapter struct {
	client    *github.Client
	transport *resilience.BreakerTransport
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryConfig
	observer  APIObserver
	logger    *slog.Logger
}

var _ analysis.HostingAPI = (*GitHubAdapter)(nil)

// NewGitHubAdapter creates a new GitHub adapter with connection pooling
func NewGitHubAdapter(cfg GitHubConfig) (*GitHubAdapter, error) {
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.NewCircuitBreaker(breakerKey, resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 3,
		})
	}
	if cfg.Pool == (resilience.PoolConfig{}) {
		cfg.Pool = resilience.DefaultPoolConfig()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.HostingAPIRetryConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = userAgent
	}

	transport := resilience.NewBreakerTransport(nil, cfg.Pool, cfg.Breaker)
	client := github.NewClient(&http.Client{Transport: transport, Timeout: cfg.Pool.RequestTimeout})
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	client.UserAgent = cfg.UserAgent

	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, errors.NewConfigurationError("invalid github.base-url", err)
		}
		client.BaseURL = base
	}

	return &GitHubAdapter{
		client:    client,
		transport: transport,
		breaker:   cfg.Breaker,
		retry:     cfg.Retry,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
	}, nil
}

// Commits yields every commit on the default branch, newest first, one page
// at a time. Iteration stops at the first error, which is yielded last.
func (g *GitHubAdapter) Commits(ctx context.Context, owner, repo string) iter.Seq2[analysis.CommitRecord, error] {
	return func(yield func(analysis.CommitRecord, error) bool) {
		opts := &github.CommitsListOptions{ListOptions: github.ListOptions{PerPage: pageSize}}
		for {
			var (
				page []*github.RepositoryCommit
				resp *github.Response
			)
			err := g.call(ctx, "list_commits", func(ctx context.Context) (*github.Response, error) {
				var err error
				page, resp, err = g.client.Repositories.ListCommits(ctx, owner, repo, opts)
				return resp, err
			})
			if err != nil {
				// An empty repository answers 409 Conflict.
				if isStatus(err, http.StatusConflict) {
					return
				}
				yield(analysis.CommitRecord{}, err)
				return
			}

			for _, c := range page {
				if !yield(toCommitRecord(c), nil) {
					return
				}
			}

			if resp == nil || resp.NextPage == 0 {
				return
			}
			opts.Page = resp.NextPage
		}
	}
}

// ListCommits collects Commits into a slice
func (g *GitHubAdapter) ListCommits(ctx context.Context, owner, repo string) ([]analysis.CommitRecord, error) {
	records := make([]analysis.CommitRecord, 0, pageSize)
	for record, err := range g.Commits(ctx, owner, repo) {
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// ListContributors returns the repository contributor listing, all pages
func (g *GitHubAdapter) ListContributors(ctx context.Context, owner, repo string) ([]analysis.ContributorSummary, error) {
	opts := &github.ListContributorsOptions{ListOptions: github.ListOptions{PerPage: pageSize}}
	summaries := make([]analysis.ContributorSummary, 0)

	for {
		var (
			page []*github.Contributor
			resp *github.Response
		)
		err := g.call(ctx, "list_contributors", func(ctx context.Context) (*github.Response, error) {
			var err error
			page, resp, err = g.client.Repositories.ListContributors(ctx, owner, repo, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, c := range page {
			summaries = append(summaries, analysis.ContributorSummary{
				Login:         c.GetLogin(),
				Contributions: c.GetContributions(),
			})
		}

		if resp == nil || resp.NextPage == 0 {
			return summaries, nil
		}
		opts.Page = resp.NextPage
	}
}

// GetCommitDiff fetches additions, deletions and changed-file count for one
// commit. Large commits page their file list, so every page is counted.
func (g *GitHubAdapter) GetCommitDiff(ctx context.Context, owner, repo, sha string) (analysis.CommitDiffStat, error) {
	stat := analysis.CommitDiffStat{SHA: sha}
	opts := &github.ListOptions{PerPage: pageSize}

	for {
		var (
			commit *github.RepositoryCommit
			resp   *github.Response
		)
		err := g.call(ctx, "get_commit", func(ctx context.Context) (*github.Response, error) {
			var err error
			commit, resp, err = g.client.Repositories.GetCommit(ctx, owner, repo, sha, opts)
			return resp, err
		})
		if err != nil {
			return analysis.CommitDiffStat{}, err
		}

		if opts.Page == 0 {
			stat.Additions = commit.GetStats().GetAdditions()
			stat.Deletions = commit.GetStats().GetDeletions()
		}
		stat.FilesChanged += len(commit.Files)

		if resp == nil || resp.NextPage == 0 {
			return stat, nil
		}
		opts.Page = resp.NextPage
	}
}

// Breaker returns the hosting API circuit breaker
func (g *GitHubAdapter) Breaker() *resilience.CircuitBreaker {
	return g.breaker
}

// GetPoolStats returns transport statistics
func (g *GitHubAdapter) GetPoolStats() map[string]interface{} {
	return g.transport.Stats()
}

// Close releases idle connections
func (g *GitHubAdapter) Close() error {
	g.transport.CloseIdleConnections()
	return nil
}

// call runs one API request under the retry policy and classifies its error
func (g *GitHubAdapter) call(ctx context.Context, operation string, fn func(ctx context.Context) (*github.Response, error)) error {
	return resilience.RetryWithConfig(ctx, g.retry, func(ctx context.Context) error {
		start := time.Now()
		resp, err := fn(ctx)
		duration := time.Since(start)

		status := 0
		if resp != nil && resp.Response != nil {
			status = resp.StatusCode
		}

		classified := classifyError(ctx, err)
		if g.observer != nil {
			g.observer.ObserveAPICall(apiName, operation, status, duration, classified)
		}
		if classified != nil {
			g.logger.Debug("GitHub request failed",
				"operation", operation,
				"status_code", status,
				"duration_ms", duration.Milliseconds(),
				"error", classified)
		}
		return classified
	})
}

func toCommitRecord(c *github.RepositoryCommit) analysis.CommitRecord {
	author := c.GetCommit().GetAuthor()
	return analysis.CommitRecord{
		SHA:       c.GetSHA(),
		Author:    author.GetName(),
		Timestamp: author.GetDate().Time,
		Message:   c.GetCommit().GetMessage(),
	}
}

// retryAfterError carries a server supplied wait hint alongside the app error
type retryAfterError struct {
	err   *errors.AppError
	after time.Duration
}

func (e *retryAfterError) Error() string             { return e.err.Error() }
func (e *retryAfterError) Unwrap() error             { return e.err }
func (e *retryAfterError) RetryAfter() time.Duration { return e.after }

// classifyError maps go-github and transport errors onto the app error taxonomy.
// Rate limits, timeouts, 408/5xx and an open breaker are transient; 401/403/404
// and other client errors are permanent.
func classifyError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var rateErr *github.RateLimitError
	if stderrors.As(err, &rateErr) {
		status := http.StatusForbidden
		if rateErr.Response != nil {
			status = rateErr.Response.StatusCode
		}
		return &retryAfterError{
			err:   errors.NewExternalAPITransientError(apiName, status, err),
			after: time.Until(rateErr.Rate.Reset.Time),
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if stderrors.As(err, &abuseErr) {
		status := http.StatusForbidden
		if abuseErr.Response != nil {
			status = abuseErr.Response.StatusCode
		}
		wrapped := &retryAfterError{err: errors.NewExternalAPITransientError(apiName, status, err)}
		if abuseErr.RetryAfter != nil {
			wrapped.after = *abuseErr.RetryAfter
		}
		return wrapped
	}

	var cbErr *resilience.CircuitBreakerError
	if stderrors.As(err, &cbErr) {
		return errors.NewExternalAPITransientError(apiName, http.StatusServiceUnavailable, err)
	}

	var respErr *github.ErrorResponse
	if stderrors.As(err, &respErr) && respErr.Response != nil {
		status := respErr.Response.StatusCode
		if resilience.IsRetryableHTTPStatus(status) {
			return errors.NewExternalAPITransientError(apiName, status, err)
		}
		return errors.NewExternalAPIPermanentError(apiName, status, err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.NewExternalAPITransientError(apiName, 0, err)
	}

	return errors.NewNetworkError(fmt.Sprintf("%s request failed", apiName), err)
}

func isStatus(err error, status int) bool {
	var respErr *github.ErrorResponse
	return stderrors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == status
}
