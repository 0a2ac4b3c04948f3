package freerider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/cache"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/database"
	apperrors "github.com/ZanzyTHEbar/free-rider-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/ratelimit"
)

// FlagStore owns the persisted flag set
type FlagStore interface {
	ReplaceForGroup(ctx context.Context, groupID string, records []database.FreeRiderRecord) error
	ListByGroup(ctx context.Context, groupID string) ([]database.FreeRiderRecord, error)
}

// Locker serializes reconciliation per group. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, groupID string) (func(), error)
}

// Config holds the analysis parameters of a service
type Config struct {
	Threshold     float64
	Aliases       map[string]string
	NoisePrefixes []string
	MaxMessages   int
	Workers       int
}

// DefaultConfig returns the production analysis parameters
func DefaultConfig() Config {
	return Config{
		Threshold:     analysis.DefaultThreshold,
		Aliases:       analysis.DefaultAliases,
		NoisePrefixes: analysis.DefaultNoisePrefixes,
		MaxMessages:   analysis.DefaultMaxMessages,
		Workers:       analysis.DefaultFetchWorkers,
	}
}

// Dependencies are the collaborators of a Service. Groups, Evaluations,
// Hosting and Flags are required; the rest are optional.
type Dependencies struct {
	Groups      analysis.GroupStore
	Evaluations analysis.EvaluationStore
	Hosting     analysis.HostingAPI
	Flags       FlagStore
	Lock        Locker
	Throttle    analysis.Throttle
	Cache       *cache.Cache[*Report]
	Metrics     *monitoring.Metrics
	Logger      *monitoring.Logger
	Tracer      *monitoring.Tracer
	Clock       func() time.Time
}

// Service runs free-rider analysis for groups and serves the persisted results
type Service struct {
	cfg         Config
	groups      analysis.GroupStore
	evaluations *analysis.EvaluationAggregator
	fetcher     *analysis.ActivityFetcher
	aggregator  *analysis.Aggregator
	aliases     *analysis.AliasResolver
	flags       FlagStore
	lock        Locker
	cache       *cache.Cache[*Report]
	metrics     *monitoring.Metrics
	logger      *monitoring.Logger
	tracer      *monitoring.Tracer
	now         func() time.Time
}

// NewService wires a service from its dependencies
func NewService(cfg Config, deps Dependencies) (*Service, error) {
	switch {
	case deps.Groups == nil:
		return nil, apperrors.NewConfigurationError("group store is required", nil)
	case deps.Evaluations == nil:
		return nil, apperrors.NewConfigurationError("evaluation store is required", nil)
	case deps.Hosting == nil:
		return nil, apperrors.NewConfigurationError("hosting API is required", nil)
	case deps.Flags == nil:
		return nil, apperrors.NewConfigurationError("flag store is required", nil)
	}

	if cfg.Threshold <= 0 {
		cfg.Threshold = analysis.DefaultThreshold
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = analysis.DefaultMaxMessages
	}
	if deps.Logger == nil {
		deps.Logger = &monitoring.Logger{Logger: slog.Default()}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Lock == nil {
		deps.Lock = ratelimit.NewGroupLock(ratelimit.DisabledRedis(), 0)
	}

	aliases := analysis.NewAliasResolver(cfg.Aliases)
	s := &Service{
		cfg:         cfg,
		groups:      deps.Groups,
		evaluations: analysis.NewEvaluationAggregator(deps.Evaluations),
		aggregator:  analysis.NewAggregator(aliases, cfg.MaxMessages),
		aliases:     aliases,
		flags:       deps.Flags,
		lock:        deps.Lock,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		tracer:      deps.Tracer,
		now:         deps.Clock,
	}

	s.fetcher = analysis.NewActivityFetcher(deps.Hosting, analysis.FetcherConfig{
		Workers:        cfg.Workers,
		Preprocessor:   analysis.NewPreprocessor(cfg.NoisePrefixes),
		Throttle:       deps.Throttle,
		OnPartialFetch: s.onPartialFetch,
		Logger:         deps.Logger.Logger,
	})

	return s, nil
}

func (s *Service) onPartialFetch(ref analysis.RepositoryRef, sha string, err error) {
	s.logger.PartialFetchLogger(ref.String(), sha, err)
	if s.metrics != nil {
		s.metrics.IncrementPartialFetch()
	}
}

// Run analyses one group end to end and returns the persisted flag set.
// A failed run leaves previously persisted flags untouched and returns no report.
func (s *Service) Run(ctx context.Context, groupID string) (report *Report, err error) {
	start := time.Now()
	run := analysis.NewRun(uuid.New().String(), groupID, s.cfg.Threshold)

	var (
		members      int
		diffFailures int
	)

	err = monitoring.TraceFunction(ctx, s.tracer, "freerider.run", func(ctx context.Context) error {
		var runErr error
		report, members, diffFailures, runErr = s.run(ctx, run)
		return runErr
	})
	if err != nil {
		report = nil
	}

	flagged := 0
	if report != nil {
		flagged = len(report.FreeRiders)
	}
	if s.metrics != nil {
		s.metrics.RecordRun(err, flagged, time.Since(start))
	}
	s.logger.RunLogger(run.ID, groupID, members, flagged, diffFailures, time.Since(start), err)

	return report, err
}

func (s *Service) run(ctx context.Context, run *analysis.Run) (*Report, int, int, error) {
	group, ref, err := s.resolve(ctx, run.GroupID)
	if err != nil {
		return nil, 0, 0, err
	}

	var activity *analysis.Activity
	err = monitoring.TraceFunction(ctx, s.tracer, "freerider.fetch", func(ctx context.Context) error {
		var fetchErr error
		activity, fetchErr = s.fetcher.Fetch(ctx, ref)
		return fetchErr
	})
	if err != nil {
		return nil, len(group.Members), 0, err
	}

	totals := s.aggregator.Aggregate(activity.Commits, activity.Contributors)

	evaluations, err := s.evaluations.SummarizeAll(ctx, group.ProjectID, group.Members)
	if err != nil {
		return nil, len(group.Members), activity.DiffFailures, err
	}

	scores := analysis.ScoreMembers(group.Members, totals, evaluations, s.aliases)
	if err := run.MarkScored(scores); err != nil {
		return nil, len(group.Members), activity.DiffFailures, apperrors.NewInternalError("run state", err)
	}

	if _, err := run.Classify(); err != nil {
		return nil, len(group.Members), activity.DiffFailures, apperrors.NewInternalError("run state", err)
	}

	report, err := s.reconcile(ctx, run)
	if err != nil {
		return nil, len(group.Members), activity.DiffFailures, err
	}
	report.DiffFailures = activity.DiffFailures

	return report, len(run.Scores()), activity.DiffFailures, nil
}

// resolve snapshots the group and decomposes its repository URL
func (s *Service) resolve(ctx context.Context, groupID string) (*analysis.GroupContext, analysis.RepositoryRef, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return nil, analysis.RepositoryRef{}, err
	}
	if strings.TrimSpace(group.RepositoryURL) == "" {
		return nil, analysis.RepositoryRef{}, apperrors.NewNotFoundError("repository", groupID)
	}

	ref, err := analysis.ParseRepositoryURL(group.RepositoryURL)
	if err != nil {
		return nil, analysis.RepositoryRef{}, apperrors.NewInvalidReferenceError(group.RepositoryURL, err)
	}
	return group, ref, nil
}

// reconcile replaces the group's flag set and reads it back under the group lock
func (s *Service) reconcile(ctx context.Context, run *analysis.Run) (*Report, error) {
	unlock, err := s.lock.Lock(ctx, run.GroupID)
	if err != nil {
		return nil, apperrors.WrapError(err, "failed to lock group %s", run.GroupID)
	}
	defer unlock()

	// A run cancelled while waiting for the lock must not persist.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	records := database.NewFreeRiderRecords(run.GroupID, run.ID, run.Flagged(), now)
	if err := s.flags.ReplaceForGroup(ctx, run.GroupID, records); err != nil {
		return nil, err
	}
	if err := run.MarkPersisted(); err != nil {
		return nil, apperrors.NewInternalError("run state", err)
	}
	if s.cache != nil {
		s.cache.Delete(run.GroupID)
	}

	persisted, err := s.flags.ListByGroup(ctx, run.GroupID)
	if err != nil {
		return nil, err
	}

	report := newReport(run.GroupID, persisted, s.cfg.Threshold, now)
	report.RunID = run.ID
	return report, nil
}

// Report returns the persisted flag set of a group without running analysis
func (s *Service) Report(ctx context.Context, groupID string) (*Report, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(groupID); ok {
			if s.metrics != nil {
				s.metrics.IncrementCacheHit()
			}
			s.logger.CacheLogger("get", groupID, true, len(cached.FreeRiders))
			return cached, nil
		}
		if s.metrics != nil {
			s.metrics.IncrementCacheMiss()
		}
	}

	var gen uint64
	if s.cache != nil {
		gen = s.cache.Generation(groupID)
	}

	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}

	records, err := s.flags.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	report := newReport(groupID, records, s.cfg.Threshold, s.now())
	if len(records) > 0 {
		report.RunID = records[0].RunID
	}

	// A run that reconciled after the read started has invalidated the key;
	// its flag set must not be shadowed by this older one.
	if s.cache != nil && s.cache.SetIfCurrent(groupID, report, gen) {
		s.logger.CacheLogger("set", groupID, false, len(report.FreeRiders))
	}
	return report, nil
}

func newReport(groupID string, records []database.FreeRiderRecord, threshold float64, now time.Time) *Report {
	entries := make([]ReportEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, newReportEntry(r))
	}
	return &Report{
		GroupID:     groupID,
		Threshold:   threshold,
		GeneratedAt: now.UTC(),
		FreeRiders:  entries,
	}
}

// String summarizes a report for CLI output
func (r *Report) String() string {
	return fmt.Sprintf("group %s: %d free rider(s) below %.2f", r.GroupID, len(r.FreeRiders), r.Threshold)
}
