package analysis

import (
	"context"
	"fmt"
)

// EvaluationStore returns every evaluation recorded for a student on a project
type EvaluationStore interface {
	FindEvaluations(ctx context.Context, projectID, studentID string) ([]EvaluationScore, error)
}

// EvaluationAggregator computes per-member evaluation means
type EvaluationAggregator struct {
	store EvaluationStore
}

// NewEvaluationAggregator creates an aggregator over store
func NewEvaluationAggregator(store EvaluationStore) *EvaluationAggregator {
	return &EvaluationAggregator{store: store}
}

// Summarize returns the mean of the non-null scores, or 0 when there are none.
func (e *EvaluationAggregator) Summarize(ctx context.Context, projectID, studentID string) (EvaluationSummary, error) {
	records, err := e.store.FindEvaluations(ctx, projectID, studentID)
	if err != nil {
		return EvaluationSummary{}, fmt.Errorf("failed to load evaluations for %s: %w", studentID, err)
	}
	return MeanScore(records), nil
}

// SummarizeAll loads every member's summary up front so scoring works from a
// fixed snapshot. The result is keyed by member ID.
func (e *EvaluationAggregator) SummarizeAll(ctx context.Context, projectID string, members []Member) (map[string]EvaluationSummary, error) {
	summaries := make(map[string]EvaluationSummary, len(members))
	for _, m := range members {
		if _, done := summaries[m.ID]; done {
			continue
		}
		s, err := e.Summarize(ctx, projectID, m.ID)
		if err != nil {
			return nil, err
		}
		summaries[m.ID] = s
	}
	return summaries, nil
}

// MeanScore averages the non-null scores in records
func MeanScore(records []EvaluationScore) EvaluationSummary {
	var (
		sum   float64
		count int
	)
	for _, r := range records {
		if r.Score == nil {
			continue
		}
		sum += *r.Score
		count++
	}
	if count == 0 {
		return EvaluationSummary{}
	}
	return EvaluationSummary{Mean: sum / float64(count), Count: count}
}
