package analysis

// Composite weights. Activity is a minority signal; evaluations dominate.
const (
	ActivityWeight   = 0.2
	EvaluationWeight = 0.8
)

// Normalize min-max scales loc into [0,1]. When every contributor touched the
// same number of lines there is no signal and the result is 0.
func Normalize(loc, minLOC, maxLOC int) float64 {
	if maxLOC == minLOC {
		return 0
	}
	return clip(float64(loc-minLOC)/float64(maxLOC-minLOC), 0, 1)
}

// LOCRange returns min and max LOC over the members that have a totals row.
// ok is false when no member has one.
func LOCRange(members []Member, totals map[string]*ContributorTotals, aliases *AliasResolver) (minLOC, maxLOC int, ok bool) {
	for _, m := range members {
		t := lookupTotals(m, totals, aliases)
		if t == nil {
			continue
		}
		loc := t.LOC()
		if !ok {
			minLOC, maxLOC, ok = loc, loc, true
			continue
		}
		minLOC = min(minLOC, loc)
		maxLOC = max(maxLOC, loc)
	}
	return minLOC, maxLOC, ok
}

// CompositeScore blends the normalized activity and evaluation mean
func CompositeScore(locScore, evaluationMean float64) float64 {
	return ActivityWeight*locScore + EvaluationWeight*evaluationMean
}

// ScoreMembers scores every member in order. Members without a GitHub
// handle, or whose handle has no totals row, score 0 with zero counters.
func ScoreMembers(members []Member, totals map[string]*ContributorTotals, evaluations map[string]EvaluationSummary, aliases *AliasResolver) []MemberScore {
	minLOC, maxLOC, _ := LOCRange(members, totals, aliases)

	scores := make([]MemberScore, 0, len(members))
	for _, m := range members {
		s := MemberScore{Member: m}

		t := lookupTotals(m, totals, aliases)
		if t != nil {
			s.Totals = t
			s.LOCScore = Normalize(t.LOC(), minLOC, maxLOC)
			s.EvaluationMean = evaluations[m.ID].Mean
			s.Composite = CompositeScore(s.LOCScore, s.EvaluationMean)
		} else {
			s.EvaluationMean = evaluations[m.ID].Mean
		}

		scores = append(scores, s)
	}
	return scores
}

func lookupTotals(m Member, totals map[string]*ContributorTotals, aliases *AliasResolver) *ContributorTotals {
	if m.GitHubHandle == "" {
		return nil
	}
	if t, ok := totals[m.GitHubHandle]; ok {
		return t
	}
	return totals[aliases.Canonicalize(m.GitHubHandle)]
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
