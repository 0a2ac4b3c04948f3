package analysis

// DefaultMaxMessages caps the commit messages kept per contributor
const DefaultMaxMessages = 50

// Aggregator folds commits into per-identity totals
type Aggregator struct {
	aliases     *AliasResolver
	maxMessages int
}

// NewAggregator creates an aggregator. maxMessages <= 0 disables message collection.
func NewAggregator(aliases *AliasResolver, maxMessages int) *Aggregator {
	return &Aggregator{aliases: aliases, maxMessages: maxMessages}
}

// Aggregate canonicalizes each commit author, drops authors that are not
// known contributors and sums the rest. A commit without diff stats still
// counts toward CommitCount and LastCommitDate.
func (a *Aggregator) Aggregate(pairs []CommitWithDiff, known []ContributorSummary) map[string]*ContributorTotals {
	knownIDs := a.aliases.KnownIdentities(known)
	totals := make(map[string]*ContributorTotals)

	for _, p := range pairs {
		identity := a.aliases.Canonicalize(p.Commit.Author)
		if _, ok := knownIDs[identity]; !ok {
			continue
		}

		t, ok := totals[identity]
		if !ok {
			t = &ContributorTotals{Identity: identity}
			totals[identity] = t
		}

		t.CommitCount++

		if p.Diff != nil {
			t.LinesAdded += max(p.Diff.Additions, 0)
			t.LinesRemoved += max(p.Diff.Deletions, 0)
			t.FilesModified += max(p.Diff.FilesChanged, 0)
		} else if p.DiffErr != nil {
			t.DiffFailures++
		}

		if ts := p.Commit.Timestamp; !ts.IsZero() && (t.LastCommitDate == nil || ts.After(*t.LastCommitDate)) {
			last := ts
			t.LastCommitDate = &last
		}

		if len(t.Messages) < a.maxMessages && p.Commit.Message != "" {
			t.Messages = append(t.Messages, p.Commit.Message)
		}
	}

	return totals
}

// AggregateContributors aggregates with the default message cap
func AggregateContributors(pairs []CommitWithDiff, known []ContributorSummary, aliases *AliasResolver) map[string]*ContributorTotals {
	return NewAggregator(aliases, DefaultMaxMessages).Aggregate(pairs, known)
}
