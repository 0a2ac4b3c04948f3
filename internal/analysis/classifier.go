package analysis

import "fmt"

// DefaultThreshold is the composite score below which a member is flagged
const DefaultThreshold = 0.2

// Classify marks members whose composite score is strictly below threshold
// and returns the flagged subset in input order.
func Classify(scores []MemberScore, threshold float64) []MemberScore {
	flagged := make([]MemberScore, 0)
	for i := range scores {
		scores[i].Flagged = scores[i].Composite < threshold
		if scores[i].Flagged {
			flagged = append(flagged, scores[i])
		}
	}
	return flagged
}

// RunState is the lifecycle of one classification run
type RunState int

const (
	StatePending RunState = iota
	StateScored
	StateClassified
	StatePersisted
)

func (s RunState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateScored:
		return "scored"
	case StateClassified:
		return "classified"
	case StatePersisted:
		return "persisted"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// Run tracks one group's pass through Pending → Scored → Classified → Persisted.
// Each transition is accepted only from its predecessor.
type Run struct {
	ID        string
	GroupID   string
	Threshold float64

	state   RunState
	scores  []MemberScore
	flagged []MemberScore
}

// NewRun starts a run in the Pending state
func NewRun(id, groupID string, threshold float64) *Run {
	return &Run{ID: id, GroupID: groupID, Threshold: threshold}
}

// State returns the current state
func (r *Run) State() RunState { return r.state }

// Scores returns every member's score once the run is Scored
func (r *Run) Scores() []MemberScore { return r.scores }

// Flagged returns the flagged members once the run is Classified
func (r *Run) Flagged() []MemberScore { return r.flagged }

func (r *Run) advance(from, to RunState) error {
	if r.state != from {
		return fmt.Errorf("run %s: cannot move to %s from %s", r.ID, to, r.state)
	}
	r.state = to
	return nil
}

// MarkScored records the member scores
func (r *Run) MarkScored(scores []MemberScore) error {
	if err := r.advance(StatePending, StateScored); err != nil {
		return err
	}
	r.scores = scores
	return nil
}

// Classify applies the run threshold to the recorded scores
func (r *Run) Classify() ([]MemberScore, error) {
	if err := r.advance(StateScored, StateClassified); err != nil {
		return nil, err
	}
	r.flagged = Classify(r.scores, r.Threshold)
	return r.flagged, nil
}

// MarkPersisted records that the flagged set has been reconciled
func (r *Run) MarkPersisted() error {
	return r.advance(StateClassified, StatePersisted)
}
