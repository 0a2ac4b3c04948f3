package analysis

import "context"

// GroupStore resolves a group's membership and repository. Implementations
// return an error in the not_found category for unknown groups.
type GroupStore interface {
	GetGroup(ctx context.Context, groupID string) (*GroupContext, error)
}
