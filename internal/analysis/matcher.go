package analysis

import (
	"context"

	"github.com/EmpoweredVote/VR-Backend/internal/boundary"
)

// Matcher answers "which boundaries of this type contain this point" against
// the boundary store. Pure reads, no side effects.
type Matcher struct {
	Boundaries boundary.Store
}

// FindContaining returns every boundary identifier of the given type whose
// polygon contains the point, in ascending identifier order.
func (m *Matcher) FindContaining(ctx context.Context, pt boundary.Point, boundaryType string) ([]string, error) {
	return m.Boundaries.Containing(ctx, pt, boundaryType)
}

// Resolve picks the single determined identifier for a boundary type. A point
// on a shared edge can match zero or several same-type boundaries; when more
// than one matches, the lowest identifier wins and tie is reported so the
// caller flags the voter for review instead of silently picking.
func (m *Matcher) Resolve(ctx context.Context, pt boundary.Point, boundaryType string) (id string, tie bool, found bool, err error) {
	ids, err := m.FindContaining(ctx, pt, boundaryType)
	if err != nil {
		return "", false, false, err
	}
	if len(ids) == 0 {
		return "", false, false, nil
	}
	// ids are sorted; the first is the deterministic winner.
	return ids[0], len(ids) > 1, true, nil
}
