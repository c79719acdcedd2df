// Package memory provides process-local adapters for every persistence
// port. They back local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"decivue/application/ports"
	"decivue/domain/core/entities"
	"decivue/domain/core/valueobjects"
	pkgerrors "decivue/pkg/errors"
)

// DecisionRepository keeps decision snapshots in a map. Snapshots are
// copied in and out so callers never share state with the store.
type DecisionRepository struct {
	mu        sync.RWMutex
	decisions map[string]entities.DecisionSnapshot
}

func NewDecisionRepository() *DecisionRepository {
	return &DecisionRepository{decisions: make(map[string]entities.DecisionSnapshot)}
}

var _ ports.DecisionRepository = (*DecisionRepository)(nil)

func (r *DecisionRepository) Save(ctx context.Context, decision *entities.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := decision.Snapshot()
	current, exists := r.decisions[snap.ID]
	switch {
	case decision.IsNew() && exists:
		return pkgerrors.NewConflictError("decision already exists")
	case !decision.IsNew() && !exists:
		return pkgerrors.NewNotFoundError("decision")
	case !decision.IsNew() && current.Version != decision.OriginalVersion():
		return pkgerrors.NewConcurrencyConflictError("decision", decision.OriginalVersion(), current.Version)
	}

	r.decisions[snap.ID] = snap
	return nil
}

func (r *DecisionRepository) GetByID(ctx context.Context, userID string, id valueobjects.DecisionID) (*entities.Decision, error) {
	r.mu.RLock()
	snap, ok := r.decisions[id.String()]
	r.mu.RUnlock()

	if !ok || snap.UserID != userID {
		return nil, pkgerrors.NewNotFoundError("decision")
	}
	return entities.ReconstructDecision(snap)
}

func (r *DecisionRepository) List(ctx context.Context, userID string, filter ports.DecisionFilter) ([]*entities.Decision, error) {
	r.mu.RLock()
	snaps := make([]entities.DecisionSnapshot, 0)
	for _, s := range r.decisions {
		if s.UserID == userID {
			snaps = append(snaps, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})

	out := make([]*entities.Decision, 0, len(snaps))
	for _, s := range snaps {
		d, err := entities.ReconstructDecision(s)
		if err != nil {
			return nil, err
		}
		if filter.Category != nil && d.Category() != *filter.Category {
			continue
		}
		if !d.Content().Matches(filter.Search) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *DecisionRepository) Delete(ctx context.Context, userID string, id valueobjects.DecisionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, ok := r.decisions[id.String()]
	if !ok || snap.UserID != userID {
		return pkgerrors.NewNotFoundError("decision")
	}
	delete(r.decisions, id.String())
	return nil
}
