package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"decivue/application/ports"
	"decivue/domain/core/entities"
	"decivue/domain/core/valueobjects"
	pkgerrors "decivue/pkg/errors"
)

type assumptionRow struct {
	ID             string
	DecisionID     string
	Content        string
	IsValidated    bool
	ValidationDate *time.Time
	CreatedAt      time.Time
}

// AssumptionRepository keeps assumptions in a map keyed by ID.
type AssumptionRepository struct {
	mu   sync.RWMutex
	rows map[string]assumptionRow
}

func NewAssumptionRepository() *AssumptionRepository {
	return &AssumptionRepository{rows: make(map[string]assumptionRow)}
}

var _ ports.AssumptionRepository = (*AssumptionRepository)(nil)

func (r *AssumptionRepository) Save(ctx context.Context, a *entities.Assumption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[a.ID().String()] = assumptionRow{
		ID:             a.ID().String(),
		DecisionID:     a.DecisionID().String(),
		Content:        a.Content(),
		IsValidated:    a.IsValidated(),
		ValidationDate: a.ValidationDate(),
		CreatedAt:      a.CreatedAt(),
	}
	return nil
}

func (r *AssumptionRepository) GetByID(ctx context.Context, decisionID valueobjects.DecisionID, id valueobjects.AssumptionID) (*entities.Assumption, error) {
	r.mu.RLock()
	row, ok := r.rows[id.String()]
	r.mu.RUnlock()
	if !ok || row.DecisionID != decisionID.String() {
		return nil, pkgerrors.NewNotFoundError("assumption")
	}
	return entities.ReconstructAssumption(row.ID, row.DecisionID, row.Content, row.IsValidated, row.ValidationDate, row.CreatedAt)
}

// ListByDecision returns assumptions oldest first.
func (r *AssumptionRepository) ListByDecision(ctx context.Context, decisionID valueobjects.DecisionID) ([]*entities.Assumption, error) {
	r.mu.RLock()
	var rows []assumptionRow
	for _, row := range r.rows {
		if row.DecisionID == decisionID.String() {
			rows = append(rows, row)
		}
	}
	r.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })

	out := make([]*entities.Assumption, 0, len(rows))
	for _, row := range rows {
		a, err := entities.ReconstructAssumption(row.ID, row.DecisionID, row.Content, row.IsValidated, row.ValidationDate, row.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *AssumptionRepository) DeleteByDecision(ctx context.Context, decisionID valueobjects.DecisionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.rows {
		if row.DecisionID == decisionID.String() {
			delete(r.rows, id)
		}
	}
	return nil
}

// InsightRepository keeps insights in a map keyed by ID.
type InsightRepository struct {
	mu   sync.RWMutex
	rows map[string]entities.InsightParams
}

func NewInsightRepository() *InsightRepository {
	return &InsightRepository{rows: make(map[string]entities.InsightParams)}
}

var _ ports.InsightRepository = (*InsightRepository)(nil)

func (r *InsightRepository) Save(ctx context.Context, i *entities.Insight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[i.ID().String()] = i.Params()
	return nil
}

func (r *InsightRepository) GetByID(ctx context.Context, userID string, id valueobjects.InsightID) (*entities.Insight, error) {
	r.mu.RLock()
	row, ok := r.rows[id.String()]
	r.mu.RUnlock()
	if !ok || row.UserID != userID {
		return nil, pkgerrors.NewNotFoundError("insight")
	}
	return entities.ReconstructInsight(row)
}

func (r *InsightRepository) ListForUser(ctx context.Context, userID string, filter ports.InsightFilter) ([]*entities.Insight, error) {
	r.mu.RLock()
	var rows []entities.InsightParams
	for _, row := range r.rows {
		if row.UserID != userID {
			continue
		}
		if !filter.IncludeDismissed && row.IsDismissed {
			continue
		}
		if filter.DecisionID != nil && row.DecisionID != filter.DecisionID.String() {
			continue
		}
		rows = append(rows, row)
	}
	r.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}

	out := make([]*entities.Insight, 0, len(rows))
	for _, row := range rows {
		ins, err := entities.ReconstructInsight(row)
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, nil
}
