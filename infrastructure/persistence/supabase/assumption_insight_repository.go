package supabase

import (
	"context"
	"time"

	"decivue/application/ports"
	"decivue/domain/core/entities"
	"decivue/domain/core/valueobjects"
	pkgerrors "decivue/pkg/errors"

	supa "github.com/supabase-community/supabase-go"
)

type assumptionRecord struct {
	ID             string     `json:"id"`
	DecisionID     string     `json:"decision_id"`
	Content        string     `json:"content"`
	IsValidated    bool       `json:"is_validated"`
	ValidationDate *time.Time `json:"validation_date"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (r assumptionRecord) toEntity() (*entities.Assumption, error) {
	return entities.ReconstructAssumption(r.ID, r.DecisionID, r.Content, r.IsValidated, optionalTime(r.ValidationDate), r.CreatedAt.UTC())
}

// AssumptionRepository implements ports.AssumptionRepository.
type AssumptionRepository struct {
	client *supa.Client
}

func NewAssumptionRepository(client *supa.Client) *AssumptionRepository {
	return &AssumptionRepository{client: client}
}

var _ ports.AssumptionRepository = (*AssumptionRepository)(nil)

func (r *AssumptionRepository) Save(ctx context.Context, a *entities.Assumption) error {
	record := assumptionRecord{
		ID:             a.ID().String(),
		DecisionID:     a.DecisionID().String(),
		Content:        a.Content(),
		IsValidated:    a.IsValidated(),
		ValidationDate: optionalTime(a.ValidationDate()),
		CreatedAt:      a.CreatedAt().UTC(),
	}
	if _, _, err := r.client.From(tableAssumptions).Upsert(record, "id", "minimal", "").Execute(); err != nil {
		return restError("save assumption", err)
	}
	return nil
}

func (r *AssumptionRepository) GetByID(ctx context.Context, decisionID valueobjects.DecisionID, id valueobjects.AssumptionID) (*entities.Assumption, error) {
	var rows []assumptionRecord
	_, err := r.client.From(tableAssumptions).
		Select("*", "", false).
		Eq("id", id.String()).
		Eq("decision_id", decisionID.String()).
		ExecuteTo(&rows)
	if err != nil {
		return nil, restError("get assumption", err)
	}
	if len(rows) == 0 {
		return nil, pkgerrors.NewNotFoundError("assumption")
	}
	return rows[0].toEntity()
}

func (r *AssumptionRepository) ListByDecision(ctx context.Context, decisionID valueobjects.DecisionID) ([]*entities.Assumption, error) {
	var rows []assumptionRecord
	_, err := r.client.From(tableAssumptions).
		Select("*", "", false).
		Eq("decision_id", decisionID.String()).
		Order("created_at", oldestFirst).
		ExecuteTo(&rows)
	if err != nil {
		return nil, restError("list assumptions", err)
	}
	out := make([]*entities.Assumption, 0, len(rows))
	for _, row := range rows {
		a, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *AssumptionRepository) DeleteByDecision(ctx context.Context, decisionID valueobjects.DecisionID) error {
	_, _, err := r.client.From(tableAssumptions).
		Delete("minimal", "").
		Eq("decision_id", decisionID.String()).
		Execute()
	if err != nil {
		return restError("delete assumptions", err)
	}
	return nil
}

type insightRecord struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	DecisionID  *string    `json:"decision_id"`
	InsightType string     `json:"insight_type"`
	Severity    string     `json:"severity"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	IsDismissed bool       `json:"is_dismissed"`
	CreatedAt   time.Time  `json:"created_at"`
	DismissedAt *time.Time `json:"dismissed_at"`
}

func (r insightRecord) toEntity() (*entities.Insight, error) {
	p := entities.InsightParams{
		ID:          r.ID,
		UserID:      r.UserID,
		InsightType: r.InsightType,
		Severity:    r.Severity,
		Title:       r.Title,
		Message:     r.Message,
		IsDismissed: r.IsDismissed,
		CreatedAt:   r.CreatedAt.UTC(),
		DismissedAt: optionalTime(r.DismissedAt),
	}
	if r.DecisionID != nil {
		p.DecisionID = *r.DecisionID
	}
	return entities.ReconstructInsight(p)
}

// InsightRepository implements ports.InsightRepository.
type InsightRepository struct {
	client *supa.Client
}

func NewInsightRepository(client *supa.Client) *InsightRepository {
	return &InsightRepository{client: client}
}

var _ ports.InsightRepository = (*InsightRepository)(nil)

func (r *InsightRepository) Save(ctx context.Context, i *entities.Insight) error {
	p := i.Params()
	record := insightRecord{
		ID:          p.ID,
		UserID:      p.UserID,
		InsightType: p.InsightType,
		Severity:    p.Severity,
		Title:       p.Title,
		Message:     p.Message,
		IsDismissed: p.IsDismissed,
		CreatedAt:   p.CreatedAt.UTC(),
		DismissedAt: optionalTime(p.DismissedAt),
	}
	if p.DecisionID != "" {
		record.DecisionID = &p.DecisionID
	}
	if _, _, err := r.client.From(tableInsights).Upsert(record, "id", "minimal", "").Execute(); err != nil {
		return restError("save insight", err)
	}
	return nil
}

func (r *InsightRepository) GetByID(ctx context.Context, userID string, id valueobjects.InsightID) (*entities.Insight, error) {
	var rows []insightRecord
	_, err := r.client.From(tableInsights).
		Select("*", "", false).
		Eq("id", id.String()).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, restError("get insight", err)
	}
	if len(rows) == 0 {
		return nil, pkgerrors.NewNotFoundError("insight")
	}
	return rows[0].toEntity()
}

func (r *InsightRepository) ListForUser(ctx context.Context, userID string, filter ports.InsightFilter) ([]*entities.Insight, error) {
	q := r.client.From(tableInsights).
		Select("*", "", false).
		Eq("user_id", userID)
	if !filter.IncludeDismissed {
		q = q.Eq("is_dismissed", "false")
	}
	if filter.DecisionID != nil {
		q = q.Eq("decision_id", filter.DecisionID.String())
	}
	q = q.Order("created_at", newestFirst)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit, "")
	}

	var rows []insightRecord
	if _, err := q.ExecuteTo(&rows); err != nil {
		return nil, restError("list insights", err)
	}
	out := make([]*entities.Insight, 0, len(rows))
	for _, row := range rows {
		ins, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, nil
}
