package supabase

import (
	"context"
	"strconv"
	"strings"
	"time"

	"decivue/application/ports"
	"decivue/domain/core/entities"
	"decivue/domain/core/valueobjects"
	pkgerrors "decivue/pkg/errors"

	supa "github.com/supabase-community/supabase-go"
)

type decisionRecord struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Context           string     `json:"context"`
	Reasoning         string     `json:"reasoning"`
	DecisionType      string     `json:"decision_type"`
	Category          string     `json:"category"`
	InitialConfidence int        `json:"initial_confidence"`
	CurrentConfidence int        `json:"current_confidence"`
	PerceivedRisk     string     `json:"perceived_risk"`
	PerceivedImpact   string     `json:"perceived_impact"`
	Status            string     `json:"status"`
	Deadline          *time.Time `json:"deadline"`
	LastReviewedAt    time.Time  `json:"last_reviewed_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Version           int        `json:"version"`
}

func toDecisionRecord(s entities.DecisionSnapshot) decisionRecord {
	return decisionRecord{
		ID:                s.ID,
		UserID:            s.UserID,
		Title:             s.Title,
		Description:       s.Description,
		Context:           s.Context,
		Reasoning:         s.Reasoning,
		DecisionType:      s.DecisionType,
		Category:          s.Category,
		InitialConfidence: s.InitialConfidence,
		CurrentConfidence: s.CurrentConfidence,
		PerceivedRisk:     s.PerceivedRisk,
		PerceivedImpact:   s.PerceivedImpact,
		Status:            s.Status,
		Deadline:          optionalTime(s.Deadline),
		LastReviewedAt:    s.LastReviewedAt.UTC(),
		CreatedAt:         s.CreatedAt.UTC(),
		UpdatedAt:         s.UpdatedAt.UTC(),
		Version:           s.Version,
	}
}

func (r decisionRecord) toEntity() (*entities.Decision, error) {
	return entities.ReconstructDecision(entities.DecisionSnapshot{
		ID:                r.ID,
		UserID:            r.UserID,
		Title:             r.Title,
		Description:       r.Description,
		Context:           r.Context,
		Reasoning:         r.Reasoning,
		DecisionType:      r.DecisionType,
		Category:          r.Category,
		InitialConfidence: r.InitialConfidence,
		CurrentConfidence: r.CurrentConfidence,
		PerceivedRisk:     r.PerceivedRisk,
		PerceivedImpact:   r.PerceivedImpact,
		Status:            r.Status,
		Deadline:          optionalTime(r.Deadline),
		LastReviewedAt:    r.LastReviewedAt.UTC(),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
		Version:           r.Version,
	})
}

// DecisionRepository implements ports.DecisionRepository over PostgREST.
// Updates filter on the loaded version, so a concurrent writer makes the
// update match no rows.
type DecisionRepository struct {
	client *supa.Client
}

func NewDecisionRepository(client *supa.Client) *DecisionRepository {
	return &DecisionRepository{client: client}
}

var _ ports.DecisionRepository = (*DecisionRepository)(nil)

func (r *DecisionRepository) Save(ctx context.Context, decision *entities.Decision) error {
	record := toDecisionRecord(decision.Snapshot())
	if decision.IsNew() {
		_, _, err := r.client.From(tableDecisions).Insert(record, false, "", "minimal", "").Execute()
		if err != nil {
			if isDuplicate(err) {
				return pkgerrors.NewConflictError("decision already exists")
			}
			return restError("insert decision", err)
		}
		return nil
	}

	var updated []decisionRecord
	_, err := r.client.From(tableDecisions).
		Update(record, "representation", "").
		Eq("id", record.ID).
		Eq("user_id", record.UserID).
		Eq("version", strconv.Itoa(decision.OriginalVersion())).
		ExecuteTo(&updated)
	if err != nil {
		return restError("update decision", err)
	}
	if len(updated) == 1 {
		return nil
	}

	current, err := r.GetByID(ctx, decision.UserID(), decision.ID())
	if err != nil {
		return err
	}
	return pkgerrors.NewConcurrencyConflictError("decision", decision.OriginalVersion(), current.Version())
}

func (r *DecisionRepository) GetByID(ctx context.Context, userID string, id valueobjects.DecisionID) (*entities.Decision, error) {
	var rows []decisionRecord
	_, err := r.client.From(tableDecisions).
		Select("*", "", false).
		Eq("id", id.String()).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, restError("get decision", err)
	}
	if len(rows) == 0 {
		return nil, pkgerrors.NewNotFoundError("decision")
	}
	return rows[0].toEntity()
}

func (r *DecisionRepository) List(ctx context.Context, userID string, filter ports.DecisionFilter) ([]*entities.Decision, error) {
	q := r.client.From(tableDecisions).
		Select("*", "", false).
		Eq("user_id", userID)
	if filter.Category != nil {
		q = q.Eq("category", string(*filter.Category))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		p := ilikePattern(term)
		q = q.Or("title.ilike."+p+",description.ilike."+p, "")
	}

	var rows []decisionRecord
	if _, err := q.Order("created_at", newestFirst).ExecuteTo(&rows); err != nil {
		return nil, restError("list decisions", err)
	}

	out := make([]*entities.Decision, 0, len(rows))
	for _, row := range rows {
		d, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *DecisionRepository) Delete(ctx context.Context, userID string, id valueobjects.DecisionID) error {
	var deleted []decisionRecord
	_, err := r.client.From(tableDecisions).
		Delete("representation", "").
		Eq("id", id.String()).
		Eq("user_id", userID).
		ExecuteTo(&deleted)
	if err != nil {
		return restError("delete decision", err)
	}
	if len(deleted) == 0 {
		return pkgerrors.NewNotFoundError("decision")
	}
	return nil
}
