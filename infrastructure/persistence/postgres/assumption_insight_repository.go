package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"decivue/application/ports"
	"decivue/domain/core/entities"
	"decivue/domain/core/valueobjects"
	pkgerrors "decivue/pkg/errors"

	"github.com/jmoiron/sqlx"
)

type assumptionRow struct {
	ID             string       `db:"id"`
	DecisionID     string       `db:"decision_id"`
	Content        string       `db:"content"`
	IsValidated    bool         `db:"is_validated"`
	ValidationDate sql.NullTime `db:"validation_date"`
	CreatedAt      time.Time    `db:"created_at"`
}

func (r assumptionRow) toEntity() (*entities.Assumption, error) {
	return entities.ReconstructAssumption(r.ID, r.DecisionID, r.Content, r.IsValidated, timePtr(r.ValidationDate), r.CreatedAt.UTC())
}

// AssumptionRepository implements ports.AssumptionRepository.
type AssumptionRepository struct {
	db *sqlx.DB
}

func NewAssumptionRepository(db *sqlx.DB) *AssumptionRepository {
	return &AssumptionRepository{db: db}
}

var _ ports.AssumptionRepository = (*AssumptionRepository)(nil)

// Save upserts; only the validation fields change after creation.
func (r *AssumptionRepository) Save(ctx context.Context, a *entities.Assumption) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO assumptions (id, decision_id, content, is_validated, validation_date, created_at)
		VALUES (:id, :decision_id, :content, :is_validated, :validation_date, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			is_validated = EXCLUDED.is_validated,
			validation_date = EXCLUDED.validation_date`,
		assumptionRow{
			ID:             a.ID().String(),
			DecisionID:     a.DecisionID().String(),
			Content:        a.Content(),
			IsValidated:    a.IsValidated(),
			ValidationDate: nullTime(a.ValidationDate()),
			CreatedAt:      a.CreatedAt(),
		})
	if err != nil {
		return dbError("save assumption", err)
	}
	return nil
}

func (r *AssumptionRepository) GetByID(ctx context.Context, decisionID valueobjects.DecisionID, id valueobjects.AssumptionID) (*entities.Assumption, error) {
	var row assumptionRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, decision_id, content, is_validated, validation_date, created_at
		FROM assumptions WHERE id = $1 AND decision_id = $2`, id.String(), decisionID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("assumption")
	}
	if err != nil {
		return nil, dbError("get assumption", err)
	}
	return row.toEntity()
}

func (r *AssumptionRepository) ListByDecision(ctx context.Context, decisionID valueobjects.DecisionID) ([]*entities.Assumption, error) {
	var rows []assumptionRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, decision_id, content, is_validated, validation_date, created_at
		FROM assumptions WHERE decision_id = $1
		ORDER BY created_at, id`, decisionID.String())
	if err != nil {
		return nil, dbError("list assumptions", err)
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
	if _, err := r.db.ExecContext(ctx, `DELETE FROM assumptions WHERE decision_id = $1`, decisionID.String()); err != nil {
		return dbError("delete assumptions", err)
	}
	return nil
}

type insightRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	DecisionID  sql.NullString `db:"decision_id"`
	InsightType string         `db:"insight_type"`
	Severity    string         `db:"severity"`
	Title       string         `db:"title"`
	Message     string         `db:"message"`
	IsDismissed bool           `db:"is_dismissed"`
	CreatedAt   time.Time      `db:"created_at"`
	DismissedAt sql.NullTime   `db:"dismissed_at"`
}

func (r insightRow) toEntity() (*entities.Insight, error) {
	return entities.ReconstructInsight(entities.InsightParams{
		ID:          r.ID,
		UserID:      r.UserID,
		DecisionID:  r.DecisionID.String,
		InsightType: r.InsightType,
		Severity:    r.Severity,
		Title:       r.Title,
		Message:     r.Message,
		IsDismissed: r.IsDismissed,
		CreatedAt:   r.CreatedAt.UTC(),
		DismissedAt: timePtr(r.DismissedAt),
	})
}

// InsightRepository implements ports.InsightRepository.
type InsightRepository struct {
	db *sqlx.DB
}

func NewInsightRepository(db *sqlx.DB) *InsightRepository {
	return &InsightRepository{db: db}
}

var _ ports.InsightRepository = (*InsightRepository)(nil)

func (r *InsightRepository) Save(ctx context.Context, i *entities.Insight) error {
	p := i.Params()
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO insights (id, user_id, decision_id, insight_type, severity, title, message, is_dismissed, created_at, dismissed_at)
		VALUES (:id, :user_id, :decision_id, :insight_type, :severity, :title, :message, :is_dismissed, :created_at, :dismissed_at)
		ON CONFLICT (id) DO UPDATE SET
			is_dismissed = EXCLUDED.is_dismissed,
			dismissed_at = EXCLUDED.dismissed_at`,
		insightRow{
			ID:          p.ID,
			UserID:      p.UserID,
			DecisionID:  sql.NullString{String: p.DecisionID, Valid: p.DecisionID != ""},
			InsightType: p.InsightType,
			Severity:    p.Severity,
			Title:       p.Title,
			Message:     p.Message,
			IsDismissed: p.IsDismissed,
			CreatedAt:   p.CreatedAt,
			DismissedAt: nullTime(p.DismissedAt),
		})
	if err != nil {
		return dbError("save insight", err)
	}
	return nil
}

const insightColumns = `id, user_id, decision_id, insight_type, severity, title, message, is_dismissed, created_at, dismissed_at`

func (r *InsightRepository) GetByID(ctx context.Context, userID string, id valueobjects.InsightID) (*entities.Insight, error) {
	var row insightRow
	err := r.db.GetContext(ctx, &row, `SELECT `+insightColumns+` FROM insights WHERE id = $1 AND user_id = $2`, id.String(), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("insight")
	}
	if err != nil {
		return nil, dbError("get insight", err)
	}
	return row.toEntity()
}

func (r *InsightRepository) ListForUser(ctx context.Context, userID string, filter ports.InsightFilter) ([]*entities.Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights WHERE user_id = $1`
	args := []interface{}{userID}
	if !filter.IncludeDismissed {
		query += ` AND NOT is_dismissed`
	}
	if filter.DecisionID != nil {
		args = append(args, filter.DecisionID.String())
		query += ` AND decision_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	var rows []insightRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, dbError("list insights", err)
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
