package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"decivue/application/ports"
	"decivue/domain/core/entities"
	"decivue/domain/core/valueobjects"
	pkgerrors "decivue/pkg/errors"

	"github.com/jmoiron/sqlx"
)

const decisionColumns = `id, user_id, title, description, context, reasoning, decision_type, category,
	initial_confidence, current_confidence, perceived_risk, perceived_impact, status, deadline,
	last_reviewed_at, created_at, updated_at, version`

type decisionRow struct {
	ID                string       `db:"id"`
	UserID            string       `db:"user_id"`
	Title             string       `db:"title"`
	Description       string       `db:"description"`
	Context           string       `db:"context"`
	Reasoning         string       `db:"reasoning"`
	DecisionType      string       `db:"decision_type"`
	Category          string       `db:"category"`
	InitialConfidence int          `db:"initial_confidence"`
	CurrentConfidence int          `db:"current_confidence"`
	PerceivedRisk     string       `db:"perceived_risk"`
	PerceivedImpact   string       `db:"perceived_impact"`
	Status            string       `db:"status"`
	Deadline          sql.NullTime `db:"deadline"`
	LastReviewedAt    time.Time    `db:"last_reviewed_at"`
	CreatedAt         time.Time    `db:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at"`
	Version           int          `db:"version"`
	OriginalVersion   int          `db:"original_version"`
}

func toDecisionRow(d *entities.Decision) decisionRow {
	s := d.Snapshot()
	return decisionRow{
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
		Deadline:          nullTime(s.Deadline),
		LastReviewedAt:    s.LastReviewedAt,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		Version:           s.Version,
		OriginalVersion:   d.OriginalVersion(),
	}
}

func (r decisionRow) toEntity() (*entities.Decision, error) {
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
		Deadline:          timePtr(r.Deadline),
		LastReviewedAt:    r.LastReviewedAt.UTC(),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
		Version:           r.Version,
	})
}

// DecisionRepository implements ports.DecisionRepository on PostgreSQL.
type DecisionRepository struct {
	db *sqlx.DB
}

func NewDecisionRepository(db *sqlx.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

var _ ports.DecisionRepository = (*DecisionRepository)(nil)

func (r *DecisionRepository) Save(ctx context.Context, decision *entities.Decision) error {
	row := toDecisionRow(decision)
	if decision.IsNew() {
		_, err := r.db.NamedExecContext(ctx, `
			INSERT INTO decisions (`+decisionColumns+`)
			VALUES (:id, :user_id, :title, :description, :context, :reasoning, :decision_type, :category,
				:initial_confidence, :current_confidence, :perceived_risk, :perceived_impact, :status, :deadline,
				:last_reviewed_at, :created_at, :updated_at, :version)`, row)
		if err != nil {
			if isUniqueViolation(err) {
				return pkgerrors.NewConflictError("decision already exists")
			}
			return dbError("insert decision", err)
		}
		return nil
	}

	res, err := r.db.NamedExecContext(ctx, `
		UPDATE decisions SET
			title = :title, description = :description, context = :context, reasoning = :reasoning,
			decision_type = :decision_type, category = :category,
			current_confidence = :current_confidence, perceived_risk = :perceived_risk,
			perceived_impact = :perceived_impact, status = :status, deadline = :deadline,
			last_reviewed_at = :last_reviewed_at, updated_at = :updated_at, version = :version
		WHERE id = :id AND user_id = :user_id AND version = :original_version`, row)
	if err != nil {
		return dbError("update decision", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return dbError("update decision", err)
	} else if n == 1 {
		return nil
	}

	var actual int
	err = r.db.GetContext(ctx, &actual, `SELECT version FROM decisions WHERE id = $1 AND user_id = $2`, row.ID, row.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return pkgerrors.NewNotFoundError("decision")
	}
	if err != nil {
		return dbError("read decision version", err)
	}
	return pkgerrors.NewConcurrencyConflictError("decision", row.OriginalVersion, actual)
}

func (r *DecisionRepository) GetByID(ctx context.Context, userID string, id valueobjects.DecisionID) (*entities.Decision, error) {
	var row decisionRow
	err := r.db.GetContext(ctx, &row, `SELECT `+decisionColumns+` FROM decisions WHERE id = $1 AND user_id = $2`, id.String(), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("decision")
	}
	if err != nil {
		return nil, dbError("get decision", err)
	}
	return row.toEntity()
}

func (r *DecisionRepository) List(ctx context.Context, userID string, filter ports.DecisionFilter) ([]*entities.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE user_id = $1`
	args := []interface{}{userID}

	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		query += ` AND category = $2`
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		n := len(args)
		query += ` AND (title ILIKE $` + strconv.Itoa(n) + ` OR description ILIKE $` + strconv.Itoa(n) + `)`
	}
	query += ` ORDER BY created_at DESC, id`

	var rows []decisionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, dbError("list decisions", err)
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM decisions WHERE id = $1 AND user_id = $2`, id.String(), userID)
	if err != nil {
		return dbError("delete decision", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("delete decision", err)
	}
	if n == 0 {
		return pkgerrors.NewNotFoundError("decision")
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}
