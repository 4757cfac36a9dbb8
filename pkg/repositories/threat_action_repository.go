package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/models"
)

// ThreatActionRepository provides data access for remediation actions.
type ThreatActionRepository interface {
	Create(ctx context.Context, action *models.ThreatAction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ThreatAction, error)
	List(ctx context.Context, filters models.ThreatActionFilters) ([]*models.ThreatAction, int, error)
	ListByThreat(ctx context.Context, threatID uuid.UUID) ([]*models.ThreatAction, error)
	Update(ctx context.Context, action *models.ThreatAction) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type threatActionRepository struct{}

// NewThreatActionRepository creates a ThreatActionRepository.
func NewThreatActionRepository() ThreatActionRepository {
	return &threatActionRepository{}
}

var _ ThreatActionRepository = (*threatActionRepository)(nil)

const threatActionColumns = `id, threat_id, action_type, action_details, status, executed_at,
	result, metadata, created_at, updated_at`

func (r *threatActionRepository) Create(ctx context.Context, action *models.ThreatAction) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	if action.ID == uuid.Nil {
		action.ID = uuid.New()
	}

	err = conn.QueryRow(ctx, `
		INSERT INTO threat_actions (id, threat_id, action_type, action_details, status,
		                            executed_at, result, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		action.ID, action.ThreatID, action.ActionType, action.ActionDetails, action.Status,
		action.ExecutedAt, action.Result, action.Metadata,
	).Scan(&action.CreatedAt, &action.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create threat action: %w", mapForeignKeyError(err))
	}
	return nil
}

func (r *threatActionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ThreatAction, error) {
	conn, err := connFromContext(ctx)
	if err != nil {
		return nil, err
	}

	action, err := scanThreatAction(conn.QueryRow(ctx,
		`SELECT `+threatActionColumns+` FROM threat_actions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get threat action: %w", err)
	}
	return action, nil
}

func (r *threatActionRepository) List(ctx context.Context, filters models.ThreatActionFilters) ([]*models.ThreatAction, int, error) {
	conn, err := connFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	var f filterBuilder
	if filters.ThreatID != nil {
		f.add("threat_id = ?", *filters.ThreatID)
	}
	if filters.Status != "" {
		f.add("status = ?", filters.Status)
	}
	if filters.ActionType != "" {
		f.add("action_type = ?", filters.ActionType)
	}

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM threat_actions `+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count threat actions: %w", err)
	}

	page := filters.Page.Normalize()
	limit, args := f.page(page.PerPage, page.Offset())
	actions, err := r.query(ctx, `
		SELECT `+threatActionColumns+`
		FROM threat_actions `+f.where()+`
		ORDER BY created_at DESC, id
		`+limit, args...)
	if err != nil {
		return nil, 0, err
	}
	return actions, total, nil
}

func (r *threatActionRepository) ListByThreat(ctx context.Context, threatID uuid.UUID) ([]*models.ThreatAction, error) {
	return r.query(ctx, `
		SELECT `+threatActionColumns+`
		FROM threat_actions
		WHERE threat_id = $1
		ORDER BY created_at, id`, threatID)
}

func (r *threatActionRepository) query(ctx context.Context, sql string, args ...any) ([]*models.ThreatAction, error) {
	conn, err := connFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list threat actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.ThreatAction
	for rows.Next() {
		action, err := scanThreatAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan threat action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threat actions: %w", err)
	}
	return actions, nil
}

func (r *threatActionRepository) Update(ctx context.Context, action *models.ThreatAction) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	err = conn.QueryRow(ctx, `
		UPDATE threat_actions
		SET status = $2, action_details = $3, executed_at = $4, result = $5,
		    metadata = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		action.ID, action.Status, action.ActionDetails, action.ExecutedAt, action.Result, action.Metadata,
	).Scan(&action.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to update threat action: %w", err)
	}
	return nil
}

func (r *threatActionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := conn.Exec(ctx, `DELETE FROM threat_actions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete threat action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanThreatAction(row pgx.Row) (*models.ThreatAction, error) {
	var a models.ThreatAction
	err := row.Scan(
		&a.ID, &a.ThreatID, &a.ActionType, &a.ActionDetails, &a.Status, &a.ExecutedAt,
		&a.Result, &a.Metadata, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
