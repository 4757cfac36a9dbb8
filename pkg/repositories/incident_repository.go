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

// IncidentRepository provides data access for incidents and their responses.
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	List(ctx context.Context, filters models.IncidentFilters) ([]*models.Incident, int, error)
	ListByThreat(ctx context.Context, threatID uuid.UUID) ([]*models.Incident, error)
	Update(ctx context.Context, incident *models.Incident) error
	Delete(ctx context.Context, id uuid.UUID) error

	CreateResponse(ctx context.Context, response *models.IncidentResponse) error
	ListResponses(ctx context.Context, incidentID uuid.UUID) ([]*models.IncidentResponse, error)
}

type incidentRepository struct{}

// NewIncidentRepository creates an IncidentRepository.
func NewIncidentRepository() IncidentRepository {
	return &incidentRepository{}
}

var _ IncidentRepository = (*incidentRepository)(nil)

const incidentColumns = `id, threat_id, title, description, status, priority, severity,
	reported_at, resolved_at, assigned_to, metadata, created_at, updated_at`

func (r *incidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	if incident.ID == uuid.Nil {
		incident.ID = uuid.New()
	}

	err = conn.QueryRow(ctx, `
		INSERT INTO incidents (id, threat_id, title, description, status, priority, severity,
		                       reported_at, assigned_to, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		incident.ID, incident.ThreatID, incident.Title, incident.Description, incident.Status,
		incident.Priority, incident.Severity, incident.ReportedAt, incident.AssignedTo, incident.Metadata,
	).Scan(&incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", mapForeignKeyError(err))
	}
	return nil
}

func (r *incidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	conn, err := connFromContext(ctx)
	if err != nil {
		return nil, err
	}

	incident, err := scanIncident(conn.QueryRow(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return incident, nil
}

func (r *incidentRepository) List(ctx context.Context, filters models.IncidentFilters) ([]*models.Incident, int, error) {
	conn, err := connFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	var f filterBuilder
	if filters.Status != "" {
		f.add("status = ?", filters.Status)
	}
	if filters.Search != "" {
		f.add("(title ILIKE ? OR description ILIKE ?)", likePattern(filters.Search))
	}

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM incidents `+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	page := filters.Page.Normalize()
	limit, args := f.page(page.PerPage, page.Offset())
	incidents, err := r.query(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents `+f.where()+`
		ORDER BY reported_at DESC, id
		`+limit, args...)
	if err != nil {
		return nil, 0, err
	}
	return incidents, total, nil
}

func (r *incidentRepository) ListByThreat(ctx context.Context, threatID uuid.UUID) ([]*models.Incident, error) {
	return r.query(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE threat_id = $1
		ORDER BY reported_at DESC, id`, threatID)
}

func (r *incidentRepository) query(ctx context.Context, sql string, args ...any) ([]*models.Incident, error) {
	conn, err := connFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*models.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incidents: %w", err)
	}
	return incidents, nil
}

func (r *incidentRepository) Update(ctx context.Context, incident *models.Incident) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	err = conn.QueryRow(ctx, `
		UPDATE incidents
		SET title = $2, description = $3, status = $4, priority = $5, severity = $6,
		    resolved_at = $7, assigned_to = $8, metadata = $9, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		incident.ID, incident.Title, incident.Description, incident.Status, incident.Priority,
		incident.Severity, incident.ResolvedAt, incident.AssignedTo, incident.Metadata,
	).Scan(&incident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to update incident: %w", err)
	}
	return nil
}

func (r *incidentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := conn.Exec(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *incidentRepository) CreateResponse(ctx context.Context, response *models.IncidentResponse) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	if response.ID == uuid.Nil {
		response.ID = uuid.New()
	}

	err = conn.QueryRow(ctx, `
		INSERT INTO incident_responses (id, incident_id, response_type, description, action_taken,
		                                status, created_by, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		response.ID, response.IncidentID, response.ResponseType, response.Description,
		response.ActionTaken, response.Status, response.CreatedBy, response.Metadata,
	).Scan(&response.CreatedAt, &response.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create incident response: %w", mapForeignKeyError(err))
	}
	return nil
}

func (r *incidentRepository) ListResponses(ctx context.Context, incidentID uuid.UUID) ([]*models.IncidentResponse, error) {
	conn, err := connFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, `
		SELECT id, incident_id, response_type, description, action_taken, status,
		       created_by, metadata, created_at, updated_at
		FROM incident_responses
		WHERE incident_id = $1
		ORDER BY created_at, id`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list incident responses: %w", err)
	}
	defer rows.Close()

	var responses []*models.IncidentResponse
	for rows.Next() {
		var resp models.IncidentResponse
		if err := rows.Scan(
			&resp.ID, &resp.IncidentID, &resp.ResponseType, &resp.Description, &resp.ActionTaken,
			&resp.Status, &resp.CreatedBy, &resp.Metadata, &resp.CreatedAt, &resp.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan incident response: %w", err)
		}
		responses = append(responses, &resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incident responses: %w", err)
	}
	return responses, nil
}

func scanIncident(row pgx.Row) (*models.Incident, error) {
	var i models.Incident
	err := row.Scan(
		&i.ID, &i.ThreatID, &i.Title, &i.Description, &i.Status, &i.Priority, &i.Severity,
		&i.ReportedAt, &i.ResolvedAt, &i.AssignedTo, &i.Metadata, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}
