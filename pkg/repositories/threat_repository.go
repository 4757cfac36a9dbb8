package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/models"
)

// ThreatRepository provides data access for threats.
type ThreatRepository interface {
	Create(ctx context.Context, threat *models.Threat) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Threat, error)
	List(ctx context.Context, filters models.ThreatFilters) ([]*models.Threat, int, error)
	Update(ctx context.Context, threat *models.Threat) error
	Delete(ctx context.Context, id uuid.UUID) error
	Statistics(ctx context.Context, now time.Time) (*models.ThreatStatistics, error)
}

type threatRepository struct{}

// NewThreatRepository creates a ThreatRepository.
func NewThreatRepository() ThreatRepository {
	return &threatRepository{}
}

var _ ThreatRepository = (*threatRepository)(nil)

const threatColumns = `id, type, severity, status, source_ip, target_ip, description,
	classification, metadata, user_id, detected_at, resolved_at, created_at, updated_at`

func (r *threatRepository) Create(ctx context.Context, threat *models.Threat) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	if threat.ID == uuid.Nil {
		threat.ID = uuid.New()
	}

	err = conn.QueryRow(ctx, `
		INSERT INTO threats (id, type, severity, status, source_ip, target_ip, description,
		                     classification, metadata, user_id, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		threat.ID, threat.Type, threat.Severity, threat.Status, threat.SourceIP, threat.TargetIP,
		threat.Description, threat.Classification, threat.Metadata, threat.UserID, threat.DetectedAt,
	).Scan(&threat.CreatedAt, &threat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create threat: %w", err)
	}
	return nil
}

func (r *threatRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Threat, error) {
	conn, err := connFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := conn.QueryRow(ctx, `SELECT `+threatColumns+` FROM threats WHERE id = $1`, id)
	threat, err := scanThreat(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get threat: %w", err)
	}
	return threat, nil
}

func (r *threatRepository) List(ctx context.Context, filters models.ThreatFilters) ([]*models.Threat, int, error) {
	conn, err := connFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	var f filterBuilder
	if filters.Status != "" {
		f.add("status = ?", filters.Status)
	}
	if filters.Severity != nil {
		f.add("severity = ?", *filters.Severity)
	}
	if filters.Type != "" {
		f.add("type = ?", filters.Type)
	}
	if filters.Search != "" {
		f.add("(description ILIKE ? OR source_ip ILIKE ? OR classification ILIKE ?)", likePattern(filters.Search))
	}

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM threats `+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count threats: %w", err)
	}

	page := filters.Page.Normalize()
	limit, args := f.page(page.PerPage, page.Offset())
	rows, err := conn.Query(ctx, `
		SELECT `+threatColumns+`
		FROM threats `+f.where()+`
		ORDER BY detected_at DESC, id
		`+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list threats: %w", err)
	}
	defer rows.Close()

	var threats []*models.Threat
	for rows.Next() {
		threat, err := scanThreat(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan threat: %w", err)
		}
		threats = append(threats, threat)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating threats: %w", err)
	}

	return threats, total, nil
}

func (r *threatRepository) Update(ctx context.Context, threat *models.Threat) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	err = conn.QueryRow(ctx, `
		UPDATE threats
		SET status = $2, severity = $3, description = $4, metadata = $5,
		    resolved_at = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		threat.ID, threat.Status, threat.Severity, threat.Description, threat.Metadata, threat.ResolvedAt,
	).Scan(&threat.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to update threat: %w", err)
	}
	return nil
}

func (r *threatRepository) Delete(ctx context.Context, id uuid.UUID) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := conn.Exec(ctx, `DELETE FROM threats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete threat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *threatRepository) Statistics(ctx context.Context, now time.Time) (*models.ThreatStatistics, error) {
	conn, err := connFromContext(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.ThreatStatistics{
		ByStatus:   make(map[string]int),
		ByType:     make(map[string]int),
		BySeverity: make(map[int]int),
	}

	err = conn.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE detected_at >= $1)
		FROM threats`, now.Add(-24*time.Hour),
	).Scan(&stats.Total, &stats.Recent24h)
	if err != nil {
		return nil, fmt.Errorf("failed to count threats: %w", err)
	}

	if err := groupCounts(ctx, conn, `SELECT status, COUNT(*) FROM threats GROUP BY status`, stats.ByStatus); err != nil {
		return nil, err
	}
	if err := groupCounts(ctx, conn, `SELECT type, COUNT(*) FROM threats GROUP BY type`, stats.ByType); err != nil {
		return nil, err
	}
	if err := groupCounts(ctx, conn, `SELECT severity, COUNT(*) FROM threats GROUP BY severity`, stats.BySeverity); err != nil {
		return nil, err
	}

	// Last 7 calendar days including today, zero-filled.
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -6)
	byDay := make(map[string]int)
	if err := groupCounts(ctx, conn, `
		SELECT to_char(detected_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'), COUNT(*)
		FROM threats
		WHERE detected_at >= $1
		GROUP BY 1`, byDay, start.UTC()); err != nil {
		return nil, err
	}
	for d := 0; d < 7; d++ {
		day := start.AddDate(0, 0, d).UTC().Format("2006-01-02")
		stats.ByDate = append(stats.ByDate, models.DateCount{Date: day, Count: byDay[day]})
	}

	return stats, nil
}

func groupCounts[K comparable](ctx context.Context, conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, query string, into map[K]int, args ...any) error {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to group threats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key K
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan threat group: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}

func scanThreat(row pgx.Row) (*models.Threat, error) {
	var t models.Threat
	err := row.Scan(
		&t.ID, &t.Type, &t.Severity, &t.Status, &t.SourceIP, &t.TargetIP, &t.Description,
		&t.Classification, &t.Metadata, &t.UserID, &t.DetectedAt, &t.ResolvedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
