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

// DocumentRepository provides data access for uploaded and imported documents.
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context, filters models.DocumentFilters) ([]*models.Document, int, error)
	Update(ctx context.Context, doc *models.Document) error
	// UpdateStatus changes only the status column.
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type documentRepository struct{}

// NewDocumentRepository creates a DocumentRepository.
func NewDocumentRepository() DocumentRepository {
	return &documentRepository{}
}

var _ DocumentRepository = (*documentRepository)(nil)

const documentColumns = `id, title, filename, file_path, file_type, file_size, status,
	processed_at, extracted_data, metadata, uploaded_by, created_at, updated_at`

func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}

	err = conn.QueryRow(ctx, `
		INSERT INTO documents (id, title, filename, file_path, file_type, file_size, status,
		                       processed_at, extracted_data, metadata, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		doc.ID, doc.Title, doc.Filename, doc.FilePath, doc.FileType, doc.FileSize, doc.Status,
		doc.ProcessedAt, doc.ExtractedData, doc.Metadata, doc.UploadedBy,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *documentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	conn, err := connFromContext(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := scanDocument(conn.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (r *documentRepository) List(ctx context.Context, filters models.DocumentFilters) ([]*models.Document, int, error) {
	conn, err := connFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	var f filterBuilder
	if filters.Status != "" {
		f.add("status = ?", filters.Status)
	}
	if filters.FileType != "" {
		f.add("file_type = ?", filters.FileType)
	}
	if filters.Search != "" {
		f.add("(title ILIKE ? OR filename ILIKE ?)", likePattern(filters.Search))
	}

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM documents `+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	page := filters.Page.Normalize()
	limit, args := f.page(page.PerPage, page.Offset())
	rows, err := conn.Query(ctx, `
		SELECT `+documentColumns+`
		FROM documents `+f.where()+`
		ORDER BY created_at DESC, id
		`+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, total, nil
}

func (r *documentRepository) Update(ctx context.Context, doc *models.Document) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	err = conn.QueryRow(ctx, `
		UPDATE documents
		SET title = $2, status = $3, processed_at = $4, extracted_data = $5,
		    metadata = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		doc.ID, doc.Title, doc.Status, doc.ProcessedAt, doc.ExtractedData, doc.Metadata,
	).Scan(&doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func (r *documentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := conn.Exec(ctx,
		`UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *documentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := conn.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.Title, &d.Filename, &d.FilePath, &d.FileType, &d.FileSize, &d.Status,
		&d.ProcessedAt, &d.ExtractedData, &d.Metadata, &d.UploadedBy, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
