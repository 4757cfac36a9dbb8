package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sentinelai/sentinel-engine/pkg/models"
)

// KnowledgeEntryRepository provides data access for knowledge learned from documents.
type KnowledgeEntryRepository interface {
	// CreateBatch inserts all entries in one round trip.
	CreateBatch(ctx context.Context, entries []*models.KnowledgeEntry) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.KnowledgeEntry, error)
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
}

type knowledgeEntryRepository struct{}

// NewKnowledgeEntryRepository creates a KnowledgeEntryRepository.
func NewKnowledgeEntryRepository() KnowledgeEntryRepository {
	return &knowledgeEntryRepository{}
}

var _ KnowledgeEntryRepository = (*knowledgeEntryRepository)(nil)

func (r *knowledgeEntryRepository) CreateBatch(ctx context.Context, entries []*models.KnowledgeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		batch.Queue(`
			INSERT INTO knowledge_entries (id, document_id, type, title, content, category,
			                               keywords, confidence_score, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at`,
			e.ID, e.DocumentID, e.Type, e.Title, e.Content, e.Category,
			e.Keywords, e.ConfidenceScore, e.Metadata,
		)
	}

	results := conn.SendBatch(ctx, batch)
	defer results.Close()

	for _, e := range entries {
		if err := results.QueryRow().Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
			return fmt.Errorf("failed to create knowledge entry: %w", mapForeignKeyError(err))
		}
	}
	return nil
}

func (r *knowledgeEntryRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.KnowledgeEntry, error) {
	conn, err := connFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, `
		SELECT id, document_id, type, title, content, category, keywords,
		       confidence_score, metadata, created_at, updated_at
		FROM knowledge_entries
		WHERE document_id = $1
		ORDER BY type, confidence_score DESC, id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.KnowledgeEntry
	for rows.Next() {
		var e models.KnowledgeEntry
		if err := rows.Scan(
			&e.ID, &e.DocumentID, &e.Type, &e.Title, &e.Content, &e.Category, &e.Keywords,
			&e.ConfidenceScore, &e.Metadata, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating knowledge entries: %w", err)
	}
	return entries, nil
}

func (r *knowledgeEntryRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	conn, err := connFromContext(ctx)
	if err != nil {
		return err
	}

	if _, err := conn.Exec(ctx, `DELETE FROM knowledge_entries WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete knowledge entries: %w", err)
	}
	return nil
}
