package models

import (
	"time"

	"github.com/google/uuid"
)

// Knowledge entry types derived from document extraction.
const (
	KnowledgeTypeAttackTechnique = "attack_technique"
	KnowledgeTypeExploitPattern  = "exploit_pattern"
	KnowledgeTypeDefenseStrategy = "defense_strategy"
)

// KnowledgeEntry is one fact learned from a document.
type KnowledgeEntry struct {
	ID              uuid.UUID   `json:"id"`
	DocumentID      uuid.UUID   `json:"document_id"`
	Type            string      `json:"type"`
	Title           string      `json:"title"`
	Content         string      `json:"content"`
	Category        *string     `json:"category"`
	Keywords        JSONStrings `json:"keywords"`
	ConfidenceScore float64     `json:"confidence_score"`
	Metadata        JSONMap     `json:"metadata"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
