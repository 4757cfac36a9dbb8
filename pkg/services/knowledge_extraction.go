package services

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/sentinelai/sentinel-engine/pkg/jsonutil"
	"github.com/sentinelai/sentinel-engine/pkg/models"
)

// extractionSections maps extracted_data keys to the knowledge type they produce.
var extractionSections = []struct {
	key       string
	entryType string
}{
	{"attack_techniques", models.KnowledgeTypeAttackTechnique},
	{"exploit_patterns", models.KnowledgeTypeExploitPattern},
	{"defense_strategies", models.KnowledgeTypeDefenseStrategy},
}

// Item fields tried in order for an entry's title and content.
var (
	itemTitleKeys   = []string{"technique", "strategy", "identifier", "name", "title"}
	itemContentKeys = []string{"context", "description", "content", "summary"}
)

// DeriveKnowledgeEntries turns the sections of an extraction result into
// knowledge entries for documentID. Items may be objects or bare strings;
// items without a title are skipped and exact duplicates collapse.
func DeriveKnowledgeEntries(documentID uuid.UUID, extracted models.JSONMap) []*models.KnowledgeEntry {
	if len(extracted) == 0 {
		return nil
	}

	raw, err := json.Marshal(extracted)
	if err != nil {
		return nil
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil
	}

	docKeywords := jsonutil.FlexibleStringSlice(sections["keywords"])

	var entries []*models.KnowledgeEntry
	seen := make(map[string]bool)
	for _, section := range extractionSections {
		var items []json.RawMessage
		if err := json.Unmarshal(sections[section.key], &items); err != nil {
			continue
		}
		for _, item := range items {
			entry := knowledgeEntryFromItem(documentID, section.entryType, section.key, item, docKeywords)
			if entry == nil {
				continue
			}
			key := entry.Type + "\x00" + entry.Title + "\x00" + entry.Content
			if seen[key] {
				continue
			}
			seen[key] = true
			entries = append(entries, entry)
		}
	}
	return entries
}

func knowledgeEntryFromItem(documentID uuid.UUID, entryType, section string, item json.RawMessage, docKeywords []string) *models.KnowledgeEntry {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		// Bare value: the value is both title and content.
		text := strings.TrimSpace(jsonutil.FlexibleStringValue(item))
		if text == "" {
			return nil
		}
		return &models.KnowledgeEntry{
			DocumentID: documentID,
			Type:       entryType,
			Title:      truncateColumn(text),
			Content:    text,
			Keywords:   models.JSONStrings(docKeywords),
			Metadata:   models.JSONMap{"section": section},
		}
	}

	title := firstString(fields, itemTitleKeys)
	if title == "" {
		return nil
	}
	content := firstString(fields, itemContentKeys)
	if content == "" {
		content = title
	}

	entry := &models.KnowledgeEntry{
		DocumentID: documentID,
		Type:       entryType,
		Title:      truncateColumn(title),
		Content:    content,
		Keywords:   models.JSONStrings(docKeywords),
		Metadata:   models.JSONMap{"section": section},
	}
	if kw := jsonutil.FlexibleStringSlice(fields["keywords"]); len(kw) > 0 {
		entry.Keywords = models.JSONStrings(kw)
	}
	if confidence, ok := jsonutil.FlexibleFloatValue(fields["confidence"]); ok {
		entry.ConfidenceScore = confidence
	}
	category := firstString(fields, []string{"category", "type"})
	if category != "" {
		category = truncateColumn(category)
		entry.Category = &category
	}
	return entry
}

func firstString(fields map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(jsonutil.FlexibleStringValue(fields[k])); v != "" {
			return v
		}
	}
	return ""
}

// truncateColumn cuts s to the rune length of a VARCHAR(255) column.
func truncateColumn(s string) string {
	r := []rune(s)
	if len(r) <= maxStringLength {
		return s
	}
	return string(r[:maxStringLength])
}
