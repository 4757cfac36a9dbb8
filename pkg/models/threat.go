package models

import (
	"time"

	"github.com/google/uuid"
)

// Threat status values.
// The lifecycle is detected → analyzing → mitigated → resolved; closed is terminal as well.
const (
	ThreatStatusDetected  = "detected"
	ThreatStatusAnalyzing = "analyzing"
	ThreatStatusMitigated = "mitigated"
	ThreatStatusResolved  = "resolved"
	ThreatStatusClosed    = "closed"
)

// Severity bounds for threats and incidents.
const (
	MinSeverity = 1
	MaxSeverity = 10
)

// Threat is a recorded security threat.
type Threat struct {
	ID             uuid.UUID  `json:"id"`
	Type           string     `json:"type"`
	Severity       int        `json:"severity"`
	Status         string     `json:"status"`
	SourceIP       *string    `json:"source_ip"`
	TargetIP       *string    `json:"target_ip"`
	Description    string     `json:"description"`
	Classification *string    `json:"classification"`
	Metadata       JSONMap    `json:"metadata"`
	UserID         *string    `json:"user_id"`
	DetectedAt     time.Time  `json:"detected_at"`
	ResolvedAt     *time.Time `json:"resolved_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Populated on detail reads only.
	Actions   []*ThreatAction `json:"actions,omitempty"`
	Incidents []*Incident     `json:"incidents,omitempty"`
}

// ValidThreatStatus reports whether s is a known threat status.
func ValidThreatStatus(s string) bool {
	switch s {
	case ThreatStatusDetected, ThreatStatusAnalyzing, ThreatStatusMitigated, ThreatStatusResolved, ThreatStatusClosed:
		return true
	}
	return false
}

// ValidSeverity reports whether s is within [MinSeverity, MaxSeverity].
func ValidSeverity(s int) bool {
	return s >= MinSeverity && s <= MaxSeverity
}

// ThreatFilters narrows threat listings.
type ThreatFilters struct {
	Page
	Status   string
	Severity *int
	Type     string
	Search   string
}

// ThreatUpdate is a partial update; nil fields are left untouched.
type ThreatUpdate struct {
	Status      *string
	Severity    *int
	Description *string
	Metadata    JSONMap // nil means unchanged
}

// ThreatStatistics summarises the threat table for dashboards.
type ThreatStatistics struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByType     map[string]int `json:"by_type"`
	BySeverity map[int]int    `json:"by_severity"`
	Recent24h  int            `json:"recent_24h"`
	ByDate     []DateCount    `json:"by_date"`
}

// DateCount is the number of threats detected on one calendar day.
type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
