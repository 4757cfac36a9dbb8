package models

import (
	"time"

	"github.com/google/uuid"
)

// Incident status values.
const (
	IncidentStatusOpen          = "open"
	IncidentStatusInvestigating = "investigating"
	IncidentStatusResolved      = "resolved"
	IncidentStatusClosed        = "closed"
)

// Incident priority bounds; DefaultIncidentPriority applies when none is given.
const (
	MinIncidentPriority     = 1
	MaxIncidentPriority     = 5
	DefaultIncidentPriority = 3
)

// Incident response types and statuses.
const (
	ResponseTypeAutomated      = "automated"
	ResponseTypeManual         = "manual"
	ResponseTypeRecommendation = "recommendation"

	ResponseStatusOpen       = "open"
	ResponseStatusInProgress = "in_progress"
	ResponseStatusCompleted  = "completed"
)

// Incident groups investigation work around a threat.
// Its severity is independent of the linked threat's severity.
type Incident struct {
	ID          uuid.UUID  `json:"id"`
	ThreatID    uuid.UUID  `json:"threat_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	Severity    int        `json:"severity"`
	ReportedAt  time.Time  `json:"reported_at"`
	ResolvedAt  *time.Time `json:"resolved_at"`
	AssignedTo  *string    `json:"assigned_to"`
	Metadata    JSONMap    `json:"metadata"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Threat    *Threat             `json:"threat,omitempty"`
	Responses []*IncidentResponse `json:"responses,omitempty"`
}

// IncidentResponse records a step taken (or recommended) for an incident.
type IncidentResponse struct {
	ID           uuid.UUID `json:"id"`
	IncidentID   uuid.UUID `json:"incident_id"`
	ResponseType string    `json:"response_type"`
	Description  string    `json:"description"`
	ActionTaken  JSONMap   `json:"action_taken"`
	Status       string    `json:"status"`
	CreatedBy    *string   `json:"created_by"`
	Metadata     JSONMap   `json:"metadata"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ValidIncidentStatus reports whether s is a known incident status.
func ValidIncidentStatus(s string) bool {
	switch s {
	case IncidentStatusOpen, IncidentStatusInvestigating, IncidentStatusResolved, IncidentStatusClosed:
		return true
	}
	return false
}

// ValidResponseType reports whether t is a known incident response type.
func ValidResponseType(t string) bool {
	switch t {
	case ResponseTypeAutomated, ResponseTypeManual, ResponseTypeRecommendation:
		return true
	}
	return false
}

// ValidResponseStatus reports whether s is a known incident response status.
func ValidResponseStatus(s string) bool {
	switch s {
	case ResponseStatusOpen, ResponseStatusInProgress, ResponseStatusCompleted:
		return true
	}
	return false
}

// IncidentFilters narrows incident listings.
type IncidentFilters struct {
	Page
	Status string
	Search string
}

// IncidentUpdate is a partial update; nil fields are left untouched.
type IncidentUpdate struct {
	Title       *string
	Description *string
	Severity    *int
	Status      *string
	Priority    *int
}
