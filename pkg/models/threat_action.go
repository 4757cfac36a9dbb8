package models

import (
	"time"

	"github.com/google/uuid"
)

// Threat action types.
const (
	ActionTypeFirewallRule  = "firewall_rule"
	ActionTypeIsolation     = "isolation"
	ActionTypePatch         = "patch"
	ActionTypeBlockIP       = "block_ip"
	ActionTypeQuarantine    = "quarantine"
	ActionTypeAlert         = "alert"
	ActionTypeInvestigation = "investigation"
	ActionTypeMitigation    = "mitigation"
)

// Threat action status values: pending → executing → completed | failed.
const (
	ActionStatusPending   = "pending"
	ActionStatusExecuting = "executing"
	ActionStatusCompleted = "completed"
	ActionStatusFailed    = "failed"
)

// ThreatAction is a remediation step attached to a threat.
type ThreatAction struct {
	ID            uuid.UUID  `json:"id"`
	ThreatID      uuid.UUID  `json:"threat_id"`
	ActionType    string     `json:"action_type"`
	ActionDetails JSONMap    `json:"action_details"`
	Status        string     `json:"status"`
	ExecutedAt    *time.Time `json:"executed_at"`
	Result        JSONMap    `json:"result"`
	Metadata      JSONMap    `json:"metadata"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Threat *Threat `json:"threat,omitempty"`
}

// ValidActionType reports whether t is a known action type.
func ValidActionType(t string) bool {
	switch t {
	case ActionTypeFirewallRule, ActionTypeIsolation, ActionTypePatch, ActionTypeBlockIP,
		ActionTypeQuarantine, ActionTypeAlert, ActionTypeInvestigation, ActionTypeMitigation:
		return true
	}
	return false
}

// ValidActionStatus reports whether s is a known action status.
func ValidActionStatus(s string) bool {
	switch s {
	case ActionStatusPending, ActionStatusExecuting, ActionStatusCompleted, ActionStatusFailed:
		return true
	}
	return false
}

// IsTerminalActionStatus reports whether s ends an action's execution.
func IsTerminalActionStatus(s string) bool {
	return s == ActionStatusCompleted || s == ActionStatusFailed
}

// ThreatActionFilters narrows action listings.
type ThreatActionFilters struct {
	Page
	ThreatID   *uuid.UUID
	Status     string
	ActionType string
}

// ThreatActionUpdate is a partial update; nil fields are left untouched.
type ThreatActionUpdate struct {
	Status        *string
	ActionDetails JSONMap
	Result        JSONMap
	Metadata      JSONMap
}
