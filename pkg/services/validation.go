package services

import (
	"fmt"
	"net"
	"strings"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/models"
)

// maxStringLength matches the VARCHAR(255) columns.
const maxStringLength = 255

func requireText(v *apperrors.ValidationError, field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, fmt.Sprintf("The %s field is required.", field))
	}
}

func checkMaxLength(v *apperrors.ValidationError, field, value string, max int) {
	if len(value) > max {
		v.Add(field, fmt.Sprintf("The %s may not be greater than %d characters.", field, max))
	}
}

func checkSeverity(v *apperrors.ValidationError, severity *int, required bool) {
	if severity == nil {
		if required {
			v.Add("severity", "The severity field is required.")
		}
		return
	}
	if !models.ValidSeverity(*severity) {
		v.Add("severity", fmt.Sprintf("The severity must be an integer between %d and %d.", models.MinSeverity, models.MaxSeverity))
	}
}

// checkIP accepts an absent or blank value; anything else must be an IPv4 or IPv6 literal.
func checkIP(v *apperrors.ValidationError, field string, value *string) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return
	}
	if net.ParseIP(strings.TrimSpace(*value)) == nil {
		v.Add(field, fmt.Sprintf("The %s must be a valid IP address.", field))
	}
}

// normalizeOptional trims s and maps blank to nil.
func normalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
