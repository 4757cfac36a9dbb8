package services

// Tier is the remediation bucket a threat's severity falls into.
type Tier string

const (
	TierCritical Tier = "critical"
	TierHigh     Tier = "high"
	TierDefault  Tier = "default"
)

// Severity thresholds for the remediation tiers.
const (
	CriticalSeverityThreshold = 8
	HighSeverityThreshold     = 5
)

// ClassifySeverity maps a severity to its tier. Out-of-range values are
// compared against the same thresholds.
func ClassifySeverity(severity int) Tier {
	switch {
	case severity >= CriticalSeverityThreshold:
		return TierCritical
	case severity >= HighSeverityThreshold:
		return TierHigh
	default:
		return TierDefault
	}
}
