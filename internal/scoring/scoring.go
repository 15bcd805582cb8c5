package scoring

import "wpauditd/internal/models"

// Per-severity score deductions
const (
	deductionCritical = 15
	deductionWarning  = 5
	deductionInfo     = 1
)

// HealthStatus is the display band for a score
type HealthStatus string

// Health bands
const (
	StatusHealthy   HealthStatus = "healthy"
	StatusAttention HealthStatus = "attention"
	StatusCritical  HealthStatus = "critical"
)

// Score reduces a set of findings to a 0-100 health score. Deterministic
// and order-independent: 100 minus a fixed deduction per issue severity,
// floored at 0.
func Score(issues []models.Issue) int {
	score := 100
	for _, issue := range issues {
		switch issue.Severity {
		case models.SeverityCritical:
			score -= deductionCritical
		case models.SeverityWarning:
			score -= deductionWarning
		case models.SeverityInfo:
			score -= deductionInfo
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

// StatusFor maps a score onto its display band. Banding is presentation
// only; it never feeds back into scoring.
func StatusFor(score int) HealthStatus {
	switch {
	case score >= 90:
		return StatusHealthy
	case score >= 70:
		return StatusAttention
	default:
		return StatusCritical
	}
}
