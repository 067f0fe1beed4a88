// Package guardrail implements the safety-rule pipeline that gates
// transfer and pricing decisions. Each guardrail is a pure check over a
// context of plain values; a chain aggregates them with short-circuit
// semantics on BLOCK.
package guardrail

// Guardrail result statuses.
const (
	StatusPass  = "PASS"
	StatusWarn  = "WARN"
	StatusBlock = "BLOCK"
)

// Severities, ordered by weight.
const (
	SeverityInfo  = "INFO"
	SeverityWarn  = "WARN"
	SeverityBlock = "BLOCK"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusPass, StatusWarn, StatusBlock:
		return true
	default:
		return false
	}
}

func ValidSeverity(severity string) bool {
	switch severity {
	case SeverityInfo, SeverityWarn, SeverityBlock:
		return true
	default:
		return false
	}
}

// SeverityWeight totally orders severities for sorting and scoring.
func SeverityWeight(severity string) int {
	switch severity {
	case SeverityBlock:
		return 100
	case SeverityWarn:
		return 50
	case SeverityInfo:
		return 10
	default:
		return 0
	}
}

// SeverityFromStatus derives the default severity for a status.
func SeverityFromStatus(status string) string {
	switch status {
	case StatusBlock:
		return SeverityBlock
	case StatusWarn:
		return SeverityWarn
	default:
		return SeverityInfo
	}
}
