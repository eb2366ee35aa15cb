package models

// RiskFlag is a named risk attached to a response or approval.
// The set is closed; unknown values are dropped when parsed.
type RiskFlag string

const (
	RiskFlagPolicyViolation        RiskFlag = "policy_violation"
	RiskFlagIdentityUnverified     RiskFlag = "identity_unverified"
	RiskFlagSensitiveInfoRequested RiskFlag = "sensitive_info_requested"
	RiskFlagNegativeSentiment      RiskFlag = "negative_sentiment"
	RiskFlagEmergencyKeywords      RiskFlag = "emergency_keywords"
	RiskFlagRefundRequest          RiskFlag = "refund_request"
	RiskFlagLowConfidence          RiskFlag = "low_confidence"
)

var validRiskFlags = map[RiskFlag]bool{
	RiskFlagPolicyViolation:        true,
	RiskFlagIdentityUnverified:     true,
	RiskFlagSensitiveInfoRequested: true,
	RiskFlagNegativeSentiment:      true,
	RiskFlagEmergencyKeywords:      true,
	RiskFlagRefundRequest:          true,
	RiskFlagLowConfidence:          true,
}

// IsValid reports whether f belongs to the closed set of risk flags.
func (f RiskFlag) IsValid() bool {
	return validRiskFlags[f]
}

// IsHighRisk reports whether f always forces human review.
func (f RiskFlag) IsHighRisk() bool {
	switch f {
	case RiskFlagEmergencyKeywords, RiskFlagPolicyViolation, RiskFlagSensitiveInfoRequested:
		return true
	default:
		return false
	}
}

// ParseRiskFlags converts raw strings into risk flags, dropping unknown values
// and duplicates while preserving order.
func ParseRiskFlags(raw []string) []RiskFlag {
	flags := make([]RiskFlag, 0, len(raw))
	for _, s := range raw {
		flags = AppendRiskFlag(flags, RiskFlag(s))
	}
	return flags
}

// FilterRiskFlags drops unknown and duplicate flags, preserving order.
func FilterRiskFlags(flags []RiskFlag) []RiskFlag {
	out := make([]RiskFlag, 0, len(flags))
	for _, f := range flags {
		out = AppendRiskFlag(out, f)
	}
	return out
}

// AppendRiskFlag appends f unless it is invalid or already present.
func AppendRiskFlag(flags []RiskFlag, f RiskFlag) []RiskFlag {
	if !f.IsValid() || HasRiskFlag(flags, f) {
		return flags
	}
	return append(flags, f)
}

// HasRiskFlag reports whether f is in flags.
func HasRiskFlag(flags []RiskFlag, f RiskFlag) bool {
	for _, existing := range flags {
		if existing == f {
			return true
		}
	}
	return false
}

// RiskFlagStrings converts flags to plain strings for storage.
func RiskFlagStrings(flags []RiskFlag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}

// RiskLevel is the coarse outcome of pre-flight screening.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

func (l RiskLevel) rank() int {
	switch l {
	case RiskLevelHigh:
		return 2
	case RiskLevelMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast returns the higher of l and min.
func (l RiskLevel) AtLeast(min RiskLevel) RiskLevel {
	if l.rank() >= min.rank() {
		return l
	}
	return min
}
