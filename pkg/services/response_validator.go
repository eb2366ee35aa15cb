package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-concierge/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
)

// DefaultValidationThreshold is the confidence below which a reply is not safe.
const DefaultValidationThreshold = 0.75

var (
	// validatorEscalationKeywords is broader than the configured emergency list.
	validatorEscalationKeywords = []string{
		"locked out", "gas", "fire", "water leak", "medical", "emergency", "refund", "discount",
		"angry", "lawsuit", "compensation", "police", "lawyer", "injured", "hospital",
	}

	secureInfoTypes = []string{
		"access instructions secure", "lockbox code", "door code", "alarm code", "wifi password", "gate code",
	}

	validatorNegativeWords = []string{"angry", "upset", "disappointed", "terrible", "awful", "horrible", "unacceptable"}
	validatorPositiveWords = []string{"thank", "great", "wonderful", "excellent", "amazing", "lovely", "perfect"}

	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4,6}\b`),
		regexp.MustCompile(`(?i)password:\s*\w+`),
		regexp.MustCompile(`(?i)code:\s*\d+`),
		regexp.MustCompile(`(?i)key:\s*\w+`),
	}
)

// ValidationResult is the verdict on a generated reply.
type ValidationResult struct {
	Safe      bool              `json:"safe"`
	RiskFlags []models.RiskFlag `json:"risk_flags"`
	Reason    string            `json:"reason,omitempty"`
	// LeakSuspected is set when the reply named a secure field or matched a
	// secret pattern.
	LeakSuspected bool `json:"leak_suspected,omitempty"`
}

// Err returns a response_validation_failure error when the reply is not safe.
func (r ValidationResult) Err() error {
	if r.Safe {
		return nil
	}
	return apperrors.New(apperrors.KindResponseValidation, "validator", r.Reason)
}

// ResponseValidator re-screens a generated reply before anyone sees it.
type ResponseValidator struct {
	threshold float64
}

// NewResponseValidator creates a validator. A non-positive threshold uses
// DefaultValidationThreshold.
func NewResponseValidator(threshold float64) *ResponseValidator {
	if threshold <= 0 {
		threshold = DefaultValidationThreshold
	}
	return &ResponseValidator{threshold: threshold}
}

// Validate derives risk flags from the request and the reply, then scans the
// reply for anything resembling a leaked secret.
func (v *ResponseValidator) Validate(requestText, responseText string, confidence float64) ValidationResult {
	request := strings.ToLower(requestText)
	response := strings.ToLower(responseText)

	flags := []models.RiskFlag{}
	escalate := false
	reason := ""

	if kws := matchedWords(request, validatorEscalationKeywords); len(kws) > 0 {
		flags = models.AppendRiskFlag(flags, models.RiskFlagEmergencyKeywords)
		escalate = true
		reason = "Emergency keywords detected: " + strings.Join(kws, ", ")
	}

	secure := matchedWords(response, secureInfoTypes)
	if len(secure) > 0 {
		flags = models.AppendRiskFlag(flags, models.RiskFlagSensitiveInfoRequested)
		escalate = true
		reason = "Attempting to share secure information: " + strings.Join(secure, ", ")
	}

	if sentimentOf(request, validatorNegativeWords, validatorPositiveWords) == models.SentimentNegative {
		flags = models.AppendRiskFlag(flags, models.RiskFlagNegativeSentiment)
	}

	if confidence < v.threshold {
		flags = models.AppendRiskFlag(flags, models.RiskFlagLowConfidence)
		escalate = true
		reason = fmt.Sprintf("Low confidence score: %.2f", confidence)
	}

	if strings.Contains(request, "refund") || strings.Contains(request, "discount") {
		flags = models.AppendRiskFlag(flags, models.RiskFlagRefundRequest)
		escalate = true
		reason = "Refund or discount request detected"
	}

	result := ValidationResult{Safe: !escalate, RiskFlags: flags, Reason: reason, LeakSuspected: len(secure) > 0}

	if containsSecret(responseText) {
		result.Safe = false
		result.LeakSuspected = true
		result.RiskFlags = models.AppendRiskFlag(result.RiskFlags, models.RiskFlagSensitiveInfoRequested)
		if result.Reason == "" {
			result.Reason = "Response contains potentially sensitive information"
		}
	}
	return result
}

func containsSecret(text string) bool {
	for _, p := range secretPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
