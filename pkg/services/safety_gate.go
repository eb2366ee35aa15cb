package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/audit"
	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
	"github.com/ekaya-inc/ekaya-concierge/pkg/policy"
)

// Safety violation texts recorded on SafetyCheckResult.
const (
	ViolationEmergency = "Emergency keywords detected"
	ViolationFinancial = "Financial request detected"
	violationRedLine   = "Policy violation: %s"
)

var (
	financialKeywords = []string{"refund", "discount", "compensation", "money back"}

	analysisEmergencyKeywords = []string{"emergency", "fire", "gas", "medical", "locked out", "urgent"}
	analysisNegativeWords     = []string{"angry", "frustrated", "terrible", "awful", "complaint"}
	analysisPositiveWords     = []string{"thank", "great", "wonderful", "lovely", "perfect"}

	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)
	datePattern  = regexp.MustCompile(`\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}|\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2}`)
)

// SafetyGate screens inbound messages before any completion is requested.
type SafetyGate struct {
	policy  policy.Source
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// NewSafetyGate creates a gate that reads keywords and red lines from source.
// Red-line matches are reported to auditor, which may be nil.
func NewSafetyGate(source policy.Source, auditor *audit.SecurityAuditor, logger *zap.Logger) *SafetyGate {
	return &SafetyGate{
		policy:  source,
		auditor: auditor,
		logger:  logger.Named("safety"),
	}
}

// Screen checks message against the configured emergency keywords, the red
// lines and the financial keywords. The result depends only on the message
// and the loaded policy.
func (g *SafetyGate) Screen(ctx context.Context, message string) (*models.SafetyCheckResult, error) {
	cfg, err := g.policy.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	violations := []string{}
	level := models.RiskLevelLow

	if cfg.IsEscalationKeyword(message) {
		violations = append(violations, ViolationEmergency)
		level = models.RiskLevelHigh
	}

	redLines := cfg.MatchedRedLines(message)
	for _, line := range redLines {
		violations = append(violations, fmt.Sprintf(violationRedLine, line))
		level = level.AtLeast(models.RiskLevelMedium)
	}
	g.auditor.LogRedLines(ctx, redLines)

	if containsAny(strings.ToLower(message), financialKeywords) {
		violations = append(violations, ViolationFinancial)
		level = level.AtLeast(models.RiskLevelMedium)
	}

	result := &models.SafetyCheckResult{
		Passed:     len(violations) == 0,
		Violations: violations,
		RiskLevel:  level,
		Confidence: 0.9,
	}
	if !result.Passed {
		result.Confidence = 0.3
		g.logger.Info("Message failed safety screen",
			zap.String("risk_level", string(level)),
			zap.Strings("violations", violations))
	}
	return result, nil
}

// Analyze derives intent, entities, emergency and sentiment from keywords.
func (g *SafetyGate) Analyze(message string) *models.RequestAnalysis {
	return AnalyzeRequest(message)
}

// AnalyzeRequest is the keyword heuristic behind SafetyGate.Analyze.
func AnalyzeRequest(message string) *models.RequestAnalysis {
	lower := strings.ToLower(message)

	intent := models.IntentGeneralInquiry
	switch {
	case strings.Contains(lower, "wifi") || strings.Contains(lower, "password"):
		intent = models.IntentWifiRequest
	case strings.Contains(lower, "check") && (strings.Contains(lower, "in") || strings.Contains(lower, "out")):
		intent = models.IntentCheckinCheckoutInfo
	case containsAny(lower, []string{"direction", "address", "location"}):
		intent = models.IntentDirectionsRequest
	case containsAny(lower, []string{"access", "code", "key"}):
		intent = models.IntentAccessRequest
	}

	return &models.RequestAnalysis{
		Intent: intent,
		Entities: models.RequestEntities{
			Email: emailPattern.FindString(message),
			Date:  datePattern.FindString(message),
		},
		RequiresIdentityVerification: intent == models.IntentAccessRequest ||
			containsAny(lower, []string{"secure", "lockbox", "door code"}),
		EmergencyDetected: containsAny(lower, analysisEmergencyKeywords),
		Sentiment:         sentimentOf(lower, analysisNegativeWords, analysisPositiveWords),
	}
}

// sentimentOf compares how many words of each list appear in lower. Ties are neutral.
func sentimentOf(lower string, negative, positive []string) models.Sentiment {
	neg := countContained(lower, negative)
	pos := countContained(lower, positive)
	switch {
	case neg > pos:
		return models.SentimentNegative
	case pos > neg:
		return models.SentimentPositive
	default:
		return models.SentimentNeutral
	}
}

func containsAny(lower string, words []string) bool {
	return countContained(lower, words) > 0
}

func countContained(lower string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

func matchedWords(lower string, words []string) []string {
	var out []string
	for _, w := range words {
		if strings.Contains(lower, w) {
			out = append(out, w)
		}
	}
	return out
}
