package services

import (
	"unicode/utf8"

	"github.com/ekaya-inc/ekaya-concierge/pkg/models"
)

const (
	baseConfidence      = 0.8
	failedToolPenalty   = 0.2
	emergencyPenalty    = 0.3
	negativePenalty     = 0.1
	unsafePenalty       = 0.2
	shortReplyPenalty   = 0.1
	successfulToolBonus = 0.05
	shortReplyThreshold = 50
)

// ScoreConfidence rates a reply in [0,1]. Every term is applied and the sum is
// clamped, so the order of tool calls does not matter.
func ScoreConfidence(finalText string, toolCalls []models.ToolCall, analysis *models.RequestAnalysis, safety *models.SafetyCheckResult) float64 {
	succeeded, failed := models.CountToolOutcomes(toolCalls)

	score := baseConfidence
	score -= float64(failed) * failedToolPenalty
	if analysis != nil && analysis.EmergencyDetected {
		score -= emergencyPenalty
	}
	if analysis != nil && analysis.Sentiment == models.SentimentNegative {
		score -= negativePenalty
	}
	if safety != nil && !safety.Passed {
		score -= unsafePenalty
	}
	if utf8.RuneCountInString(finalText) < shortReplyThreshold {
		score -= shortReplyPenalty
	}
	score += float64(succeeded) * successfulToolBonus

	return clamp01(score)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
