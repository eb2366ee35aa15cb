// Package policy loads the operator-editable concierge policy: thresholds,
// approval settings, escalation keywords, red lines, FAQs and prompt text.
package policy

import (
	"sort"
	"strings"
)

// Config is one immutable snapshot of the policy files.
type Config struct {
	Policies Policies
	FAQs     FAQs
	Prompts  Prompts
}

// Policies mirrors policies.yaml.
type Policies struct {
	IdentityVerification IdentityVerification `yaml:"identity_verification"`
	RedLines             []string             `yaml:"red_lines"`
	Escalation           Escalation           `yaml:"escalation"`
	Defaults             PropertyDefaults     `yaml:"defaults"`
	ConfidenceThresholds ConfidenceThresholds `yaml:"confidence_thresholds"`
	ApprovalSettings     ApprovalSettings     `yaml:"approval_settings"`
}

// IdentityVerification lists information types that need a verified guest.
type IdentityVerification struct {
	RequiredFor []string `yaml:"required_for"`
	Steps       []string `yaml:"steps"`
}

// Escalation configures pre-flight escalation.
type Escalation struct {
	Triggers          []string `yaml:"triggers"`
	EmergencyKeywords []string `yaml:"emergency_keywords"`
}

// PropertyDefaults are house defaults used when a property has no override.
type PropertyDefaults struct {
	CheckinTime      string `yaml:"checkin_time"`
	CheckoutTime     string `yaml:"checkout_time"`
	MaxGuestsDefault int    `yaml:"max_guests_default"`
	PetPolicy        string `yaml:"pet_policy"`
	SmokingPolicy    string `yaml:"smoking_policy"`
	PartyPolicy      string `yaml:"party_policy"`
}

// ConfidenceThresholds are all in [0,1].
type ConfidenceThresholds struct {
	AutoReply           float64 `yaml:"auto_reply"`
	ApprovalRequired    float64 `yaml:"approval_required"`
	EscalateImmediately float64 `yaml:"escalate_immediately"`
}

// ApprovalSettings control when replies need a human.
type ApprovalSettings struct {
	DraftModeDefault            bool `yaml:"draft_mode_default"`
	RequireApprovalFirstContact bool `yaml:"require_approval_first_contact"`
	MaxAutoRepliesPerHour       int  `yaml:"max_auto_replies_per_hour"`
	ApprovalTimeoutHours        int  `yaml:"approval_timeout_hours"`
}

// FAQs mirrors faqs.yaml.
type FAQs struct {
	Defaults             map[string]string            `yaml:"defaults"`
	PerPropertyOverrides map[string]map[string]string `yaml:"per_property_overrides"`
}

// Prompts holds the prompt text blocks.
type Prompts struct {
	System string
	Tools  string
}

// FAQ answer sources.
const (
	FAQSourceDefault          = "default"
	FAQSourcePropertyOverride = "property_override"
)

// FAQAnswer is the resolved answer for one topic.
type FAQAnswer struct {
	Topic      string `json:"topic"`
	Answer     string `json:"answer"`
	Source     string `json:"source"`
	PropertyID string `json:"property_id,omitempty"`
}

// PropertyFAQ resolves topic for a property: the property override wins,
// then the default. The second return is false when neither exists.
func (c *Config) PropertyFAQ(propertyID, topic string) (*FAQAnswer, bool) {
	if propertyID != "" {
		if overrides, ok := c.FAQs.PerPropertyOverrides[propertyID]; ok {
			if answer, ok := overrides[topic]; ok && answer != "" {
				return &FAQAnswer{
					Topic:      topic,
					Answer:     answer,
					Source:     FAQSourcePropertyOverride,
					PropertyID: propertyID,
				}, true
			}
		}
	}
	if answer, ok := c.FAQs.Defaults[topic]; ok && answer != "" {
		return &FAQAnswer{Topic: topic, Answer: answer, Source: FAQSourceDefault}, true
	}
	return nil, false
}

// FAQTopics returns the default topics in sorted order.
func (c *Config) FAQTopics() []string {
	topics := make([]string, 0, len(c.FAQs.Defaults))
	for t := range c.FAQs.Defaults {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// PropertyOverrideTopics returns the topics overridden for a property.
func (c *Config) PropertyOverrideTopics(propertyID string) []string {
	overrides := c.FAQs.PerPropertyOverrides[propertyID]
	topics := make([]string, 0, len(overrides))
	for t := range overrides {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// IsEscalationKeyword reports whether text contains any configured emergency
// keyword, case-insensitively.
func (c *Config) IsEscalationKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.Policies.Escalation.EmergencyKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// MatchedRedLines returns the red-line phrases contained in text, in
// configuration order.
func (c *Config) MatchedRedLines(text string) []string {
	lower := strings.ToLower(text)
	var matched []string
	for _, line := range c.Policies.RedLines {
		if line != "" && strings.Contains(lower, strings.ToLower(line)) {
			matched = append(matched, line)
		}
	}
	return matched
}

// RequiresIdentityVerification reports whether infoType may only be shared
// with a verified guest.
func (c *Config) RequiresIdentityVerification(infoType string) bool {
	for _, t := range c.Policies.IdentityVerification.RequiredFor {
		if t == infoType {
			return true
		}
	}
	return false
}
