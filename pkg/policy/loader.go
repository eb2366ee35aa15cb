package policy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-concierge/pkg/apperrors"
)

// Files every policy directory must contain, relative to the directory.
const (
	PoliciesFile     = "policies.yaml"
	FAQsFile         = "faqs.yaml"
	SystemPromptFile = "prompts/system.txt"
	ToolsPromptFile  = "prompts/tools.txt"
)

var requiredFiles = []string{PoliciesFile, FAQsFile, SystemPromptFile, ToolsPromptFile}

// Source produces a policy snapshot.
type Source interface {
	Load(ctx context.Context) (*Config, error)
}

// DirSource reads the policy files from a directory on every Load.
type DirSource struct {
	Dir string
}

var _ Source = (*DirSource)(nil)

// NewDirSource creates a Source reading from dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

// Load reads and validates all policy files. Missing or invalid files yield a
// configuration_missing error.
func (s *DirSource) Load(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(s.Dir)
	if err != nil || !info.IsDir() {
		return nil, apperrors.New(apperrors.KindConfigMissing, "policy.load",
			fmt.Sprintf("config directory does not exist: %s", s.Dir))
	}
	for _, name := range requiredFiles {
		if _, err := os.Stat(filepath.Join(s.Dir, name)); err != nil {
			return nil, apperrors.New(apperrors.KindConfigMissing, "policy.load",
				fmt.Sprintf("required configuration file missing: %s", name))
		}
	}

	policies, err := s.loadPolicies()
	if err != nil {
		return nil, err
	}
	faqs, err := s.loadFAQs()
	if err != nil {
		return nil, err
	}
	system, err := s.readFile(SystemPromptFile)
	if err != nil {
		return nil, err
	}
	tools, err := s.readFile(ToolsPromptFile)
	if err != nil {
		return nil, err
	}

	return &Config{
		Policies: *policies,
		FAQs:     *faqs,
		Prompts:  Prompts{System: system, Tools: tools},
	}, nil
}

// policiesFile uses pointers so absent sections can be told apart from zero values.
type policiesFile struct {
	IdentityVerification *IdentityVerification `yaml:"identity_verification"`
	RedLines             []string              `yaml:"red_lines"`
	Escalation           *Escalation           `yaml:"escalation"`
	Defaults             *PropertyDefaults     `yaml:"defaults"`
	ConfidenceThresholds *ConfidenceThresholds `yaml:"confidence_thresholds"`
	ApprovalSettings     *ApprovalSettings     `yaml:"approval_settings"`
}

func (s *DirSource) loadPolicies() (*Policies, error) {
	var raw policiesFile
	if err := s.decodeYAML(PoliciesFile, &raw); err != nil {
		return nil, err
	}

	missing := func(section string) error {
		return apperrors.New(apperrors.KindConfigMissing, "policy.load",
			fmt.Sprintf("%s: missing section %q", PoliciesFile, section))
	}
	switch {
	case raw.IdentityVerification == nil:
		return nil, missing("identity_verification")
	case raw.Escalation == nil:
		return nil, missing("escalation")
	case raw.Defaults == nil:
		return nil, missing("defaults")
	case raw.ConfidenceThresholds == nil:
		return nil, missing("confidence_thresholds")
	case raw.ApprovalSettings == nil:
		return nil, missing("approval_settings")
	}

	p := &Policies{
		IdentityVerification: *raw.IdentityVerification,
		RedLines:             raw.RedLines,
		Escalation:           *raw.Escalation,
		Defaults:             *raw.Defaults,
		ConfidenceThresholds: *raw.ConfidenceThresholds,
		ApprovalSettings:     *raw.ApprovalSettings,
	}
	if err := validateThresholds(p.ConfidenceThresholds); err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfigMissing, "policy.load", err, PoliciesFile)
	}
	return p, nil
}

func validateThresholds(t ConfidenceThresholds) error {
	values := map[string]float64{
		"auto_reply":           t.AutoReply,
		"approval_required":    t.ApprovalRequired,
		"escalate_immediately": t.EscalateImmediately,
	}
	for name, v := range values {
		if v < 0 || v > 1 {
			return fmt.Errorf("confidence_thresholds.%s must be within [0,1], got %v", name, v)
		}
	}
	return nil
}

func (s *DirSource) loadFAQs() (*FAQs, error) {
	var faqs FAQs
	if err := s.decodeYAML(FAQsFile, &faqs); err != nil {
		return nil, err
	}
	if faqs.Defaults == nil {
		return nil, apperrors.New(apperrors.KindConfigMissing, "policy.load",
			fmt.Sprintf("%s: missing section %q", FAQsFile, "defaults"))
	}
	if faqs.PerPropertyOverrides == nil {
		faqs.PerPropertyOverrides = map[string]map[string]string{}
	}
	return &faqs, nil
}

func (s *DirSource) decodeYAML(name string, out any) error {
	data, err := s.readFile(name)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal([]byte(data), out); err != nil {
		return apperrors.Wrap(apperrors.KindConfigMissing, "policy.load", err,
			fmt.Sprintf("failed to parse %s", name))
	}
	return nil
}

func (s *DirSource) readFile(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		msg := fmt.Sprintf("failed to read %s", name)
		if errors.Is(err, fs.ErrNotExist) {
			msg = fmt.Sprintf("required configuration file missing: %s", name)
		}
		return "", apperrors.Wrap(apperrors.KindConfigMissing, "policy.load", err, msg)
	}
	return string(data), nil
}

// StaticSource always returns the same snapshot. Useful in tests.
type StaticSource struct {
	Config *Config
	Err    error
}

var _ Source = (*StaticSource)(nil)

func (s *StaticSource) Load(ctx context.Context) (*Config, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Config, nil
}
