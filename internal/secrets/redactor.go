package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/agentkb/internal/config"
	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksregexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"
)

// Finding is one detected secret.
type Finding struct {
	RuleID      string
	Description string
	Line        int
	Secret      string
}

// Redactor replaces detected secrets with [REDACTED:<rule-id>] markers.
// The marker keeps enough context for embeddings and the model without
// revealing any part of the secret. A Redactor is safe for concurrent use.
type Redactor struct {
	mu       sync.Mutex
	detector *detect.Detector
	logger   *zap.Logger
}

// New builds a Redactor with the default Gitleaks rules and the allowlist
// named by cfg. It returns nil, nil when redaction is disabled; a nil
// *Redactor passes text through unchanged.
func New(cfg config.SecretsConfig, logger *zap.Logger) (*Redactor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allowlist, err := LoadAllowlist(cfg.Allowlist)
	if err != nil {
		return nil, err
	}
	return NewWithAllowlist(allowlist, logger)
}

// NewWithAllowlist builds a Redactor with an explicit allowlist, which may
// be nil.
func NewWithAllowlist(allowlist *Allowlist, logger *zap.Logger) (*Redactor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating secret detector: %w", err)
	}
	if !allowlist.Empty() {
		if err := applyAllowlist(&detector.Config, allowlist); err != nil {
			return nil, err
		}
	}

	return &Redactor{detector: detector, logger: logger.Named("secrets")}, nil
}

func applyAllowlist(cfg *gitleaksconfig.Config, allowlist *Allowlist) error {
	entry := &gitleaksconfig.Allowlist{
		Description: "agentkb allowlist",
		StopWords:   append([]string(nil), allowlist.StopWords...),
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
		}
		entry.Regexes = append(entry.Regexes, (*gitleaksregexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, entry)
	return nil
}

// Scan returns the secrets found in text.
func (r *Redactor) Scan(text string) []Finding {
	if r == nil || text == "" {
		return nil
	}

	r.mu.Lock()
	found := r.detector.DetectString(text)
	r.mu.Unlock()

	findings := make([]Finding, 0, len(found))
	for _, f := range found {
		secret := f.Secret
		if secret == "" {
			secret = f.Match
		}
		if secret == "" {
			continue
		}
		findings = append(findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
			Secret:      secret,
		})
	}
	return findings
}

// Redact returns text with every detected secret replaced by a marker.
func (r *Redactor) Redact(text string) string {
	findings := r.Scan(text)
	if len(findings) == 0 {
		return text
	}

	// Longest first so a secret containing another is replaced whole.
	sort.SliceStable(findings, func(i, j int) bool {
		return len(findings[i].Secret) > len(findings[j].Secret)
	})

	rules := make([]string, 0, len(findings))
	for _, f := range findings {
		text = strings.ReplaceAll(text, f.Secret, Marker(f.RuleID))
		rules = append(rules, f.RuleID)
	}

	r.logger.Info("redacted secrets",
		zap.Int("count", len(findings)),
		zap.Strings("rules", rules),
	)
	return text
}

// Marker is the replacement text for a secret found by ruleID.
func Marker(ruleID string) string {
	return "[REDACTED:" + ruleID + "]"
}
