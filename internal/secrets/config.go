package secrets

import (
	"fmt"
	"regexp"
)

// Engine names a detection backend.
type Engine string

const (
	EngineRegex    Engine = "regex"
	EngineGitleaks Engine = "gitleaks"
)

// Config configures scrubbing.
type Config struct {
	Enabled bool   `koanf:"enabled"`
	Engine  Engine `koanf:"engine"`

	// RedactionString prefixes the marker that replaces a secret.
	RedactionString string `koanf:"redaction_string"`

	// AllowlistFile is an optional TOML allowlist, relative to the repo root.
	AllowlistFile string `koanf:"allowlist_file"`

	// AllowList holds extra content regexes that are never redacted.
	AllowList []string `koanf:"allow_list"`

	Rules []Rule `koanf:"rules"`
}

// Rule is a single regex detection rule.
type Rule struct {
	ID       string   `koanf:"id"`
	Pattern  string   `koanf:"pattern"`
	Keywords []string `koanf:"keywords"`
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig enables the regex engine with the built-in rules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Engine:          EngineRegex,
		RedactionString: "[REDACTED",
		AllowlistFile:   ".guidekeeper/allowlist.toml",
		Rules:           DefaultRules(),
	}
}

// Validate checks engine and patterns.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Engine {
	case "", EngineRegex, EngineGitleaks:
	default:
		return fmt.Errorf("unknown secrets engine %q", c.Engine)
	}
	if _, err := compileRules(c.Rules); err != nil {
		return err
	}
	for i, p := range c.AllowList {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("allow_list %d: %w", i, err)
		}
	}
	return nil
}

func compileRules(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil || r.Pattern == "" {
			return nil, fmt.Errorf("rule %s: invalid pattern: %v", r.ID, err)
		}
		cr := compiledRule{id: r.ID, pattern: re}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		out = append(out, cr)
	}
	return out, nil
}
