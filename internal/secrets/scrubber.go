package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksregexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Scrubber redacts secrets from text.
type Scrubber interface {
	Scrub(content string) *Result
}

// New builds the Scrubber selected by cfg. allow may be nil.
func New(cfg *Config, allow *Allowlist) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return Noop{}, nil
	}

	regexes := append([]string(nil), cfg.AllowList...)
	if allow != nil {
		regexes = append(regexes, allow.Regexes...)
	}
	allowed := make([]*regexp.Regexp, 0, len(regexes))
	for _, p := range regexes {
		allowed = append(allowed, regexp.MustCompile(p))
	}

	marker := cfg.RedactionString
	if marker == "" {
		marker = "[REDACTED"
	}

	if cfg.Engine == EngineGitleaks {
		return newGitleaksScrubber(marker, allowed, allow)
	}

	rules, err := compileRules(cfg.Rules)
	if err != nil {
		return nil, err
	}
	return &regexScrubber{rules: rules, allowed: allowed, marker: marker}, nil
}

// Noop returns content unchanged.
type Noop struct{}

func (Noop) Scrub(content string) *Result {
	return &Result{Scrubbed: content}
}

type regexScrubber struct {
	rules   []compiledRule
	allowed []*regexp.Regexp
	marker  string
}

type span struct {
	start, end int
	ruleID     string
}

func (s *regexScrubber) Scrub(content string) *Result {
	res := &Result{Scrubbed: content}
	var spans []span

	for _, rule := range s.rules {
		if len(rule.keywords) > 0 && !anyMatch(rule.keywords, content) {
			continue
		}
		for _, loc := range rule.pattern.FindAllStringIndex(content, -1) {
			if anyMatch(s.allowed, content[loc[0]:loc[1]]) {
				continue
			}
			spans = append(spans, span{start: loc[0], end: loc[1], ruleID: rule.id})
			res.add(rule.id, strings.Count(content[:loc[0]], "\n")+1)
		}
	}

	if len(spans) > 0 {
		res.Scrubbed = redactSpans(content, spans, s.marker)
	}
	return res
}

// redactSpans replaces spans with markers, merging overlaps.
func redactSpans(content string, spans []span, marker string) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	var b strings.Builder
	prev := 0
	for _, sp := range merged {
		b.WriteString(content[prev:sp.start])
		fmt.Fprintf(&b, "%s:%s]", marker, sp.ruleID)
		prev = sp.end
	}
	b.WriteString(content[prev:])
	return b.String()
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

type gitleaksScrubber struct {
	mu       sync.Mutex
	detector *detect.Detector
	allowed  []*regexp.Regexp
	marker   string
}

func newGitleaksScrubber(marker string, allowed []*regexp.Regexp, allow *Allowlist) (*gitleaksScrubber, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating gitleaks detector: %w", err)
	}
	if allow != nil && (len(allow.Paths) > 0 || len(allow.Regexes) > 0) {
		extra := &gitleaksconfig.Allowlist{Description: "guidekeeper allowlist"}
		for _, p := range allow.Paths {
			extra.Paths = append(extra.Paths, (*gitleaksregexp.Regexp)(regexp.MustCompile(p)))
		}
		for _, p := range allow.Regexes {
			extra.Regexes = append(extra.Regexes, (*gitleaksregexp.Regexp)(regexp.MustCompile(p)))
		}
		detector.Config.Allowlists = append(detector.Config.Allowlists, extra)
	}
	return &gitleaksScrubber{detector: detector, allowed: allowed, marker: marker}, nil
}

func (s *gitleaksScrubber) Scrub(content string) *Result {
	s.mu.Lock()
	findings := s.detector.DetectString(content)
	s.mu.Unlock()

	res := &Result{Scrubbed: content}
	for _, f := range findings {
		if f.Secret == "" || anyMatch(s.allowed, f.Secret) {
			continue
		}
		res.add(f.RuleID, f.StartLine+1)
		res.Scrubbed = strings.ReplaceAll(res.Scrubbed, f.Secret, s.marker+":"+f.RuleID+"]")
	}
	return res
}
