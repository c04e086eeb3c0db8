package model

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"youtube-outlier-discovery/internal/domain"
)

// Rule tables are data, loaded from configuration and evaluated by the small
// interpreter below. Two variants exist: a keyword-set rule (any keyword hit,
// optionally suppressed by an "unless" set) and a regexp pattern rule. A rule
// with both a pattern and keywords is rejected at compile time.

// ExclusionRule contributes its normalized token to a run's exclusion set
// whenever it matches a reference video's title+description. An empty pattern
// defaults to a whole-word match of the token itself.
type ExclusionRule struct {
	Token   string `yaml:"token" json:"token"`
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

// BrandRule adjusts the brand-fit score by Weight when it matches.
type BrandRule struct {
	Name     string   `yaml:"name" json:"name"`
	Weight   float64  `yaml:"weight" json:"weight"`
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Unless   []string `yaml:"unless,omitempty" json:"unless,omitempty"`
	Pattern  string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

type compiledRule struct {
	re       *regexp.Regexp
	keywords []string
	unless   []string
}

// RuleSet is a compiled, immutable rule table safe for concurrent use.
type RuleSet struct {
	exclusions []struct {
		token string
		rule  compiledRule
	}
	brand []struct {
		weight float64
		rule   compiledRule
	}
}

func compileRule(pattern string, keywords, unless []string, defaultToken string) (compiledRule, error) {
	if pattern != "" && len(keywords) > 0 {
		return compiledRule{}, fmt.Errorf("%w: rule carries both pattern and keywords", domain.ErrInvalidArgument)
	}
	if pattern == "" && len(keywords) == 0 {
		if defaultToken == "" {
			return compiledRule{}, fmt.Errorf("%w: empty rule", domain.ErrInvalidArgument)
		}
		pattern = `\b` + regexp.QuoteMeta(defaultToken) + `\b`
	}
	var c compiledRule
	if pattern != "" {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return compiledRule{}, fmt.Errorf("%w: bad pattern %q: %v", domain.ErrInvalidArgument, pattern, err)
		}
		c.re = re
	}
	for _, k := range keywords {
		c.keywords = append(c.keywords, strings.ToLower(k))
	}
	for _, k := range unless {
		c.unless = append(c.unless, strings.ToLower(k))
	}
	return c, nil
}

func (c compiledRule) matches(lower string) bool {
	if c.re != nil {
		return c.re.MatchString(lower)
	}
	hit := false
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			hit = true
			break
		}
	}
	if !hit {
		return false
	}
	for _, k := range c.unless {
		if strings.Contains(lower, k) {
			return false
		}
	}
	return true
}

// CompileRules builds a RuleSet from configuration data.
func CompileRules(exclusions []ExclusionRule, brand []BrandRule) (*RuleSet, error) {
	rs := &RuleSet{}
	for _, e := range exclusions {
		if e.Token == "" {
			return nil, fmt.Errorf("%w: exclusion rule without token", domain.ErrInvalidArgument)
		}
		c, err := compileRule(e.Pattern, nil, nil, e.Token)
		if err != nil {
			return nil, err
		}
		rs.exclusions = append(rs.exclusions, struct {
			token string
			rule  compiledRule
		}{token: strings.ToLower(e.Token), rule: c})
	}
	for _, b := range brand {
		c, err := compileRule(b.Pattern, b.Keywords, b.Unless, "")
		if err != nil {
			return nil, fmt.Errorf("brand rule %q: %w", b.Name, err)
		}
		rs.brand = append(rs.brand, struct {
			weight float64
			rule   compiledRule
		}{weight: b.Weight, rule: c})
	}
	return rs, nil
}

// ExtractTokens returns the normalized tokens of all exclusion rules that
// match text. Deterministic for identical input.
func (rs *RuleSet) ExtractTokens(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, e := range rs.exclusions {
		if e.rule.matches(lower) {
			out = append(out, e.token)
		}
	}
	return out
}

// BrandFit evaluates the brand rule table over title+description, starting
// from base and clamping the sum to [0, 10].
func (rs *RuleSet) BrandFit(base float64, title, description string) float64 {
	lower := strings.ToLower(title + " " + description)
	score := base
	for _, b := range rs.brand {
		if b.rule.matches(lower) {
			score += b.weight
		}
	}
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// ExclusionSet is the per-run set of lowercase content tokens. Built once,
// read-only afterward, never shared across runs.
type ExclusionSet struct {
	mu     sync.Mutex
	tokens map[string]struct{}
	sealed bool
}

func NewExclusionSet() *ExclusionSet {
	return &ExclusionSet{tokens: make(map[string]struct{})}
}

// Add records a normalized token. No-op once the set is sealed.
func (s *ExclusionSet) Add(tokens ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return
	}
	for _, t := range tokens {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			s.tokens[t] = struct{}{}
		}
	}
}

// Seal freezes the set before it is handed to discovery and scoring.
func (s *ExclusionSet) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Matches reports whether any token appears as a substring of text.
func (s *ExclusionSet) Matches(text string) bool {
	lower := strings.ToLower(text)
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.tokens {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func (s *ExclusionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// Tokens returns a copy of the set's contents.
func (s *ExclusionSet) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tokens))
	for t := range s.tokens {
		out = append(out, t)
	}
	return out
}
