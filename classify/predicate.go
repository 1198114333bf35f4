package classify

import (
	"regexp"
	"strings"

	"github.com/goliatone/go-transcript-intake/core"
)

// Predicate decides whether a meeting subject belongs to a tracked project.
// Implementations must be deterministic.
type Predicate interface {
	Match(subject string) bool
}

type PredicateFunc func(subject string) bool

func (f PredicateFunc) Match(subject string) bool {
	if f == nil {
		return false
	}
	return f(subject)
}

// KeywordPredicate matches subjects containing any keyword, ignoring case.
type KeywordPredicate struct {
	keywords []string
}

func NewKeywordPredicate(keywords ...string) KeywordPredicate {
	normalized := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		if keyword = strings.ToLower(strings.TrimSpace(keyword)); keyword != "" {
			normalized = append(normalized, keyword)
		}
	}
	return KeywordPredicate{keywords: normalized}
}

func (p KeywordPredicate) Match(subject string) bool {
	subject = strings.ToLower(subject)
	for _, keyword := range p.keywords {
		if strings.Contains(subject, keyword) {
			return true
		}
	}
	return false
}

type PatternPredicate struct {
	pattern *regexp.Regexp
}

func NewPatternPredicate(expr string) (PatternPredicate, error) {
	pattern, err := regexp.Compile(strings.TrimSpace(expr))
	if err != nil {
		return PatternPredicate{}, core.BadInputError("classify: invalid interest pattern", map[string]any{
			"error": err.Error(),
		})
	}
	return PatternPredicate{pattern: pattern}, nil
}

func (p PatternPredicate) Match(subject string) bool {
	return p.pattern != nil && p.pattern.MatchString(subject)
}

// PredicateFromConfig prefers the pattern when one is configured.
func PredicateFromConfig(cfg core.ReceiverConfig) (Predicate, error) {
	if strings.TrimSpace(cfg.InterestPattern) != "" {
		return NewPatternPredicate(cfg.InterestPattern)
	}
	return NewKeywordPredicate(cfg.InterestKeywords...), nil
}
