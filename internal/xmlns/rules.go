// Package xmlns rewrites XML namespaces while a document streams through.
//
// A TranslationSet maps namespace URIs to new URIs with regular expressions.
// A Rewriter decodes the wrapped source token by token and re-serializes it,
// translating element (and optionally attribute) namespaces, re-declaring
// prefixes as needed, and rewriting the XML declaration for the configured
// output encoding. The document is never buffered as a whole.
package xmlns

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrAmbiguousRule = errors.New("ambiguous namespace translation")
	ErrEmptyPattern  = errors.New("empty namespace match pattern")
	ErrInvalidRule   = errors.New("invalid namespace rule")
)

// Rule translates namespace URIs matching Match into Replace. Replace may
// reference capture groups ($1, ${name}).
type Rule struct {
	Match   string `json:"match"`
	Replace string `json:"replace"`
}

func (r Rule) String() string {
	return r.Match + "=" + r.Replace
}

// ParseRule parses "match=replace". When the text contains "=>", that is
// used as the separator instead, so patterns may contain '='.
func ParseRule(s string) (Rule, error) {
	sep := "="
	if strings.Contains(s, "=>") {
		sep = "=>"
	}
	match, replace, ok := strings.Cut(s, sep)
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q (want match=replace)", ErrInvalidRule, s)
	}
	if match == "" {
		return Rule{}, fmt.Errorf("%w: %q", ErrEmptyPattern, s)
	}
	return Rule{Match: match, Replace: replace}, nil
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// TranslationSet is an ordered, immutable set of rules keyed by Match.
// The zero value and nil translate nothing.
type TranslationSet struct {
	// Override makes this set replace, rather than extend, a
	// lower-precedence set in Merge.
	Override bool

	rules []compiledRule
}

// NewTranslationSet compiles rules in order. Identical duplicates collapse;
// the same Match with a different Replace is rejected.
func NewTranslationSet(override bool, rules ...Rule) (*TranslationSet, error) {
	s := &TranslationSet{Override: override}
	seen := make(map[string]string, len(rules))
	for _, r := range rules {
		if r.Match == "" {
			return nil, ErrEmptyPattern
		}
		if prev, ok := seen[r.Match]; ok {
			if prev != r.Replace {
				return nil, fmt.Errorf("%w: %q maps to both %q and %q", ErrAmbiguousRule, r.Match, prev, r.Replace)
			}
			continue
		}
		re, err := regexp.Compile(r.Match)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidRule, r.Match, err)
		}
		seen[r.Match] = r.Replace
		s.rules = append(s.rules, compiledRule{Rule: r, re: re})
	}
	return s, nil
}

// Rules returns the rules in evaluation order.
func (s *TranslationSet) Rules() []Rule {
	if s == nil {
		return nil
	}
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Rule
	}
	return out
}

func (s *TranslationSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Translate applies the first rule whose pattern matches uri. The empty
// namespace is never translated.
func (s *TranslationSet) Translate(uri string) (string, bool) {
	if s == nil || uri == "" {
		return uri, false
	}
	for _, r := range s.rules {
		if r.re.MatchString(uri) {
			return r.re.ReplaceAllString(uri, r.Replace), true
		}
	}
	return uri, false
}

// Merge combines two sets. When high.Override is set only high's rules are
// kept; otherwise the result holds high's rules followed by those of low
// whose Match is not already present.
func Merge(high, low *TranslationSet) *TranslationSet {
	switch {
	case high == nil && low == nil:
		return &TranslationSet{}
	case high == nil:
		return low
	case low == nil || high.Override:
		return high
	}
	out := &TranslationSet{Override: high.Override}
	seen := make(map[string]bool, len(high.rules))
	for _, r := range high.rules {
		seen[r.Match] = true
		out.rules = append(out.rules, r)
	}
	for _, r := range low.rules {
		if !seen[r.Match] {
			out.rules = append(out.rules, r)
		}
	}
	return out
}
