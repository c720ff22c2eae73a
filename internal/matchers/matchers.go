package matchers

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// MatchType distinguishes exact value matches from regular expression matches.
type MatchType string

const (
	// MatchTypeEqual matches the value literally.
	MatchTypeEqual MatchType = "Equal"

	// MatchTypeRegularExpression treats the value as a regular expression.
	MatchTypeRegularExpression MatchType = "RegularExpression"
)

// Rule is a single header or query parameter match. Immutable value type.
type Rule struct {
	Key   string
	Value string
	Type  MatchType
}

// List is an ordered sequence of rules. Order matters: variant expansion
// emits groups in first-seen key order of the list.
type List []Rule

// ParseRule parses a rule from its annotation value form, "key=value" for an
// exact match or "key~=value" for a regular expression match.
func ParseRule(raw string) (Rule, error) {
	key, value, found := strings.Cut(raw, "=")
	if !found {
		return Rule{}, errors.Newf("invalid match rule %q: missing '='", raw)
	}

	matchType := MatchTypeEqual
	if strings.HasSuffix(key, "~") {
		matchType = MatchTypeRegularExpression
		key = strings.TrimSuffix(key, "~")
	}

	return Rule{Key: key, Value: value, Type: matchType}, nil
}

// weightedRule pairs a rule with the weight parsed from its annotation key.
type weightedRule struct {
	weight int
	rule   Rule
}

// FromAnnotations collects every annotation starting with prefix into a rule
// list sorted ascending by weight. The weight is the numeric substring after
// the last slash of the annotation key; entries without a parseable weight
// are dropped. A malformed value is logged and dropped, never fatal.
func FromAnnotations(annotations map[string]string, prefix string) List {
	var weighted []weightedRule

	for name, value := range annotations {
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		suffix := name[strings.LastIndex(name, "/")+1:]

		weight, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}

		rule, err := ParseRule(value)
		if err != nil {
			slog.Error("failed to parse match rule from annotation",
				"annotation", name,
				"error", err.Error(),
			)

			continue
		}

		weighted = append(weighted, weightedRule{weight: weight, rule: rule})
	}

	sort.SliceStable(weighted, func(i, j int) bool {
		return weighted[i].weight < weighted[j].weight
	})

	rules := make(List, 0, len(weighted))
	for _, entry := range weighted {
		rules = append(rules, entry.rule)
	}

	return rules
}

// Groups partitions the list by rule key. Groups are emitted in first-seen
// key order so that downstream expansion is deterministic for a given list.
func (l List) Groups() [][]Rule {
	byKey := make(map[string][]Rule, len(l))

	var keyOrder []string

	for _, rule := range l {
		if _, seen := byKey[rule.Key]; !seen {
			keyOrder = append(keyOrder, rule.Key)
		}

		byKey[rule.Key] = append(byKey[rule.Key], rule)
	}

	groups := make([][]Rule, 0, len(keyOrder))
	for _, key := range keyOrder {
		groups = append(groups, byKey[key])
	}

	return groups
}
