package matchers

// HeaderSet is a rule list applied against request headers.
type HeaderSet struct {
	Rules List
}

// QuerySet is a rule list applied against query parameters.
type QuerySet struct {
	Rules List
}

// Variant is one expanded combination of header and query matches. A nil
// side means no filter of that kind applies; a Variant with both sides nil
// means the rule applies unconditionally.
type Variant struct {
	Headers *HeaderSet
	Query   *QuerySet
}

// kind tags a rule set with the annotation namespace it came from, so the
// header and query sides can share one expansion routine.
type kind int

const (
	kindHeader kind = iota
	kindQuery
)

// taggedSet is one within-kind product result, tagged with its side.
type taggedSet struct {
	kind  kind
	rules List
}

// cartesianProduct crosses groups, taking one element per group per output.
// Zero groups yield zero outputs.
func cartesianProduct[T any](groups [][]T) [][]T {
	if len(groups) == 0 {
		return nil
	}

	result := [][]T{{}}

	for _, group := range groups {
		next := make([][]T, 0, len(result)*len(group))

		for _, partial := range result {
			for _, item := range group {
				combined := make([]T, len(partial), len(partial)+1)
				copy(combined, partial)
				next = append(next, append(combined, item))
			}
		}

		result = next
	}

	return result
}

// expand computes the within-kind product of a list and tags each result.
func expand(rules List, k kind) []taggedSet {
	products := cartesianProduct(rules.Groups())

	sets := make([]taggedSet, 0, len(products))
	for _, product := range products {
		sets = append(sets, taggedSet{kind: k, rules: product})
	}

	return sets
}

// Variants expands the header and query rule lists independently and crosses
// the two non-empty product lists pairwise. If only one side produces
// results, each is paired with a nil other side. If both sides are empty the
// single unconditional variant is returned.
func Variants(headers, query List) []Variant {
	headerSets := expand(headers, kindHeader)
	querySets := expand(query, kindQuery)

	switch {
	case len(headerSets) == 0 && len(querySets) == 0:
		return []Variant{{}}

	case len(querySets) == 0:
		variants := make([]Variant, 0, len(headerSets))
		for _, set := range headerSets {
			variants = append(variants, Variant{Headers: &HeaderSet{Rules: set.rules}})
		}

		return variants

	case len(headerSets) == 0:
		variants := make([]Variant, 0, len(querySets))
		for _, set := range querySets {
			variants = append(variants, Variant{Query: &QuerySet{Rules: set.rules}})
		}

		return variants
	}

	pairs := cartesianProduct([][]taggedSet{headerSets, querySets})

	variants := make([]Variant, 0, len(pairs))

	for _, pair := range pairs {
		var variant Variant

		for _, set := range pair {
			switch set.kind {
			case kindHeader:
				variant.Headers = &HeaderSet{Rules: set.rules}
			case kindQuery:
				variant.Query = &QuerySet{Rules: set.rules}
			}
		}

		variants = append(variants, variant)
	}

	return variants
}
