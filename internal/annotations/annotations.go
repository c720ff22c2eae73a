// Package annotations defines the Ingress annotation keys recognized by the
// operator.
package annotations

import "strings"

const (
	// Translate opts an Ingress in or out of translation. The value "true"
	// (case-insensitive) enables translation; any other value disables it.
	// When absent the operator-wide skip-by-default policy decides.
	Translate = "i2g.intreecom.dev/translate"

	// SplitRoutes makes the operator emit one HTTPRoute per generated rule
	// instead of aggregating all rules for a host into a single object.
	// Useful because an HTTPRoute may carry at most 16 rules.
	SplitRoutes = "i2g.intreecom.dev/split-routes"

	// GatewayName overrides the operator-wide default Gateway name.
	GatewayName = "i2g.intreecom.dev/gateway-name"

	// GatewayNamespace overrides the operator-wide default Gateway namespace.
	GatewayNamespace = "i2g.intreecom.dev/gateway-namespace"

	// SectionName sets the sectionName on generated parent references.
	SectionName = "i2g.intreecom.dev/section-name"

	// HeaderFilterPrefix is the prefix for weighted header match rules.
	// Keys look like "headers.i2g.intreecom.dev/10" where the trailing
	// segment is the rule weight.
	HeaderFilterPrefix = "headers.i2g.intreecom.dev/"

	// QueryFilterPrefix is the prefix for weighted query parameter match
	// rules, same key shape as HeaderFilterPrefix.
	QueryFilterPrefix = "query.i2g.intreecom.dev/"
)

// IsTrue reports whether an annotation value means "true", case-insensitively.
func IsTrue(value string) bool {
	return strings.EqualFold(value, "true")
}
