// Package matchers parses weighted header and query filter annotations into
// match rules and expands them into route variant sets.
//
// Annotation keys carry a numeric weight after the last slash
// ("headers.i2g.intreecom.dev/10"). Values use the grammar "key=value" for
// exact matches and "key~=value" for regular expression matches. Rules
// sharing a key are alternatives; rules with distinct keys are conjuncts, so
// expansion computes a cartesian product across keys.
package matchers
