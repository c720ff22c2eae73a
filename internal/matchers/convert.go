package matchers

import (
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
)

// HeaderMatches converts the set to Gateway API header matches.
// A nil receiver yields nil, matching "no header filter".
func (s *HeaderSet) HeaderMatches() []gatewayv1.HTTPHeaderMatch {
	if s == nil {
		return nil
	}

	headerMatches := make([]gatewayv1.HTTPHeaderMatch, 0, len(s.Rules))

	for _, rule := range s.Rules {
		matchType := headerMatchType(rule.Type)
		headerMatches = append(headerMatches, gatewayv1.HTTPHeaderMatch{
			Type:  &matchType,
			Name:  gatewayv1.HTTPHeaderName(rule.Key),
			Value: rule.Value,
		})
	}

	return headerMatches
}

// QueryParamMatches converts the set to Gateway API query parameter matches.
// A nil receiver yields nil, matching "no query filter".
func (s *QuerySet) QueryParamMatches() []gatewayv1.HTTPQueryParamMatch {
	if s == nil {
		return nil
	}

	queryMatches := make([]gatewayv1.HTTPQueryParamMatch, 0, len(s.Rules))

	for _, rule := range s.Rules {
		matchType := queryParamMatchType(rule.Type)
		queryMatches = append(queryMatches, gatewayv1.HTTPQueryParamMatch{
			Type:  &matchType,
			Name:  gatewayv1.HTTPHeaderName(rule.Key),
			Value: rule.Value,
		})
	}

	return queryMatches
}

func headerMatchType(matchType MatchType) gatewayv1.HeaderMatchType {
	if matchType == MatchTypeRegularExpression {
		return gatewayv1.HeaderMatchRegularExpression
	}

	return gatewayv1.HeaderMatchExact
}

func queryParamMatchType(matchType MatchType) gatewayv1.QueryParamMatchType {
	if matchType == MatchTypeRegularExpression {
		return gatewayv1.QueryParamMatchRegularExpression
	}

	return gatewayv1.QueryParamMatchExact
}
