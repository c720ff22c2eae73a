package route

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayv1alpha2 "sigs.k8s.io/gateway-api/apis/v1alpha2"

	"github.com/Intreecom/i2g-operator/internal/annotations"
	"github.com/Intreecom/i2g-operator/internal/matchers"
)

const (
	kindGateway = "Gateway"

	suffixHTTP = "http"
	suffixTCP  = "tcp"
	suffixRoot = "root"
)

var (
	// ErrUnknownPathType fails route generation for the whole host when an
	// Ingress path declares a path type outside the closed mapping.
	ErrUnknownPathType = errors.New("unknown path type")

	// ErrNoValidPaths fails route generation for a host when every path was
	// skipped.
	ErrNoValidPaths = errors.New("no valid paths found")
)

// GatewayRef identifies the Gateway a generated route attaches to.
type GatewayRef struct {
	Name        string
	Namespace   string
	SectionName string
}

// ResolveGatewayRef resolves the target Gateway for an Ingress. Each field
// prefers an Ingress-local annotation override over the operator-wide
// default.
func ResolveGatewayRef(ingress *networkingv1.Ingress, defaultName, defaultNamespace string) GatewayRef {
	ref := GatewayRef{
		Name:      defaultName,
		Namespace: defaultNamespace,
	}

	if name, ok := ingress.Annotations[annotations.GatewayName]; ok {
		ref.Name = name
	}

	if namespace, ok := ingress.Annotations[annotations.GatewayNamespace]; ok {
		ref.Namespace = namespace
	}

	if section, ok := ingress.Annotations[annotations.SectionName]; ok {
		ref.SectionName = section
	}

	return ref
}

// Builder turns one Ingress host rule plus matcher variants into Gateway API
// route objects.
type Builder struct {
	// Client reads Services live to resolve named backend ports.
	Client client.Reader

	// LinkToIngress adds an owner reference from the source Ingress to every
	// generated route, enabling cascading deletion.
	LinkToIngress bool
}

// Input carries the per-host context assembled by the reconciler.
type Input struct {
	Ingress  *networkingv1.Ingress
	Hostname string
	Gateway  GatewayRef
	Variants []matchers.Variant
}

// RuleDraft is one (path, matcher-variant) combination bound to a resolved
// backend. Built fresh on every pass, discarded after apply.
type RuleDraft struct {
	PathType  gatewayv1.PathMatchType
	PathValue string
	Service   string
	Port      int32
	Variant   matchers.Variant
}

// RouteDraft is the per-host intermediate between an Ingress rule and the
// materialized route objects.
type RouteDraft struct {
	Hostname string
	Gateway  GatewayRef
	Rules    []RuleDraft
}

// pathTypes is the closed mapping from Ingress path types to Gateway API
// path match types. Anything else is ErrUnknownPathType.
var pathTypes = map[networkingv1.PathType]gatewayv1.PathMatchType{
	networkingv1.PathTypePrefix:                 gatewayv1.PathMatchPathPrefix,
	networkingv1.PathTypeExact:                  gatewayv1.PathMatchExact,
	networkingv1.PathTypeImplementationSpecific: gatewayv1.PathMatchPathPrefix,
}

// BuildHTTPRoutes generates the HTTPRoute objects for one host rule. With
// the split-routes annotation set, one object per rule is returned, named by
// the sanitized path; otherwise all rules aggregate into a single object
// with the "http" suffix. Paths with unresolvable backends are skipped with
// a warning; an unknown path type or zero surviving paths fail the host.
func (b *Builder) BuildHTTPRoutes(
	ctx context.Context,
	input *Input,
	httpRule *networkingv1.HTTPIngressRuleValue,
) ([]*gatewayv1.HTTPRoute, error) {
	draft, err := b.draftForHost(ctx, input, httpRule)
	if err != nil {
		return nil, err
	}

	split := annotations.IsTrue(input.Ingress.Annotations[annotations.SplitRoutes])
	if split {
		routes := make([]*gatewayv1.HTTPRoute, 0, len(draft.Rules))
		for i := range draft.Rules {
			routes = append(routes, b.materializeHTTPRoute(input, draft, draft.Rules[i:i+1], splitSuffix(&draft.Rules[i])))
		}

		return routes, nil
	}

	return []*gatewayv1.HTTPRoute{b.materializeHTTPRoute(input, draft, draft.Rules, suffixHTTP)}, nil
}

// BuildTCPRoute generates the single TCPRoute for a non-HTTP host rule,
// backed by the Ingress default backend.
func (b *Builder) BuildTCPRoute(
	ctx context.Context,
	input *Input,
	backend *networkingv1.IngressServiceBackend,
) (*gatewayv1alpha2.TCPRoute, error) {
	portNumber, err := b.resolvePortNumber(ctx, input.Ingress.Namespace, backend.Name, backend.Port)
	if err != nil {
		return nil, err
	}

	port := gatewayv1.PortNumber(portNumber)

	tcpRoute := &gatewayv1alpha2.TCPRoute{
		TypeMeta: metav1.TypeMeta{
			APIVersion: gatewayv1alpha2.GroupVersion.String(),
			Kind:       "TCPRoute",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      routeName(input.Ingress.Name, input.Hostname, suffixTCP),
			Namespace: input.Ingress.Namespace,
		},
		Spec: gatewayv1alpha2.TCPRouteSpec{
			CommonRouteSpec: gatewayv1.CommonRouteSpec{
				ParentRefs: []gatewayv1.ParentReference{parentRef(input.Gateway)},
			},
			Rules: []gatewayv1alpha2.TCPRouteRule{
				{
					BackendRefs: []gatewayv1.BackendRef{
						{
							BackendObjectReference: gatewayv1.BackendObjectReference{
								Name: gatewayv1.ObjectName(backend.Name),
								Port: &port,
							},
						},
					},
				},
			},
		},
	}

	if b.LinkToIngress {
		addOwnerReference(&tcpRoute.ObjectMeta, input.Ingress)
	}

	return tcpRoute, nil
}

func (b *Builder) draftForHost(
	ctx context.Context,
	input *Input,
	httpRule *networkingv1.HTTPIngressRuleValue,
) (*RouteDraft, error) {
	logger := slog.Default().With(
		"ingress", input.Ingress.Namespace+"/"+input.Ingress.Name,
		"host", input.Hostname,
	)

	draft := &RouteDraft{
		Hostname: input.Hostname,
		Gateway:  input.Gateway,
	}

	for _, path := range httpRule.Paths {
		svc := path.Backend.Service
		if svc == nil {
			logger.Warn("skipping path without backend service", "path", path.Path)

			continue
		}

		if svc.Port.Number == 0 && svc.Port.Name == "" {
			logger.Warn("skipping path without backend service port",
				"path", path.Path,
				"service", svc.Name,
			)

			continue
		}

		portNumber, err := b.resolvePortNumber(ctx, input.Ingress.Namespace, svc.Name, svc.Port)
		if err != nil {
			logger.Warn("skipping path with unresolvable backend port",
				"path", path.Path,
				"service", svc.Name,
				"error", err.Error(),
			)

			continue
		}

		ingressPathType := networkingv1.PathTypeImplementationSpecific
		if path.PathType != nil {
			ingressPathType = *path.PathType
		}

		pathType, known := pathTypes[ingressPathType]
		if !known {
			return nil, errors.Wrapf(ErrUnknownPathType, "%q", ingressPathType)
		}

		for _, variant := range input.Variants {
			draft.Rules = append(draft.Rules, RuleDraft{
				PathType:  pathType,
				PathValue: path.Path,
				Service:   svc.Name,
				Port:      portNumber,
				Variant:   variant,
			})
		}
	}

	if len(draft.Rules) == 0 {
		return nil, ErrNoValidPaths
	}

	return draft, nil
}

func (b *Builder) materializeHTTPRoute(
	input *Input,
	draft *RouteDraft,
	ruleDrafts []RuleDraft,
	suffix string,
) *gatewayv1.HTTPRoute {
	rules := make([]gatewayv1.HTTPRouteRule, 0, len(ruleDrafts))

	for i := range ruleDrafts {
		rules = append(rules, httpRouteRule(&ruleDrafts[i]))
	}

	httpRoute := &gatewayv1.HTTPRoute{
		TypeMeta: metav1.TypeMeta{
			APIVersion: gatewayv1.GroupVersion.String(),
			Kind:       "HTTPRoute",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      routeName(input.Ingress.Name, draft.Hostname, suffix),
			Namespace: input.Ingress.Namespace,
		},
		Spec: gatewayv1.HTTPRouteSpec{
			CommonRouteSpec: gatewayv1.CommonRouteSpec{
				ParentRefs: []gatewayv1.ParentReference{parentRef(draft.Gateway)},
			},
			Hostnames: []gatewayv1.Hostname{gatewayv1.Hostname(draft.Hostname)},
			Rules:     rules,
		},
	}

	if b.LinkToIngress {
		addOwnerReference(&httpRoute.ObjectMeta, input.Ingress)
	}

	return httpRoute
}

func httpRouteRule(draft *RuleDraft) gatewayv1.HTTPRouteRule {
	pathType := draft.PathType
	port := gatewayv1.PortNumber(draft.Port)

	pathMatch := &gatewayv1.HTTPPathMatch{Type: &pathType}
	if draft.PathValue != "" {
		value := draft.PathValue
		pathMatch.Value = &value
	}

	return gatewayv1.HTTPRouteRule{
		Matches: []gatewayv1.HTTPRouteMatch{
			{
				Path:        pathMatch,
				Headers:     draft.Variant.Headers.HeaderMatches(),
				QueryParams: draft.Variant.Query.QueryParamMatches(),
			},
		},
		BackendRefs: []gatewayv1.HTTPBackendRef{
			{
				BackendRef: gatewayv1.BackendRef{
					BackendObjectReference: gatewayv1.BackendObjectReference{
						Name: gatewayv1.ObjectName(draft.Service),
						Port: &port,
					},
				},
			},
		},
	}
}

// routeName builds the deterministic route object name. Repeated passes over
// an unchanged Ingress always produce the same name.
func routeName(ingressName, hostname, suffix string) string {
	return ingressName + "-" + SanitizeHostname(hostname) + "-" + suffix
}

// splitSuffix names a split-out route after its path, or "root" for the
// empty and "/" paths.
func splitSuffix(draft *RuleDraft) string {
	if draft.PathValue == "" || draft.PathValue == "/" {
		return suffixRoot
	}

	return SanitizeHostname(draft.PathValue)
}

func parentRef(gateway GatewayRef) gatewayv1.ParentReference {
	group := gatewayv1.Group(gatewayv1.GroupName)
	kind := gatewayv1.Kind(kindGateway)
	namespace := gatewayv1.Namespace(gateway.Namespace)

	ref := gatewayv1.ParentReference{
		Group:     &group,
		Kind:      &kind,
		Name:      gatewayv1.ObjectName(gateway.Name),
		Namespace: &namespace,
	}

	if gateway.SectionName != "" {
		section := gatewayv1.SectionName(gateway.SectionName)
		ref.SectionName = &section
	}

	return ref
}
