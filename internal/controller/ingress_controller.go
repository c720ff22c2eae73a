package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	"github.com/Intreecom/i2g-operator/internal/annotations"
	"github.com/Intreecom/i2g-operator/internal/leader"
	"github.com/Intreecom/i2g-operator/internal/matchers"
	"github.com/Intreecom/i2g-operator/internal/metrics"
	"github.com/Intreecom/i2g-operator/internal/route"
)

const (
	// FieldManager is the fixed server-side apply identity for all generated
	// routes. Re-applying an unchanged draft under it never produces a new
	// object or revision.
	FieldManager = "ingress-to-gateway-operator"

	// notLeaderRequeueDelay is the delay before re-checking leadership on a
	// non-leader replica. No writes happen in that state.
	notLeaderRequeueDelay = 20 * time.Second

	// skippedRequeueDelay is the delay for Ingresses excluded from
	// translation by annotation or operator policy.
	skippedRequeueDelay = 60 * time.Second

	// steadyStateRequeueDelay is the periodic resync delay after a completed
	// pass, including passes with per-host failures.
	steadyStateRequeueDelay = 10 * time.Second

	// errorRequeueDelay is the flat delay after validation or apply
	// failures. Deliberately not exponential.
	errorRequeueDelay = 30 * time.Second
)

// Event reasons surfaced on the Ingress.
const (
	reasonTranslationFailed = "TranslationFailed"
	reasonHostSkipped       = "HostSkipped"
)

// IngressReconciler translates Ingress resources into Gateway API routes.
type IngressReconciler struct {
	client.Client

	// Scheme is the runtime scheme for API type registration.
	Scheme *runtime.Scheme

	// Recorder emits Kubernetes Events on the source Ingress.
	Recorder record.EventRecorder

	// Leadership is the flag published by the elector. Read once per call.
	Leadership *leader.State

	// Builder generates route objects per host.
	Builder *route.Builder

	// Metrics records reconcile outcomes.
	Metrics metrics.Collector

	// DefaultGatewayName and DefaultGatewayNamespace are used when an
	// Ingress carries no gateway override annotations.
	DefaultGatewayName      string
	DefaultGatewayNamespace string

	// SkipByDefault controls the policy for Ingresses without a translate
	// annotation: true means skip unless explicitly enabled, false means
	// translate unless explicitly disabled.
	SkipByDefault bool

	// ExperimentalTCP enables TCPRoute generation for non-HTTP rules.
	ExperimentalTCP bool
}

//nolint:noinlineerr // inline error handling for controller pattern
func (r *IngressReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	startTime := time.Now()

	// Leadership is checked once here and not re-validated mid-call. A
	// non-leader performs zero writes regardless of Ingress content.
	if !r.Leadership.IsLeader() {
		r.Metrics.RecordReconcile(ctx, metrics.ReconcileNotLeader, time.Since(startTime))

		return ctrl.Result{RequeueAfter: notLeaderRequeueDelay}, nil
	}

	logger := slog.Default().With("ingress", req.NamespacedName)

	var ingress networkingv1.Ingress
	if err := r.Get(ctx, req.NamespacedName, &ingress); err != nil {
		if apierrors.IsNotFound(err) {
			// Generated routes follow the Ingress out via owner references.
			return ctrl.Result{}, nil
		}

		return ctrl.Result{}, errors.Wrap(err, "failed to get ingress")
	}

	if r.skipTranslation(&ingress) {
		logger.Debug("skipping translation due to annotation or operator policy")
		r.Metrics.RecordReconcile(ctx, metrics.ReconcileSkipped, time.Since(startTime))

		return ctrl.Result{RequeueAfter: skippedRequeueDelay}, nil
	}

	if err := validateIngress(&ingress); err != nil {
		logger.Error("ingress validation failed", "error", err.Error())
		r.Recorder.Event(&ingress, corev1.EventTypeWarning, reasonTranslationFailed, err.Error())
		r.Metrics.RecordReconcile(ctx, metrics.ReconcileError, time.Since(startTime))

		return ctrl.Result{RequeueAfter: errorRequeueDelay}, nil
	}

	logger.Info("reconciling ingress")

	if err := r.translate(ctx, logger, &ingress); err != nil {
		logger.Error("failed to apply generated routes", "error", err.Error())
		r.Recorder.Event(&ingress, corev1.EventTypeWarning, reasonTranslationFailed, err.Error())
		r.Metrics.RecordApplyError(ctx, metrics.ClassifyAPIError(err))
		r.Metrics.RecordReconcile(ctx, metrics.ReconcileError, time.Since(startTime))

		return ctrl.Result{RequeueAfter: errorRequeueDelay}, nil
	}

	r.Metrics.RecordReconcile(ctx, metrics.ReconcileTranslated, time.Since(startTime))

	return ctrl.Result{RequeueAfter: steadyStateRequeueDelay}, nil
}

// skipTranslation computes the skip decision: an explicit annotation wins,
// otherwise the operator-wide policy applies.
func (r *IngressReconciler) skipTranslation(ingress *networkingv1.Ingress) bool {
	if value, ok := ingress.Annotations[annotations.Translate]; ok {
		return !annotations.IsTrue(value)
	}

	return r.SkipByDefault
}

// validateIngress checks the preconditions for a translation pass. Any
// failure here fails the whole reconcile before a single write is attempted.
func validateIngress(ingress *networkingv1.Ingress) error {
	if ingress.Namespace == "" {
		return errors.New("ingress has no namespace")
	}

	if len(ingress.Spec.Rules) == 0 {
		return errors.New("ingress has no routing rules")
	}

	return nil
}

// translate runs the per-host build and apply loop. Build failures for one
// host are logged and skipped so the remaining hosts still get processed; a
// write failure aborts the pass.
func (r *IngressReconciler) translate(ctx context.Context, logger *slog.Logger, ingress *networkingv1.Ingress) error {
	gateway := route.ResolveGatewayRef(ingress, r.DefaultGatewayName, r.DefaultGatewayNamespace)

	headerRules := matchers.FromAnnotations(ingress.Annotations, annotations.HeaderFilterPrefix)
	queryRules := matchers.FromAnnotations(ingress.Annotations, annotations.QueryFilterPrefix)
	variants := matchers.Variants(headerRules, queryRules)

	for i := range ingress.Spec.Rules {
		rule := &ingress.Spec.Rules[i]

		if rule.Host == "" {
			logger.Warn("skipping rule without host")
			r.Metrics.RecordHostFailure(ctx, "missing_host")

			continue
		}

		input := &route.Input{
			Ingress:  ingress,
			Hostname: rule.Host,
			Gateway:  gateway,
			Variants: variants,
		}

		if rule.HTTP != nil {
			if err := r.applyHTTPRoutes(ctx, logger, input, rule.HTTP); err != nil {
				return err
			}

			continue
		}

		if err := r.applyTCPRoute(ctx, logger, ingress, input); err != nil {
			return err
		}
	}

	return nil
}

func (r *IngressReconciler) applyHTTPRoutes(
	ctx context.Context,
	logger *slog.Logger,
	input *route.Input,
	httpRule *networkingv1.HTTPIngressRuleValue,
) error {
	httpRoutes, err := r.Builder.BuildHTTPRoutes(ctx, input, httpRule)
	if err != nil {
		logger.Warn("failed to build HTTPRoute for host",
			"host", input.Hostname,
			"error", err.Error(),
		)
		r.Recorder.Eventf(input.Ingress, corev1.EventTypeWarning, reasonHostSkipped,
			"host %s: %s", input.Hostname, err.Error())
		r.Metrics.RecordHostFailure(ctx, "build_failed")

		return nil
	}

	for _, httpRoute := range httpRoutes {
		if err := r.Patch(ctx, httpRoute, client.Apply, client.FieldOwner(FieldManager), client.ForceOwnership); err != nil {
			return errors.Wrapf(err, "failed to apply HTTPRoute %s/%s", httpRoute.Namespace, httpRoute.Name)
		}
	}

	r.Metrics.RecordRoutesApplied(ctx, "http", len(httpRoutes))

	return nil
}

func (r *IngressReconciler) applyTCPRoute(
	ctx context.Context,
	logger *slog.Logger,
	ingress *networkingv1.Ingress,
	input *route.Input,
) error {
	if !r.ExperimentalTCP {
		logger.Warn("skipping non-HTTP rule, enable experimental TCP support to translate it to a TCPRoute",
			"host", input.Hostname,
		)
		r.Metrics.RecordHostFailure(ctx, "tcp_disabled")

		return nil
	}

	backend := ingress.Spec.DefaultBackend
	if backend == nil || backend.Service == nil {
		logger.Warn("skipping non-HTTP rule without default backend service", "host", input.Hostname)
		r.Metrics.RecordHostFailure(ctx, "missing_default_backend")

		return nil
	}

	tcpRoute, err := r.Builder.BuildTCPRoute(ctx, input, backend.Service)
	if err != nil {
		logger.Warn("failed to build TCPRoute for host",
			"host", input.Hostname,
			"error", err.Error(),
		)
		r.Recorder.Eventf(ingress, corev1.EventTypeWarning, reasonHostSkipped,
			"host %s: %s", input.Hostname, err.Error())
		r.Metrics.RecordHostFailure(ctx, "build_failed")

		return nil
	}

	if err := r.Patch(ctx, tcpRoute, client.Apply, client.FieldOwner(FieldManager), client.ForceOwnership); err != nil {
		return errors.Wrapf(err, "failed to apply TCPRoute %s/%s", tcpRoute.Namespace, tcpRoute.Name)
	}

	r.Metrics.RecordRoutesApplied(ctx, "tcp", 1)

	return nil
}

func (r *IngressReconciler) SetupWithManager(mgr ctrl.Manager) error {
	err := ctrl.NewControllerManagedBy(mgr).
		For(&networkingv1.Ingress{}).
		// Annotations drive translation, so annotation changes must
		// retrigger alongside spec changes. Status-only updates are ignored.
		WithEventFilter(predicate.Or[client.Object](
			predicate.GenerationChangedPredicate{},
			predicate.AnnotationChangedPredicate{},
		)).
		Complete(r)

	return errors.Wrap(err, "failed to setup ingress controller")
}
