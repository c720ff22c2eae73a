package controller

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics/server"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayv1alpha2 "sigs.k8s.io/gateway-api/apis/v1alpha2"

	"github.com/Intreecom/i2g-operator/internal/leader"
	"github.com/Intreecom/i2g-operator/internal/metrics"
	"github.com/Intreecom/i2g-operator/internal/route"
)

// Config holds all configuration options for the operator. Values are
// populated from CLI flags or environment variables.
type Config struct {
	// DefaultGatewayName is the Gateway generated routes attach to when an
	// Ingress carries no override annotation (required).
	DefaultGatewayName string

	// DefaultGatewayNamespace is the namespace of the default Gateway.
	DefaultGatewayNamespace string

	// LinkToIngress adds owner references from the source Ingress to every
	// generated route, so deleting the Ingress garbage-collects them.
	LinkToIngress bool

	// ExperimentalTCP enables TCPRoute generation for non-HTTP rules.
	ExperimentalTCP bool

	// SkipByDefault makes Ingresses without a translate annotation skipped
	// instead of translated.
	SkipByDefault bool

	// LeaseName and LeaseNamespace locate the leader election lease.
	LeaseName      string
	LeaseNamespace string

	// LeaseTTL and LeasePollInterval tune the election loop. Zero values
	// fall back to the elector defaults.
	LeaseTTL          time.Duration
	LeasePollInterval time.Duration

	// MetricsAddr is the address for the Prometheus metrics endpoint.
	MetricsAddr string

	// HealthAddr is the address for health and readiness probe endpoints.
	HealthAddr string
}

// Run initializes and starts the operator with the provided configuration.
// It wires the leader elector and the Ingress reconciler into a
// controller-runtime manager and blocks until the context is cancelled or
// an error occurs.
//
//nolint:funlen,noinlineerr // controller setup requires multiple steps
func Run(ctx context.Context, cfg *Config) error {
	logger := log.FromContext(ctx).WithName("manager")
	logger.Info("initializing operator")

	mgrOptions := ctrl.Options{
		Metrics: server.Options{
			BindAddress: cfg.MetricsAddr,
		},
		HealthProbeBindAddress: cfg.HealthAddr,
		Client: client.Options{
			Cache: &client.CacheOptions{
				// Translation inputs are read live on every pass. A renamed
				// Service port or edited Ingress never serves from a stale
				// cache.
				DisableFor: []client.Object{
					&networkingv1.Ingress{},
					&corev1.Service{},
				},
			},
		},
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), mgrOptions)
	if err != nil {
		return errors.Wrap(err, "failed to create manager")
	}

	if err := gatewayv1.Install(mgr.GetScheme()); err != nil {
		return errors.Wrap(err, "failed to add gateway-api scheme")
	}

	if err := gatewayv1alpha2.Install(mgr.GetScheme()); err != nil {
		return errors.Wrap(err, "failed to add experimental gateway-api scheme")
	}

	collector := metrics.NewCollector(ctrlmetrics.Registry)

	leadership := &leader.State{}

	elector := &leader.Elector{
		Client:         mgr.GetClient(),
		State:          leadership,
		LeaseName:      cfg.LeaseName,
		LeaseNamespace: cfg.LeaseNamespace,
		HolderIdentity: leader.Identity(),
		TTL:            cfg.LeaseTTL,
		PollInterval:   cfg.LeasePollInterval,
		Metrics:        collector,
	}

	// The elector must run on every replica for the process lifetime. If it
	// ever stops, the manager stops with it: a dead elector would let a
	// non-leader keep writing.
	if err := mgr.Add(elector); err != nil {
		return errors.Wrap(err, "failed to add leader elector")
	}

	ingressReconciler := &IngressReconciler{
		Client:     mgr.GetClient(),
		Scheme:     mgr.GetScheme(),
		Recorder:   mgr.GetEventRecorderFor("i2g-operator"),
		Leadership: leadership,
		Builder: &route.Builder{
			Client:        mgr.GetClient(),
			LinkToIngress: cfg.LinkToIngress,
		},
		Metrics:                 collector,
		DefaultGatewayName:      cfg.DefaultGatewayName,
		DefaultGatewayNamespace: cfg.DefaultGatewayNamespace,
		SkipByDefault:           cfg.SkipByDefault,
		ExperimentalTCP:         cfg.ExperimentalTCP,
	}

	if err := ingressReconciler.SetupWithManager(mgr); err != nil {
		return errors.Wrap(err, "failed to setup ingress controller")
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up health check")
	}

	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return errors.Wrap(err, "failed to set up ready check")
	}

	logger.Info("starting manager",
		"defaultGateway", cfg.DefaultGatewayNamespace+"/"+cfg.DefaultGatewayName,
		"lease", cfg.LeaseNamespace+"/"+cfg.LeaseName,
	)

	if err := mgr.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start manager")
	}

	return nil
}
