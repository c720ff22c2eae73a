package route

import (
	"context"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/types"
)

// ErrUnresolvableBackend marks a backend whose service or named port could
// not be resolved. Callers skip the affected path and continue.
var ErrUnresolvableBackend = errors.New("unresolvable backend")

// resolvePortNumber returns the numeric port for a backend reference. A
// numeric port is used as-is; a named port is resolved by reading the
// referenced Service live, no cache, so a rename is picked up on the next
// pass.
func (b *Builder) resolvePortNumber(
	ctx context.Context,
	namespace string,
	serviceName string,
	port networkingv1.ServiceBackendPort,
) (int32, error) {
	if port.Number != 0 {
		return port.Number, nil
	}

	if port.Name == "" {
		return 0, errors.Wrapf(ErrUnresolvableBackend,
			"backend for service %q has neither port number nor port name", serviceName)
	}

	var svc corev1.Service

	err := b.Client.Get(ctx, types.NamespacedName{Name: serviceName, Namespace: namespace}, &svc)
	if err != nil {
		return 0, errors.Wrapf(ErrUnresolvableBackend,
			"failed to read service %s/%s: %v", namespace, serviceName, err)
	}

	for _, svcPort := range svc.Spec.Ports {
		if svcPort.Name == port.Name {
			return svcPort.Port, nil
		}
	}

	return 0, errors.Wrapf(ErrUnresolvableBackend,
		"service %s/%s has no port named %q", namespace, serviceName, port.Name)
}
