// Package controller contains the Ingress reconciler and the manager wiring.
//
// The reconciler is a per-Ingress state machine: leadership check, skip
// decision, upfront validation, per-host build and apply, requeue
// scheduling. Writes only happen on the replica holding the leadership
// lease, and all of them are server-side apply patches under one fixed
// field manager so an unchanged pass is a storage-layer no-op.
//
// Retry delays are flat per state. The dispatcher (controller-runtime)
// serializes concurrent reconciles of the same Ingress; the reconciler does
// not.
package controller
