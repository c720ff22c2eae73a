// Package leader implements lease-based leader election publishing a single
// shared leadership flag.
//
// The elector is the only writer of the flag; reconcilers read it once at
// the top of each call. A failed acquire or renew attempt never demotes the
// local replica by itself: the flag keeps its last value and the lease TTL
// is what eventually expires a stale holder.
package leader

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/Intreecom/i2g-operator/internal/metrics"
)

const (
	// DefaultTTL is the lease duration after which a silent holder is
	// considered gone.
	DefaultTTL = 15 * time.Second

	// DefaultPollInterval is the acquire-or-renew cadence. Must be shorter
	// than the TTL or the holder would expire its own lease.
	DefaultPollInterval = 5 * time.Second
)

// State is the shared leadership flag. The elector writes it, reconcilers
// only read it.
type State struct {
	leader atomic.Bool
}

// IsLeader reports whether this replica currently believes it holds the
// lease.
func (s *State) IsLeader() bool {
	return s.leader.Load()
}

// Set records the current leadership verdict. Only the elector should call
// this in production.
func (s *State) Set(leading bool) {
	s.leader.Store(leading)
}

// Identity returns a stable holder identity: the pod hostname when
// available, else a process-lifetime random value. Identity churn across
// restarts is acceptable because a stale lease expires under its TTL.
func Identity() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "i2g-operator-" + uuid.NewString()
	}

	return hostname
}

// Elector runs the acquire-or-renew loop for a named Lease.
type Elector struct {
	// Client performs the Lease reads and writes.
	Client client.Client

	// State is the flag published to reconcilers.
	State *State

	// LeaseName and LeaseNamespace locate the coordination/v1 Lease.
	LeaseName      string
	LeaseNamespace string

	// HolderIdentity is this replica's identity in the lease.
	HolderIdentity string

	// TTL and PollInterval default to DefaultTTL and DefaultPollInterval.
	TTL          time.Duration
	PollInterval time.Duration

	// Metrics records attempt outcomes and the leadership gauge. Optional.
	Metrics metrics.Collector

	// now is overridable for tests.
	now func() time.Time
}

// Start runs the election loop until the context is cancelled. It implements
// manager.Runnable; the process treats an early return as fatal because a
// dead elector would let a non-leader keep writing.
func (e *Elector) Start(ctx context.Context) error {
	if e.TTL == 0 {
		e.TTL = DefaultTTL
	}

	if e.PollInterval == 0 {
		e.PollInterval = DefaultPollInterval
	}

	logger := slog.Default().With(
		"component", "leader-elector",
		"lease", e.LeaseNamespace+"/"+e.LeaseName,
		"identity", e.HolderIdentity,
	)

	logger.Info("starting leader election loop",
		"ttl", e.TTL.String(),
		"interval", e.PollInterval.String(),
	)

	ticker := time.NewTicker(e.PollInterval)
	defer ticker.Stop()

	for {
		e.tick(ctx, logger)

		select {
		case <-ctx.Done():
			e.State.Set(false)

			return nil
		case <-ticker.C:
		}
	}
}

// NeedLeaderElection marks the elector as an always-on runnable. It is the
// election, so it must run on every replica.
func (e *Elector) NeedLeaderElection() bool {
	return false
}

func (e *Elector) tick(ctx context.Context, logger *slog.Logger) {
	wasLeader := e.State.IsLeader()

	holding, err := e.tryAcquireOrRenew(ctx)
	if err != nil {
		// Fail open: keep the previous flag value on a transient fault and
		// let the TTL deal with a genuinely lost lease.
		logger.Warn("failed to acquire or renew lease", "error", err.Error())

		if e.Metrics != nil {
			e.Metrics.RecordLeaseAttempt(ctx, metrics.LeaseAttemptError)
		}

		return
	}

	e.State.Set(holding)

	if e.Metrics != nil {
		e.Metrics.RecordLeaseAttempt(ctx, leaseAttemptStatus(holding))
		e.Metrics.RecordLeadership(ctx, holding)
	}

	if holding && !wasLeader {
		logger.Info("acquired leadership lease")
	}

	if !holding && wasLeader {
		logger.Info("lost leadership lease")
	}
}

// tryAcquireOrRenew performs one election round. It returns whether this
// replica holds the lease after the round; an error means the round did not
// complete and nothing should be concluded from it.
func (e *Elector) tryAcquireOrRenew(ctx context.Context) (bool, error) {
	now := metav1.NewMicroTime(e.timeNow())

	var lease coordinationv1.Lease

	err := e.Client.Get(ctx, types.NamespacedName{Name: e.LeaseName, Namespace: e.LeaseNamespace}, &lease)
	if apierrors.IsNotFound(err) {
		return e.createLease(ctx, now)
	}

	if err != nil {
		return false, errors.Wrap(err, "failed to read lease")
	}

	holder := ""
	if lease.Spec.HolderIdentity != nil {
		holder = *lease.Spec.HolderIdentity
	}

	switch {
	case holder == e.HolderIdentity:
		lease.Spec.RenewTime = &now
	case e.leaseExpired(&lease, now.Time):
		transitions := int32(0)
		if lease.Spec.LeaseTransitions != nil {
			transitions = *lease.Spec.LeaseTransitions
		}

		transitions++

		identity := e.HolderIdentity
		lease.Spec.HolderIdentity = &identity
		lease.Spec.AcquireTime = &now
		lease.Spec.RenewTime = &now
		lease.Spec.LeaseTransitions = &transitions
	default:
		// Another holder with an unexpired lease. That is a completed round,
		// not a fault.
		return false, nil
	}

	if err := e.Client.Update(ctx, &lease); err != nil {
		return false, errors.Wrap(err, "failed to update lease")
	}

	return true, nil
}

func (e *Elector) createLease(ctx context.Context, now metav1.MicroTime) (bool, error) {
	identity := e.HolderIdentity
	ttlSeconds := int32(e.TTL.Seconds())

	lease := coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{
			Name:      e.LeaseName,
			Namespace: e.LeaseNamespace,
		},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       &identity,
			LeaseDurationSeconds: &ttlSeconds,
			AcquireTime:          &now,
			RenewTime:            &now,
		},
	}

	if err := e.Client.Create(ctx, &lease); err != nil {
		return false, errors.Wrap(err, "failed to create lease")
	}

	return true, nil
}

func (e *Elector) leaseExpired(lease *coordinationv1.Lease, now time.Time) bool {
	renewTime := lease.Spec.RenewTime
	if renewTime == nil {
		return true
	}

	ttl := e.TTL
	if lease.Spec.LeaseDurationSeconds != nil {
		ttl = time.Duration(*lease.Spec.LeaseDurationSeconds) * time.Second
	}

	return renewTime.Add(ttl).Before(now)
}

func (e *Elector) timeNow() time.Time {
	if e.now != nil {
		return e.now()
	}

	return time.Now()
}

func leaseAttemptStatus(holding bool) string {
	if holding {
		return metrics.LeaseAttemptAcquired
	}

	return metrics.LeaseAttemptLost
}
