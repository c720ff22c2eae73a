package leader

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	coordinationv1 "k8s.io/api/coordination/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"
)

const (
	testLeaseName      = "test-lease"
	testLeaseNamespace = "default"
)

func newTestElector(fakeClient client.Client, identity string, now time.Time) *Elector {
	return &Elector{
		Client:         fakeClient,
		State:          &State{},
		LeaseName:      testLeaseName,
		LeaseNamespace: testLeaseNamespace,
		HolderIdentity: identity,
		TTL:            15 * time.Second,
		PollInterval:   5 * time.Second,
		now:            func() time.Time { return now },
	}
}

func existingLease(holder string, renewTime time.Time, transitions int32) *coordinationv1.Lease {
	ttlSeconds := int32(15)
	renew := metav1.NewMicroTime(renewTime)

	return &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{
			Name:      testLeaseName,
			Namespace: testLeaseNamespace,
		},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       &holder,
			LeaseDurationSeconds: &ttlSeconds,
			RenewTime:            &renew,
			LeaseTransitions:     &transitions,
		},
	}
}

func getLease(t *testing.T, fakeClient client.Client) *coordinationv1.Lease {
	t.Helper()

	var lease coordinationv1.Lease
	require.NoError(t, fakeClient.Get(context.Background(), types.NamespacedName{
		Name:      testLeaseName,
		Namespace: testLeaseNamespace,
	}, &lease))

	return &lease
}

func TestElector_AcquireCreatesLease(t *testing.T) {
	t.Parallel()

	now := time.Now()
	fakeClient := fake.NewClientBuilder().WithScheme(clientgoscheme.Scheme).Build()
	elector := newTestElector(fakeClient, "replica-a", now)

	holding, err := elector.tryAcquireOrRenew(context.Background())
	require.NoError(t, err)
	assert.True(t, holding)

	lease := getLease(t, fakeClient)
	require.NotNil(t, lease.Spec.HolderIdentity)
	assert.Equal(t, "replica-a", *lease.Spec.HolderIdentity)
	require.NotNil(t, lease.Spec.LeaseDurationSeconds)
	assert.Equal(t, int32(15), *lease.Spec.LeaseDurationSeconds)
	require.NotNil(t, lease.Spec.RenewTime)
}

func TestElector_RenewOwnLease(t *testing.T) {
	t.Parallel()

	now := time.Now()
	staleRenew := now.Add(-4 * time.Second)
	fakeClient := fake.NewClientBuilder().
		WithScheme(clientgoscheme.Scheme).
		WithObjects(existingLease("replica-a", staleRenew, 3)).
		Build()
	elector := newTestElector(fakeClient, "replica-a", now)

	holding, err := elector.tryAcquireOrRenew(context.Background())
	require.NoError(t, err)
	assert.True(t, holding)

	lease := getLease(t, fakeClient)
	require.NotNil(t, lease.Spec.RenewTime)
	assert.True(t, lease.Spec.RenewTime.Time.After(staleRenew))
	require.NotNil(t, lease.Spec.LeaseTransitions)
	assert.Equal(t, int32(3), *lease.Spec.LeaseTransitions)
}

func TestElector_ContentionWithUnexpiredHolder(t *testing.T) {
	t.Parallel()

	now := time.Now()
	fakeClient := fake.NewClientBuilder().
		WithScheme(clientgoscheme.Scheme).
		WithObjects(existingLease("replica-b", now.Add(-2*time.Second), 1)).
		Build()
	elector := newTestElector(fakeClient, "replica-a", now)

	holding, err := elector.tryAcquireOrRenew(context.Background())
	require.NoError(t, err)
	assert.False(t, holding)

	// The other holder must be untouched.
	lease := getLease(t, fakeClient)
	require.NotNil(t, lease.Spec.HolderIdentity)
	assert.Equal(t, "replica-b", *lease.Spec.HolderIdentity)
}

func TestElector_TakesOverExpiredLease(t *testing.T) {
	t.Parallel()

	now := time.Now()
	fakeClient := fake.NewClientBuilder().
		WithScheme(clientgoscheme.Scheme).
		WithObjects(existingLease("replica-b", now.Add(-30*time.Second), 1)).
		Build()
	elector := newTestElector(fakeClient, "replica-a", now)

	holding, err := elector.tryAcquireOrRenew(context.Background())
	require.NoError(t, err)
	assert.True(t, holding)

	lease := getLease(t, fakeClient)
	require.NotNil(t, lease.Spec.HolderIdentity)
	assert.Equal(t, "replica-a", *lease.Spec.HolderIdentity)
	require.NotNil(t, lease.Spec.LeaseTransitions)
	assert.Equal(t, int32(2), *lease.Spec.LeaseTransitions)
	require.NotNil(t, lease.Spec.AcquireTime)
}

func TestElector_TickPublishesFlag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		lease      *coordinationv1.Lease
		wantLeader bool
	}{
		{
			name:       "no lease acquires and leads",
			lease:      nil,
			wantLeader: true,
		},
		{
			name:       "unexpired foreign lease demotes",
			lease:      existingLease("replica-b", time.Now(), 1),
			wantLeader: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			builder := fake.NewClientBuilder().WithScheme(clientgoscheme.Scheme)
			if tt.lease != nil {
				builder = builder.WithObjects(tt.lease)
			}

			elector := newTestElector(builder.Build(), "replica-a", time.Now())
			elector.State.Set(true)

			elector.tick(context.Background(), slog.Default())
			assert.Equal(t, tt.wantLeader, elector.State.IsLeader())
		})
	}
}

func TestElector_FailedAttemptsKeepFlag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		wasLeader bool
	}{
		{name: "leader stays leader through API faults", wasLeader: true},
		{name: "non-leader stays non-leader through API faults", wasLeader: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fakeClient := fake.NewClientBuilder().
				WithScheme(clientgoscheme.Scheme).
				WithInterceptorFuncs(interceptor.Funcs{
					Get: func(_ context.Context, _ client.WithWatch, _ client.ObjectKey, _ client.Object, _ ...client.GetOption) error {
						return errors.New("apiserver unavailable")
					},
				}).
				Build()

			elector := newTestElector(fakeClient, "replica-a", time.Now())
			elector.State.Set(tt.wasLeader)

			// Two consecutive failures; the flag must not move either time.
			elector.tick(context.Background(), slog.Default())
			assert.Equal(t, tt.wasLeader, elector.State.IsLeader())

			elector.tick(context.Background(), slog.Default())
			assert.Equal(t, tt.wasLeader, elector.State.IsLeader())
		})
	}
}

func TestElector_RenewAfterUpdateConflict(t *testing.T) {
	t.Parallel()

	updateErr := errors.New("update conflict")
	fakeClient := fake.NewClientBuilder().
		WithScheme(clientgoscheme.Scheme).
		WithObjects(existingLease("replica-a", time.Now(), 1)).
		WithInterceptorFuncs(interceptor.Funcs{
			Update: func(_ context.Context, _ client.WithWatch, _ client.Object, _ ...client.UpdateOption) error {
				return updateErr
			},
		}).
		Build()

	elector := newTestElector(fakeClient, "replica-a", time.Now())

	_, err := elector.tryAcquireOrRenew(context.Background())
	require.ErrorIs(t, err, updateErr)
}

func TestElector_StartResetsFlagOnShutdown(t *testing.T) {
	t.Parallel()

	fakeClient := fake.NewClientBuilder().WithScheme(clientgoscheme.Scheme).Build()
	elector := newTestElector(fakeClient, "replica-a", time.Now())
	elector.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, elector.Start(ctx))
	assert.False(t, elector.State.IsLeader())
}

func TestElector_NeedLeaderElection(t *testing.T) {
	t.Parallel()

	elector := &Elector{}
	assert.False(t, elector.NeedLeaderElection())
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	identity := Identity()
	assert.NotEmpty(t, identity)
}
