package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistration_LifecycleHappyPath(t *testing.T) {
	reg := New()
	assert.Equal(t, StateNew, reg.State())

	require.NoError(t, reg.BeginInstall())
	assert.Equal(t, StateInstalling, reg.State())

	require.NoError(t, reg.FinishInstall())
	assert.Equal(t, StateInstalled, reg.State())

	require.NoError(t, reg.BeginActivate())
	assert.Equal(t, StateActivating, reg.State())

	require.NoError(t, reg.FinishActivate())
	assert.Equal(t, StateActivated, reg.State())
	assert.True(t, reg.Active())
}

func TestRegistration_InvalidTransitions(t *testing.T) {
	reg := New()

	err := reg.BeginActivate()
	var invalid *ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StateNew, invalid.From)
	assert.Equal(t, StateActivating, invalid.To)

	// Skipping FinishInstall is rejected too.
	require.NoError(t, reg.BeginInstall())
	assert.Error(t, reg.BeginActivate())
	assert.Error(t, reg.FinishActivate())
}

func TestRegistration_UnregisterFromAnyState(t *testing.T) {
	for _, setup := range []func(*Registration){
		func(*Registration) {},
		func(r *Registration) { _ = r.BeginInstall() },
		func(r *Registration) {
			_ = r.BeginInstall()
			_ = r.FinishInstall()
			_ = r.BeginActivate()
			_ = r.FinishActivate()
		},
	} {
		reg := New()
		setup(reg)
		reg.Unregister()
		assert.Equal(t, StateRedundant, reg.State())
		assert.False(t, reg.Active())

		// Terminal: nothing moves out of redundant.
		assert.Error(t, reg.BeginInstall())
		assert.Equal(t, StateRedundant, reg.State())
	}
}

func TestDispatch_RoutesByKind(t *testing.T) {
	reg := New()

	var got Event
	reg.On(EventSync, func(_ context.Context, event Event, _ *Work) error {
		got = event
		return nil
	})

	work, err := reg.Dispatch(context.Background(), Event{Kind: EventSync, Tag: "sync-points"})
	require.NoError(t, err)
	require.NoError(t, work.Wait())
	assert.Equal(t, "sync-points", got.Tag)
}

func TestDispatch_NoHandler(t *testing.T) {
	reg := New()

	_, err := reg.Dispatch(context.Background(), Event{Kind: EventPush})
	var noHandler *ErrNoHandler
	require.ErrorAs(t, err, &noHandler)
	assert.Equal(t, EventPush, noHandler.Kind)
}

func TestDispatch_HandlerError(t *testing.T) {
	reg := New()
	boom := errors.New("boom")
	reg.On(EventMessage, func(context.Context, Event, *Work) error {
		return boom
	})

	work, err := reg.Dispatch(context.Background(), Event{Kind: EventMessage, Message: "SKIP_WAITING"})
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, work)
	assert.NoError(t, work.Wait())
}

func TestWork_CollectsBackgroundTasks(t *testing.T) {
	work := NewWork()

	var mu sync.Mutex
	var done []int
	for i := 0; i < 5; i++ {
		i := i
		work.Go(func() error {
			mu.Lock()
			done = append(done, i)
			mu.Unlock()
			return nil
		})
	}

	require.NoError(t, work.Wait())
	assert.Len(t, done, 5)
}

func TestWork_JoinsErrors(t *testing.T) {
	work := NewWork()
	first := errors.New("first")
	second := errors.New("second")

	work.Go(func() error { return first })
	work.Go(func() error { return nil })
	work.Go(func() error { return second })

	err := work.Wait()
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}

func TestWork_EmptyWait(t *testing.T) {
	assert.NoError(t, NewWork().Wait())
}
