package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"MarketSession/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) error { return nil }

func TestDailyAtSpec(t *testing.T) {
	tod, err := model.ParseTimeOfDay("15:10")
	require.NoError(t, err)
	assert.Equal(t, "0 10 15 * * *", DailyAt(tod).String())
	assert.Equal(t, "continuous", Continuous().String())
}

func TestRegisterValidation(t *testing.T) {
	s := New(context.Background(), time.UTC)
	defer s.Stop()

	assert.ErrorIs(t, s.Register(Trigger{Name: "", Rule: Calendar("0 0 0 * * *"), Handler: noop}), ErrInvalidRule)
	assert.ErrorIs(t, s.Register(Trigger{Name: "x", Rule: Calendar("0 0 0 * * *")}), ErrInvalidRule)
	assert.ErrorIs(t, s.Register(Trigger{Name: "bad", Rule: Calendar("every day"), Handler: noop}), ErrInvalidRule)

	require.NoError(t, s.Register(Trigger{Name: "open", Rule: Calendar("0 0 9 * * *"), Handler: noop}))
	assert.ErrorIs(t, s.Register(Trigger{Name: "open", Rule: Continuous(), Handler: noop}), ErrInvalidRule)
}

func TestRegisterAfterStartRejected(t *testing.T) {
	s := New(context.Background(), time.UTC)
	require.NoError(t, s.Start())
	defer s.Stop()

	err := s.Register(Trigger{Name: "late", Rule: Calendar("0 0 9 * * *"), Handler: noop})
	assert.ErrorIs(t, err, ErrStarted)
	assert.ErrorIs(t, s.Start(), ErrStarted)
}

func TestFireUnknown(t *testing.T) {
	s := New(context.Background(), time.UTC)
	defer s.Stop()
	assert.ErrorIs(t, s.Fire("nope"), ErrUnknownTrigger)
	_, err := s.Next("nope")
	assert.ErrorIs(t, err, ErrUnknownTrigger)
}

func TestFailedFiringDoesNotStopNextFiring(t *testing.T) {
	s := New(context.Background(), time.UTC)
	defer s.Stop()

	var calls atomic.Int32
	var failures []string
	s.OnFailure(func(name string, err error) { failures = append(failures, name) })
	require.NoError(t, s.Register(Trigger{
		Name: "close",
		Rule: Calendar("0 10 15 * * *"),
		Handler: func(context.Context) error {
			if calls.Add(1) == 1 {
				return errors.New("rolled back")
			}
			return nil
		},
	}))

	require.NoError(t, s.Fire("close"))
	require.NoError(t, s.Fire("close"))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"close"}, failures)
}

func TestPanickingFiringIsContained(t *testing.T) {
	s := New(context.Background(), time.UTC)
	defer s.Stop()

	var calls atomic.Int32
	require.NoError(t, s.Register(Trigger{
		Name: "grant",
		Rule: Calendar("0 15 0 * * *"),
		Handler: func(context.Context) error {
			calls.Add(1)
			panic("nil ledger")
		},
	}))

	require.NoError(t, s.Fire("grant"))
	require.NoError(t, s.Fire("grant"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCalendarTriggerNeverOverlaps(t *testing.T) {
	s := New(context.Background(), time.UTC)
	defer s.Stop()

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Register(Trigger{
		Name: "create_robot",
		Rule: Calendar("35 */10 * * * *"),
		Handler: func(context.Context) error {
			calls.Add(1)
			entered <- struct{}{}
			<-release
			return nil
		},
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Fire("create_robot")
	}()
	<-entered

	// the second firing arrives while the first is still running and is dropped
	require.NoError(t, s.Fire("create_robot"))
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	wg.Wait()

	go func() { <-entered }()
	require.NoError(t, s.Fire("create_robot"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCalendarTriggerFiresOnSchedule(t *testing.T) {
	s := New(context.Background(), time.UTC)
	fired := make(chan struct{}, 8)
	require.NoError(t, s.Register(Trigger{
		Name: "tick",
		Rule: Calendar("* * * * * *"),
		Handler: func(context.Context) error {
			fired <- struct{}{}
			return nil
		},
	}))
	require.NoError(t, s.Start())
	defer s.Stop()

	next, err := s.Next("tick")
	require.NoError(t, err)
	assert.False(t, next.IsZero())

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("calendar trigger did not fire")
	}
}

func TestContinuousTriggerStartsOnceAndStopsOnCancel(t *testing.T) {
	s := New(context.Background(), time.UTC)

	var starts atomic.Int32
	running := make(chan struct{})
	require.NoError(t, s.Register(Trigger{
		Name: "robot_trade",
		Rule: Continuous(),
		Handler: func(ctx context.Context) error {
			starts.Add(1)
			close(running)
			<-ctx.Done()
			return ctx.Err()
		},
	}))
	require.NoError(t, s.Start())
	<-running

	s.Stop()
	assert.Equal(t, int32(1), starts.Load())
	select {
	case err := <-s.Fatal():
		t.Fatalf("unexpected fatal: %v", err)
	default:
	}
}

func TestContinuousTriggerFaultEscalates(t *testing.T) {
	s := New(context.Background(), time.UTC)
	defer s.Stop()

	boom := errors.New("circuit open")
	require.NoError(t, s.Register(Trigger{
		Name:    "robot_trade",
		Rule:    Continuous(),
		Handler: func(context.Context) error { return boom },
	}))
	require.NoError(t, s.Start())

	select {
	case err := <-s.Fatal():
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "robot_trade")
	case <-time.After(time.Second):
		t.Fatal("no fatal escalation")
	}
}

func TestContinuousTriggerPanicEscalates(t *testing.T) {
	s := New(context.Background(), time.UTC)
	defer s.Stop()

	require.NoError(t, s.Register(Trigger{
		Name:    "robot_trade",
		Rule:    Continuous(),
		Handler: func(context.Context) error { panic("bad robot") },
	}))
	require.NoError(t, s.Start())

	select {
	case err := <-s.Fatal():
		assert.Contains(t, err.Error(), "bad robot")
	case <-time.After(time.Second):
		t.Fatal("no fatal escalation")
	}
}
