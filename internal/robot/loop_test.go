package robot

import (
	"context"
	"errors"
	"testing"
	"time"

	"MarketSession/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errList = errors.New("db unavailable")

func calendar(t *testing.T) *model.TradingCalendar {
	t.Helper()
	p := func(s string) model.TimeOfDay {
		tod, err := model.ParseTimeOfDay(s)
		require.NoError(t, err)
		return tod
	}
	cal, err := model.NewTradingCalendar([]model.TradePeriod{
		{Begin: p("09:30"), End: p("11:30")},
		{Begin: p("13:00"), End: p("15:00")},
	}, 30*time.Minute, 10*time.Minute)
	require.NoError(t, err)
	return cal
}

func at(hour, min int) func() time.Time {
	return func() time.Time { return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC) }
}

// scriptedLister fails or succeeds per call according to script; once the
// script is exhausted it keeps succeeding.
type scriptedLister struct {
	agents []model.User
	script []bool // true = fail
	calls  int
}

func (s *scriptedLister) ListRobots(context.Context) ([]model.User, error) {
	i := s.calls
	s.calls++
	if i < len(s.script) && s.script[i] {
		return nil, errList
	}
	return s.agents, nil
}

type fakeDispatcher struct {
	fail       map[int64]bool
	panicOn    int64
	dispatched []int64
}

func (f *fakeDispatcher) Dispatch(_ context.Context, id int64) error {
	f.dispatched = append(f.dispatched, id)
	if id == f.panicOn {
		panic("strategy bug")
	}
	if f.fail[id] {
		return errors.New("no liquidity")
	}
	return nil
}

func agents(ids ...int64) []model.User {
	var out []model.User
	for _, id := range ids {
		out = append(out, model.User{ID: id, Account: "robot", IsRobot: true})
	}
	return out
}

func newTestLoop(t *testing.T, lister AgentLister, d Dispatcher, now func() time.Time) *Loop {
	return NewLoop(calendar(t), lister, d, Config{
		Interval:    20 * time.Second,
		BackoffUnit: time.Minute,
		MaxFailures: 10,
		Now:         now,
	})
}

func TestOneRobotFailureDoesNotStopOthers(t *testing.T) {
	d := &fakeDispatcher{fail: map[int64]bool{2: true}}
	l := newTestLoop(t, &scriptedLister{agents: agents(1, 2, 3)}, d, at(10, 0))

	require.NoError(t, l.cycle(context.Background()))
	assert.Equal(t, []int64{1, 2, 3}, d.dispatched)
	assert.Equal(t, 1, l.AgentFailures(2))
	assert.Zero(t, l.AgentFailures(1))

	require.NoError(t, l.cycle(context.Background()))
	assert.Equal(t, 2, l.AgentFailures(2))

	d.fail = nil
	require.NoError(t, l.cycle(context.Background()))
	assert.Zero(t, l.AgentFailures(2))
}

func TestRobotPanicIsContained(t *testing.T) {
	d := &fakeDispatcher{panicOn: 1}
	l := newTestLoop(t, &scriptedLister{agents: agents(1, 2)}, d, at(14, 0))

	require.NoError(t, l.cycle(context.Background()))
	assert.Equal(t, []int64{1, 2}, d.dispatched)
	assert.Equal(t, 1, l.AgentFailures(1))
}

func TestOutsideWindowSkipsDispatch(t *testing.T) {
	lister := &scriptedLister{agents: agents(1)}
	d := &fakeDispatcher{}
	l := newTestLoop(t, lister, d, at(16, 0))

	ctx, cancel := context.WithCancel(context.Background())
	var slept []time.Duration
	l.sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		cancel()
		return context.Canceled
	}

	err := l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, lister.calls)
	assert.Empty(t, d.dispatched)
	assert.Equal(t, []time.Duration{20 * time.Second}, slept)
}

func TestLunchBreakStillDispatches(t *testing.T) {
	lister := &scriptedLister{agents: agents(1)}
	d := &fakeDispatcher{}
	l := newTestLoop(t, lister, d, at(12, 0))
	require.NoError(t, l.cycle(context.Background()))
	assert.Equal(t, []int64{1}, d.dispatched)
}

func TestCircuitOpensAfterElevenFailures(t *testing.T) {
	script := make([]bool, 20)
	for i := range script {
		script[i] = true
	}
	lister := &scriptedLister{script: script}
	l := newTestLoop(t, lister, &fakeDispatcher{}, at(10, 0))

	var slept []time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	err := l.Run(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, errList)
	assert.Equal(t, 11, lister.calls)
	assert.Equal(t, 11, l.ConsecutiveFailures())

	require.Len(t, slept, 10)
	for i, d := range slept {
		assert.Equal(t, time.Duration(i+1)*time.Minute, d)
	}
}

type panickingLister struct{ calls int }

func (p *panickingLister) ListRobots(context.Context) ([]model.User, error) {
	p.calls++
	panic("nil account table")
}

func TestCyclePanicCountsAsFailure(t *testing.T) {
	lister := &panickingLister{}
	l := newTestLoop(t, lister, &fakeDispatcher{}, at(10, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		slept    []time.Duration
		failures int
	)
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		failures = l.ConsecutiveFailures()
		cancel()
		return ctx.Err()
	}

	err := l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, lister.calls)
	assert.Equal(t, 1, failures)
	assert.Equal(t, []time.Duration{time.Minute}, slept)
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	// ten failures, one success, ten more failures, then success
	var script []bool
	for i := 0; i < 10; i++ {
		script = append(script, true)
	}
	script = append(script, false)
	for i := 0; i < 10; i++ {
		script = append(script, true)
	}
	lister := &scriptedLister{agents: agents(1), script: script}
	l := newTestLoop(t, lister, &fakeDispatcher{}, at(10, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var slept []time.Duration
	successes := 0
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		if d == 20*time.Second {
			successes++
			assert.Zero(t, l.ConsecutiveFailures())
			if successes == 2 {
				cancel()
				return context.Canceled
			}
		}
		return nil
	}

	err := l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 22, lister.calls)
	assert.Equal(t, 2, successes)
	// the backoff restarts from one unit after the reset
	assert.Equal(t, time.Minute, slept[11])
	assert.Equal(t, 10*time.Minute, slept[20])
}

func TestCancelDuringBackoff(t *testing.T) {
	lister := &scriptedLister{script: []bool{true}}
	l := newTestLoop(t, lister, &fakeDispatcher{}, at(10, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleepCtxReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}
