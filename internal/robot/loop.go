// Package robot runs the long-lived loop that lets every robot account trade
// during the dispatch window.
package robot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"MarketSession/internal/model"
)

// ErrCircuitOpen is returned by Run once consecutive cycle faults exceed the ceiling.
var ErrCircuitOpen = errors.New("robot dispatch circuit open")

// AgentLister enumerates robot accounts.
type AgentLister interface {
	ListRobots(ctx context.Context) ([]model.User, error)
}

// Dispatcher runs one robot's strategy once. Failures are per robot.
type Dispatcher interface {
	Dispatch(ctx context.Context, agentID int64) error
}

// Config holds the loop cadence and breaker settings.
type Config struct {
	Interval    time.Duration // pause between cycles
	BackoffUnit time.Duration // backoff after the n-th consecutive fault is n*BackoffUnit
	MaxFailures int           // the loop gives up when the fault counter exceeds this
	Now         func() time.Time
}

// Loop dispatches robots once per cycle while inside the calendar's dispatch window.
type Loop struct {
	cal        *model.TradingCalendar
	agents     AgentLister
	dispatcher Dispatcher
	cfg        Config
	sleep      func(ctx context.Context, d time.Duration) error

	mu            sync.Mutex
	failures      int
	agentFailures map[int64]int
}

// NewLoop creates a Loop.
func NewLoop(cal *model.TradingCalendar, agents AgentLister, dispatcher Dispatcher, cfg Config) *Loop {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loop{
		cal:           cal,
		agents:        agents,
		dispatcher:    dispatcher,
		cfg:           cfg,
		sleep:         sleepCtx,
		agentFailures: make(map[int64]int),
	}
}

// Run loops until ctx is cancelled or the circuit opens. It never returns nil.
func (l *Loop) Run(ctx context.Context) error {
	for {
		err := l.cycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err == nil {
			l.setFailures(0)
			if err := l.sleep(ctx, l.cfg.Interval); err != nil {
				return err
			}
			continue
		}

		n := l.incFailures()
		log.Printf("[ERROR] robot dispatch cycle failed (%d/%d): %v", n, l.cfg.MaxFailures, err)
		if n > l.cfg.MaxFailures {
			return fmt.Errorf("%w after %d consecutive failures: %w", ErrCircuitOpen, n, err)
		}
		backoff := time.Duration(n) * l.cfg.BackoffUnit
		log.Printf("[WARN] robot dispatch backing off for %v", backoff)
		if err := l.sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

// ConsecutiveFailures returns the current cycle fault counter.
func (l *Loop) ConsecutiveFailures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

// AgentFailures returns how many dispatches in a row have failed for a robot.
func (l *Loop) AgentFailures(agentID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.agentFailures[agentID]
}

func (l *Loop) cycle(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in dispatch cycle: %v", p)
		}
	}()

	if !l.cal.InDispatchWindow(l.cfg.Now()) {
		return nil
	}

	agents, err := l.agents.ListRobots(ctx)
	if err != nil {
		return fmt.Errorf("list robots: %w", err)
	}

	var failed int
	for _, a := range agents {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !l.dispatchOne(ctx, a) {
			failed++
		}
	}
	log.Printf("[INFO] robot dispatch: %d robots, %d failed", len(agents), failed)
	return nil
}

func (l *Loop) dispatchOne(ctx context.Context, a model.User) (ok bool) {
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return l.dispatcher.Dispatch(ctx, a.ID)
	}()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.agentFailures[a.ID]++
		log.Printf("[WARN] robot %d (%s) dispatch failed, %d in a row: %v", a.ID, a.Account, l.agentFailures[a.ID], err)
		return false
	}
	delete(l.agentFailures, a.ID)
	return true
}

func (l *Loop) setFailures(n int) {
	l.mu.Lock()
	l.failures = n
	l.mu.Unlock()
}

func (l *Loop) incFailures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures++
	return l.failures
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
