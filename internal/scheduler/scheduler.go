package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"MarketSession/internal/model"

	"github.com/robfig/cron/v3"
)

var (
	ErrStarted        = errors.New("scheduler already started")
	ErrUnknownTrigger = errors.New("unknown trigger")
	ErrInvalidRule    = errors.New("invalid trigger rule")
)

// Handler is the body of one trigger firing. Calendar handlers run once per
// firing; continuous handlers run once for the scheduler lifetime and only
// return on cancellation or an unrecoverable fault.
type Handler func(ctx context.Context) error

type ruleKind int

const (
	calendarRule ruleKind = iota
	continuousRule
)

// Rule tells the scheduler when a trigger fires.
type Rule struct {
	kind ruleKind
	spec string
}

// Calendar fires at every instant matching a six-field cron spec (seconds first).
func Calendar(spec string) Rule { return Rule{kind: calendarRule, spec: spec} }

// DailyAt fires once a day at second 0 of tod.
func DailyAt(tod model.TimeOfDay) Rule { return Calendar(tod.DailyCron()) }

// Continuous starts the handler once when the scheduler starts.
func Continuous() Rule { return Rule{kind: continuousRule} }

func (r Rule) String() string {
	if r.kind == continuousRule {
		return "continuous"
	}
	return r.spec
}

// Trigger binds a named handler to a rule.
type Trigger struct {
	Name    string
	Rule    Rule
	Handler Handler
}

// Scheduler owns all timing. It is built once at startup, every trigger is
// registered before Start, and no registration is accepted afterwards.
// A calendar trigger never overlaps itself: a firing that arrives while the
// previous one is still running is skipped, not queued.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	started   bool
	entries   map[string]cron.EntryID
	loops     []Trigger
	onFailure func(name string, err error)

	fatal chan error
	wg    sync.WaitGroup
}

// New creates a Scheduler whose calendar rules are evaluated in loc.
func New(ctx context.Context, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// OnFailure sets a callback invoked after a calendar firing fails. Must be called before Start.
func (s *Scheduler) OnFailure(fn func(name string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = fn
}

// Register adds a trigger.
func (s *Scheduler) Register(t Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("register %s: %w", t.Name, ErrStarted)
	}
	if t.Name == "" || t.Handler == nil {
		return fmt.Errorf("register %q: name and handler are required: %w", t.Name, ErrInvalidRule)
	}
	if _, ok := s.entries[t.Name]; ok {
		return fmt.Errorf("register %s: duplicate trigger name: %w", t.Name, ErrInvalidRule)
	}
	for _, l := range s.loops {
		if l.Name == t.Name {
			return fmt.Errorf("register %s: duplicate trigger name: %w", t.Name, ErrInvalidRule)
		}
	}

	switch t.Rule.kind {
	case continuousRule:
		s.loops = append(s.loops, t)
	case calendarRule:
		id, err := s.cron.AddJob(t.Rule.spec, s.calendarJob(t))
		if err != nil {
			return fmt.Errorf("register %s (%s): %v: %w", t.Name, t.Rule.spec, err, ErrInvalidRule)
		}
		s.entries[t.Name] = id
	default:
		return fmt.Errorf("register %s: %w", t.Name, ErrInvalidRule)
	}
	log.Printf("[INFO] registered trigger %s (%s)", t.Name, t.Rule)
	return nil
}

// Start starts calendar triggers and launches every continuous trigger once.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	s.started = true
	s.fatal = make(chan error, len(s.loops)+1)

	s.cron.Start()
	for _, t := range s.loops {
		s.wg.Add(1)
		go s.runLoop(t)
	}

	for name, id := range s.entries {
		log.Printf("[INFO] trigger %s next firing at %s", name, s.cron.Entry(id).Next.Format(time.DateTime))
	}
	log.Println("[INFO] scheduler started")
	return nil
}

// Stop cancels continuous triggers and waits for in-flight firings to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	s.cancel()
	if !started {
		return
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	log.Println("[INFO] scheduler stopped")
}

// Fatal delivers the error of a continuous trigger that gave up. A supervisor
// is expected to stop the process on receipt. Nil before Start.
func (s *Scheduler) Fatal() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// Fire runs a calendar trigger now, through the same no-overlap guard as its
// scheduled firings. It blocks until the firing finishes or is skipped.
func (s *Scheduler) Fire(name string) error {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("fire %s: %w", name, ErrUnknownTrigger)
	}
	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return fmt.Errorf("fire %s: %w", name, ErrUnknownTrigger)
	}
	entry.WrappedJob.Run()
	return nil
}

// Next returns the next scheduled instant of a calendar trigger. Zero before Start.
func (s *Scheduler) Next(name string) (time.Time, error) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, fmt.Errorf("next %s: %w", name, ErrUnknownTrigger)
	}
	return s.cron.Entry(id).Next, nil
}

func (s *Scheduler) calendarJob(t Trigger) cron.Job {
	return cron.FuncJob(func() {
		log.Printf("[INFO] %s started", t.Name)
		begin := time.Now()
		if err := runHandler(s.ctx, t.Handler); err != nil {
			log.Printf("[ERROR] %s failed after %v: %v", t.Name, time.Since(begin).Round(time.Millisecond), err)
			s.mu.Lock()
			fn := s.onFailure
			s.mu.Unlock()
			if fn != nil {
				fn(t.Name, err)
			}
			return
		}
		log.Printf("[INFO] %s finished in %v", t.Name, time.Since(begin).Round(time.Millisecond))
	})
}

func (s *Scheduler) runLoop(t Trigger) {
	defer s.wg.Done()
	log.Printf("[INFO] %s started", t.Name)
	err := runHandler(s.ctx, t.Handler)
	if s.ctx.Err() != nil {
		log.Printf("[INFO] %s stopped", t.Name)
		return
	}
	if err == nil {
		err = errors.New("continuous trigger returned")
	}
	log.Printf("[FATAL] %s: %v", t.Name, err)
	s.fatal <- fmt.Errorf("%s: %w", t.Name, err)
}

func runHandler(ctx context.Context, h Handler) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return h(ctx)
}

// cronLogger routes robfig/cron diagnostics to the standard logger. Only
// skipped firings are worth an info line; the rest is scheduler chatter.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		log.Printf("[WARN] cron: firing skipped, previous run still in progress %v", keysAndValues)
	}
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Printf("[ERROR] cron: %s: %v %v", msg, err, keysAndValues)
}
