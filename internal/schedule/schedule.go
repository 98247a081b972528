// In file: internal/schedule/schedule.go

// Package schedule runs agents on cron schedules. Overlapping runs of the same
// entry are skipped and panics are recovered so one bad run cannot stop the
// scheduler.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"goa.design/clue/log"
)

// ErrUnknownEntry is returned by Trigger for a name that was never added.
var ErrUnknownEntry = errors.New("unknown schedule entry")

// Job is one scheduled unit of work. Errors are logged, never retried.
type Job func(ctx context.Context) error

// Entry describes a registered job.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

// Scheduler wraps cron.Cron with named entries and a base context.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]registered
}

type registered struct {
	id   cron.EntryID
	spec string
	job  Job
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	location *time.Location
}

// WithLocation sets the zone for specs without a CRON_TZ prefix. UTC by default.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

// New returns a stopped scheduler. Jobs run with a context derived from ctx
// that is cancelled by Stop.
func New(ctx context.Context, opts ...Option) *Scheduler {
	o := options{location: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(ctx)
	logger := cronLogger{ctx: ctx}
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		cron: cron.New(
			cron.WithLocation(o.location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		entries: make(map[string]registered),
	}
}

// Add registers job under name with a standard five-field spec or a
// descriptor such as @weekly. Names must be unique.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if job == nil {
		return fmt.Errorf("schedule %s: job is nil", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("schedule %s: already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.entries[name] = registered{id: id, spec: spec, job: job}
	log.Info(s.ctx, log.KV{K: "msg", V: "job scheduled"}, log.KV{K: "name", V: name}, log.KV{K: "spec", V: spec})
	return nil
}

// Entries lists the registered jobs sorted by name. Next is zero until the
// scheduler has been started.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for name, r := range s.entries {
		e := s.cron.Entry(r.id)
		out = append(out, Entry{Name: name, Spec: r.spec, Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Trigger runs the named job now, synchronously, outside the cron chain.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	r, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEntry, name)
	}
	return r.job(log.With(ctx, log.KV{K: "schedule", V: name}))
}

// Start begins firing jobs in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, cancels running jobs and waits for them to return
// or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the first activation of spec strictly after from, evaluated in
// loc unless the spec carries its own CRON_TZ.
func Next(spec string, from time.Time, loc *time.Location) (time.Time, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, err
	}
	if loc != nil {
		from = from.In(loc)
	}
	return sched.Next(from), nil
}

// --- Helper Functions ---

func (s *Scheduler) run(name string, job Job) {
	ctx := log.With(s.ctx, log.KV{K: "schedule", V: name})
	start := time.Now()
	log.Info(ctx, log.KV{K: "msg", V: "scheduled job started"})
	if err := job(ctx); err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "scheduled job failed"})
		return
	}
	log.Info(ctx, log.KV{K: "msg", V: "scheduled job finished"}, log.KV{K: "duration_ms", V: time.Since(start).Milliseconds()})
}

// cronLogger routes cron's own messages to clue.
type cronLogger struct {
	ctx context.Context
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug(l.ctx, append([]log.Fielder{log.KV{K: "msg", V: "cron: " + msg}}, fields(keysAndValues)...)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error(l.ctx, err, append([]log.Fielder{log.KV{K: "msg", V: "cron: " + msg}}, fields(keysAndValues)...)...)
}

func fields(keysAndValues []any) []log.Fielder {
	out := make([]log.Fielder, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, log.KV{K: fmt.Sprint(keysAndValues[i]), V: keysAndValues[i+1]})
	}
	return out
}
