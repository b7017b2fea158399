// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/wonderland/internal/types"
)

// Emitter turns a fired schedule into a cron_tick stimulus.
type Emitter interface {
	EmitCronTick(ctx context.Context, scheduleName string) (*types.StimulusEvent, error)
}

// Poller fetches one news source and routes its new items.
type Poller interface {
	Poll(ctx context.Context, source string) (int, error)
}

// Expirer rejects approval entries whose timeout has elapsed.
type Expirer interface {
	ExpireApprovals(now time.Time) []*types.ApprovalQueueEntry
}

// Schedule is a named cron expression that emits a cron_tick.
type Schedule struct {
	Name string `json:"name" yaml:"name"`
	Spec string `json:"spec" yaml:"spec"`
}

// Options configures what the scheduler drives besides cron ticks.
type Options struct {
	Schedules []Schedule
	// NewsSources are polled every Interval when enabled.
	NewsSources []types.WorldFeedSource
	Poller      Poller
	Expirer     Expirer
	// ExpireSpec defaults to every minute.
	ExpireSpec string
	Now        func() time.Time
}

// Scheduler runs cron schedules that feed the network.
type Scheduler struct {
	emitter Emitter
	opts    Options

	mu      sync.Mutex
	cron    *cron.Cron
	entries []string
	ctx     context.Context
	cancel  context.CancelFunc
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler that emits cron ticks through emitter.
func New(emitter Emitter, opts Options) *Scheduler {
	if opts.ExpireSpec == "" {
		opts.ExpireSpec = "@every 1m"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		emitter: emitter,
		opts:    opts,
		cron:    cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers every schedule, news source and the approval expiry job,
// then starts the cron ticker. Invalid expressions are logged and skipped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.entries = nil

	for _, sched := range s.opts.Schedules {
		if sched.Spec == "" || sched.Name == "" {
			continue
		}
		name := sched.Name
		s.add(name, sched.Spec, func(ctx context.Context) {
			slog.Info("cron firing schedule", "name", name)
			if _, err := s.emitter.EmitCronTick(ctx, name); err != nil {
				slog.Error("emit cron tick failed", "name", name, "error", err)
			}
		})
	}

	if s.opts.Poller != nil {
		for _, src := range s.opts.NewsSources {
			if !src.Enabled || src.Interval <= 0 {
				continue
			}
			name := src.Name
			s.add("news:"+name, fmt.Sprintf("@every %s", src.Interval), func(ctx context.Context) {
				n, err := s.opts.Poller.Poll(ctx, name)
				if err != nil {
					slog.Warn("news poll failed", "source", name, "error", err)
					return
				}
				slog.Debug("news polled", "source", name, "items", n)
			})
		}
	}

	if s.opts.Expirer != nil {
		s.add("approvals:expire", s.opts.ExpireSpec, func(context.Context) {
			if expired := s.opts.Expirer.ExpireApprovals(s.opts.Now()); len(expired) > 0 {
				slog.Info("expired approvals", "count", len(expired))
			}
		})
	}

	s.cron.Start()
	return nil
}

// add must be called with mu held.
func (s *Scheduler) add(name, spec string, fn func(ctx context.Context)) {
	ctx := s.ctx
	_, err := s.cron.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	})
	if err != nil {
		slog.Error("invalid cron schedule", "name", name, "schedule", spec, "error", err)
		return
	}
	s.entries = append(s.entries, name)
	slog.Info("scheduled job", "name", name, "schedule", spec)
}

// Entries lists the names of the registered jobs in registration order.
func (s *Scheduler) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.entries...)
}

// Reload stops the existing cron, applies opts and starts again.
func (s *Scheduler) Reload(opts Options) error {
	s.Stop()
	s.mu.Lock()
	if opts.ExpireSpec == "" {
		opts.ExpireSpec = s.opts.ExpireSpec
	}
	if opts.Now == nil {
		opts.Now = s.opts.Now
	}
	s.opts = opts
	s.cron = cron.New(cron.WithParser(cronParser))
	s.mu.Unlock()
	return s.Start()
}

// Stop stops the cron ticker and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-c.Stop().Done()
}
