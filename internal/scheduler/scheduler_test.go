// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/wonderland/internal/types"
)

type recordingEmitter struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingEmitter) EmitCronTick(_ context.Context, name string) (*types.StimulusEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return &types.StimulusEvent{Type: types.StimulusCronTick}, nil
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

type countingPoller struct {
	calls atomic.Int32
	err   error
}

func (p *countingPoller) Poll(context.Context, string) (int, error) {
	p.calls.Add(1)
	return 1, p.err
}

type countingExpirer struct{ calls atomic.Int32 }

func (e *countingExpirer) ExpireApprovals(time.Time) []*types.ApprovalQueueEntry {
	e.calls.Add(1)
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			t.Fatalf("%s did not happen within 2.5s", what)
		case <-ticker.C:
			if cond() {
				return
			}
		}
	}
}

func TestSchedulerEmitsCronTicks(t *testing.T) {
	em := &recordingEmitter{}
	sched := New(em, Options{Schedules: []Schedule{{Name: "browse", Spec: "* * * * * *"}}})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	waitFor(t, "cron tick", func() bool { return em.count() > 0 })
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.names[0] != "browse" {
		t.Errorf("expected schedule name browse, got %q", em.names[0])
	}
}

func TestSchedulerPollsNewsAndExpires(t *testing.T) {
	poller := &countingPoller{err: errors.New("upstream down")}
	expirer := &countingExpirer{}
	sched := New(&recordingEmitter{}, Options{
		NewsSources: []types.WorldFeedSource{
			{Name: "HackerNews", Interval: time.Second, Enabled: true},
			{Name: "Disabled", Interval: time.Second},
		},
		Poller:     poller,
		Expirer:    expirer,
		ExpireSpec: "@every 1s",
	})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	want := []string{"news:HackerNews", "approvals:expire"}
	got := sched.Entries()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected entries %v, got %v", want, got)
	}
	waitFor(t, "news poll", func() bool { return poller.calls.Load() > 0 })
	waitFor(t, "approval expiry", func() bool { return expirer.calls.Load() > 0 })
}

func TestSchedulerSkipsInvalidSchedules(t *testing.T) {
	em := &recordingEmitter{}
	sched := New(em, Options{Schedules: []Schedule{
		{Name: "broken", Spec: "not a cron"},
		{Name: "", Spec: "* * * * * *"},
		{Name: "empty"},
	}})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if n := len(sched.Entries()); n != 0 {
		t.Errorf("expected no entries, got %d", n)
	}
	time.Sleep(1500 * time.Millisecond)
	if n := em.count(); n != 0 {
		t.Errorf("expected 0 ticks, got %d", n)
	}
}

func TestSchedulerReload(t *testing.T) {
	em := &recordingEmitter{}
	sched := New(em, Options{})
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	if err := sched.Reload(Options{Schedules: []Schedule{{Name: "daily", Spec: "@daily"}}}); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if got := sched.Entries(); len(got) != 1 || got[0] != "daily" {
		t.Errorf("unexpected entries after reload: %v", got)
	}
}
