package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/induction/config"
	"github.com/kilianp07/induction/core/logger"
	coremon "github.com/kilianp07/induction/core/monitoring"
	"github.com/kilianp07/induction/internal/eventbus"
)

type triggerKind string

const (
	triggerPlan    triggerKind = "plan"
	triggerExecute triggerKind = "execute"
)

type trigger struct {
	kind triggerKind
	at   time.Time
}

// runner performs the work behind each trigger.
type runner interface {
	PlanAll(ctx context.Context, at time.Time) map[string]error
	ExecuteAll(ctx context.Context, at time.Time) map[string]error
}

// scheduler turns cron ticks into triggers handled one at a time by a
// single worker, so a slow nightly run never overlaps the next trigger.
type scheduler struct {
	c        *cron.Cron
	triggers *eventbus.TypedBus[trigger]
	run      runner
	log      logger.Logger
	wg       sync.WaitGroup
}

func newScheduler(cfg config.PlanningConfig, r runner, log logger.Logger) (*scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &scheduler{
		c:        cron.New(cron.WithParser(parser), cron.WithLocation(cfg.Location())),
		triggers: eventbus.NewTyped[trigger](4),
		run:      r,
		log:      logger.OrNop(log),
	}
	s.triggers.OnDrop(func(t trigger) {
		s.log.Warnf("%s trigger at %s dropped: worker backlog full", t.kind, t.at.Format(time.RFC3339))
	})
	for kind, expr := range map[triggerKind]string{triggerPlan: cfg.PlanCron, triggerExecute: cfg.ExecuteCron} {
		kind := kind
		if _, err := s.c.AddFunc(expr, func() { s.Fire(kind, time.Now()) }); err != nil {
			return nil, fmt.Errorf("%s cron %q: %w", kind, expr, err)
		}
	}
	return s, nil
}

// Fire queues a trigger as if the cron entry ticked at the given time.
func (s *scheduler) Fire(kind triggerKind, at time.Time) {
	s.triggers.Publish(trigger{kind: kind, at: at})
}

// Start subscribes the worker and starts the cron.
func (s *scheduler) Start(ctx context.Context) {
	sub := s.triggers.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer coremon.Recover(map[string]string{"module": "scheduler"})
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-sub:
				if !ok {
					return
				}
				s.handle(ctx, t)
			}
		}
	}()
	s.c.Start()
}

func (s *scheduler) handle(ctx context.Context, t trigger) {
	var errs map[string]error
	switch t.kind {
	case triggerPlan:
		errs = s.run.PlanAll(ctx, t.at)
	case triggerExecute:
		errs = s.run.ExecuteAll(ctx, t.at)
	}
	s.log.Infof("%s trigger at %s done, %d depots failed", t.kind, t.at.Format(time.RFC3339), len(errs))
}

// Stop halts the cron and waits for the running trigger to finish.
func (s *scheduler) Stop() {
	<-s.c.Stop().Done()
	s.triggers.Close()
	s.wg.Wait()
}
