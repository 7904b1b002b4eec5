package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/induction/api/schedules"
	"github.com/kilianp07/induction/config"
	"github.com/kilianp07/induction/core/conflict"
	"github.com/kilianp07/induction/core/induction"
	coremetrics "github.com/kilianp07/induction/core/metrics"
	"github.com/kilianp07/induction/core/milp"
	coremon "github.com/kilianp07/induction/core/monitoring"
	"github.com/kilianp07/induction/core/planning"
	"github.com/kilianp07/induction/core/schedule"
	"github.com/kilianp07/induction/core/snapshot"
	"github.com/kilianp07/induction/infra/audit"
	"github.com/kilianp07/induction/infra/fleet"
	"github.com/kilianp07/induction/infra/logger"
	"github.com/kilianp07/induction/infra/metrics"
	"github.com/kilianp07/induction/infra/monitoring"
	"github.com/kilianp07/induction/infra/mqtt"
	"github.com/kilianp07/induction/infra/store"
	"github.com/kilianp07/induction/internal/eventbus"
)

// Service wires the planner with its stores, adapters and triggers.
type Service struct {
	Planner *planning.Planner

	cfg     *config.Config
	bus     eventbus.EventBus
	sink    coremetrics.MetricsSink
	mqtt    mqtt.Client
	closers []io.Closer
	logs    io.Closer
	log     logger.Logger
	now     func() time.Time
}

// setupLogging installs the process logger. It can be overridden in tests.
var setupLogging = logger.Setup

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logs, err := setupLogging(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	logg := logger.New("service")
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	svc := &Service{cfg: cfg, logs: logs, log: logg, now: time.Now}
	st, err := svc.openStore()
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	ledger, err := audit.NewLedger(cfg.Audit)
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("audit ledger: %w", err)
	}
	svc.track(ledger)

	src, err := fleet.NewSource(cfg.Planning.Fleet, logger.New("fleet"))
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("fleet source: %w", err)
	}
	if c, ok := src.(io.Closer); ok {
		svc.closers = append(svc.closers, c)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	svc.sink = sink

	if cfg.MQTT.Enabled {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.mqtt = client
	}

	bus := eventbus.New()
	busLog := logger.New("eventbus")
	bus.OnDrop(func(ev eventbus.Event) { busLog.Warnf("planning event %T dropped: subscriber too slow", ev) })
	svc.bus = bus
	planner, err := planning.NewPlanner(
		snapshot.NewBuilder(src, cfg.Policy, logger.New("snapshot")),
		induction.NewAdapter(milp.NewBranchAndBound(logger.New("milp")), cfg.Solver.Timeout(), logger.New("induction")),
		conflict.NewDetector(logger.New("conflict")),
		schedule.NewPublisher(st, ledger, logger.New("publisher")),
		svc.bus,
		logger.New("planner"),
	)
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("planner: %w", err)
	}
	planner.SetOperator(cfg.Planning.Operator)
	svc.Planner = planner
	return svc, nil
}

func (s *Service) openStore() (schedule.Store, error) {
	if s.cfg.Store.Backend != "sqlite" {
		return schedule.NewMemoryStore(), nil
	}
	st, err := store.NewSQLiteStore(s.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("schedule store: %w", err)
	}
	s.closers = append(s.closers, st)
	return st, nil
}

// track registers the ledgers that hold files or connections.
func (s *Service) track(l schedule.Ledger) {
	if multi, ok := l.(schedule.MultiLedger); ok {
		for _, m := range multi {
			s.track(m)
		}
		return
	}
	if c, ok := l.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
}

// Run starts the event consumers, HTTP servers and nightly triggers and
// blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if s.mqtt != nil {
		mqtt.StartSchedulePublisher(ctx, s.bus, s.mqtt, s.cfg.MQTT.TopicPrefix)
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, nil); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	go func() {
		if err := s.serveAPI(ctx); err != nil {
			s.log.Errorf("api server: %v", err)
		}
	}()

	sched, err := newScheduler(s.cfg.Planning, s, logger.New("scheduler"))
	if err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()
	s.log.Infof("planning %d depots on %q", len(s.cfg.Planning.Depots), s.cfg.Planning.PlanCron)
	<-ctx.Done()
	return nil
}

func (s *Service) serveAPI(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.API.Addr,
		Handler:           schedules.NewHandler(s.Planner, s.cfg.API.Token, s.cfg.API.PlanLimiter()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api server shutdown: %v", err)
		}
		cancel()
	}()
	s.log.Infof("serving planning API on %s", s.cfg.API.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// PlanAll runs the nightly planning of every configured depot for the
// operating day following at. Failures of one depot do not stop the others.
func (s *Service) PlanAll(ctx context.Context, at time.Time) map[string]error {
	day := s.cfg.Planning.OperatingDay(at)
	var (
		mu   sync.Mutex
		errs = make(map[string]error)
		g    errgroup.Group
	)
	g.SetLimit(max(s.cfg.Planning.Parallelism, 1))
	for _, depot := range s.cfg.Planning.Depots {
		g.Go(func() error {
			res, err := s.Planner.RunInductionPlanning(ctx, depot, day)
			if err != nil {
				s.log.Errorf("nightly planning %s %s: %v", depot, day.Format(time.DateOnly), err)
				mu.Lock()
				errs[depot] = err
				mu.Unlock()
				return nil
			}
			s.log.Infof("nightly planning %s %s: %s with %d conflicts", depot, day.Format(time.DateOnly), res.Code, len(res.Conflicts))
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// ExecuteAll marks the finalized schedules of the day containing at as
// executed. Depots without a schedule for that day are skipped.
func (s *Service) ExecuteAll(ctx context.Context, at time.Time) map[string]error {
	zero := 0
	today := s.cfg.Planning
	today.DayOffset = &zero
	day := today.OperatingDay(at)
	errs := make(map[string]error)
	for _, depot := range s.cfg.Planning.Depots {
		if _, err := s.Planner.MarkExecuted(ctx, depot, day); err != nil {
			if !errors.Is(err, schedule.ErrNotFound) {
				s.log.Warnf("mark executed %s %s: %v", depot, day.Format(time.DateOnly), err)
			}
			errs[depot] = err
		}
	}
	return errs
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.bus != nil {
		s.bus.Close()
	}
	if c, ok := s.mqtt.(*mqtt.PahoClient); ok {
		c.Disconnect()
	}
	closeSink(s.sink)
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	coremon.Flush(2 * time.Second)
	if s.logs != nil {
		if err := s.logs.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeSink(sink coremetrics.MetricsSink) {
	switch v := sink.(type) {
	case *coremetrics.MultiSink:
		for _, s := range v.Sinks {
			closeSink(s)
		}
	case interface{ Close() }:
		v.Close()
	}
}

// NextOperatingDay returns the day a nightly run triggered at t plans.
func (s *Service) NextOperatingDay(t time.Time) time.Time {
	return s.cfg.Planning.OperatingDay(t)
}
