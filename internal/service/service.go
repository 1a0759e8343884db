// Package service is the accessibility service: it gates UI-change
// notifications, extracts screens on a worker pool, publishes snapshots and
// drives the announcement controller.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/v0xg/voiceassist/internal/assist"
	"github.com/v0xg/voiceassist/internal/executor"
	"github.com/v0xg/voiceassist/internal/gate"
	"github.com/v0xg/voiceassist/internal/platform"
	"github.com/v0xg/voiceassist/internal/prefs"
	"github.com/v0xg/voiceassist/internal/screen"
	"github.com/v0xg/voiceassist/internal/speech"
)

var (
	// ErrNotRunning is returned by operations that need a started service.
	ErrNotRunning = errors.New("service: not running")
	// ErrAlreadyRunning is returned by a second Start.
	ErrAlreadyRunning = errors.New("service: already running")
)

// Config sizes the extraction pipeline.
type Config struct {
	// Workers extracting screens. One keeps captures in arrival order.
	Workers int `yaml:"workers"`
	// QueueSize bounds pending extractions; overflow is dropped.
	QueueSize int `yaml:"queue_size"`
	// HistorySize is the snapshot history capacity.
	HistorySize int `yaml:"history_size"`
}

// DefaultConfig returns the stock sizes.
func DefaultConfig() Config {
	return Config{Workers: 1, QueueSize: 16, HistorySize: screen.DefaultHistorySize}
}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Platform platform.Platform
	Prefs    prefs.Store
	Speaker  speech.Speaker

	Gate     gate.Config
	Assist   assist.Config
	Executor executor.Options
}

type job struct {
	ev        platform.Event
	appSwitch bool
}

// Service owns the screen pipeline.
type Service struct {
	cfg        Config
	p          platform.Platform
	gate       *gate.Gate
	extractor  *screen.Extractor
	store      *screen.Store
	controller *assist.Controller
	exec       *executor.Executor
	log        *slog.Logger

	mu      sync.Mutex
	running bool
	jobs    chan job
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	processed atomic.Int64
	dropped   atomic.Int64
}

// New assembles a Service. It does nothing until Start.
func New(cfg Config, deps Deps, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	store := screen.NewStore(cfg.HistorySize)
	return &Service{
		cfg:        cfg,
		p:          deps.Platform,
		gate:       gate.New(deps.Gate, deps.Platform, deps.Prefs, log),
		extractor:  screen.NewExtractor(log),
		store:      store,
		controller: assist.New(deps.Assist, deps.Platform, deps.Prefs, store, deps.Speaker, log),
		exec:       executor.New(deps.Platform, deps.Executor, log),
		log:        log,
	}
}

// Start launches the extraction workers. A stopped service may be started
// again; it begins with no foreground app.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.controller.Reset()
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.jobs = make(chan job, s.cfg.QueueSize)
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, s.jobs)
	}
	s.running = true
	s.log.Info("service: started", "workers", s.cfg.Workers, "queue", s.cfg.QueueSize)
	return nil
}

// Stop drains the workers, cancels pending announcements and clears the
// screen state. Stopping a stopped service is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.jobs)
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.controller.Close()
	s.store.Clear()
	s.log.Info("service: stopped", "processed", s.processed.Load(), "dropped", s.dropped.Load())
}

// Running reports whether the service has been started and not stopped.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// HandleEvent gates one notification and queues an extraction if it passes.
// It never blocks: when the queue is full the event is dropped. It reports
// whether an extraction was queued.
func (s *Service) HandleEvent(ctx context.Context, ev platform.Event) bool {
	v := s.gate.Decide(ctx, ev)
	if !v.Accept {
		s.log.Debug("service: event rejected", "kind", ev.Kind, "package", ev.Package, "reason", v.Reason)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	select {
	case s.jobs <- job{ev: ev, appSwitch: v.AppSwitch}:
		return true
	default:
		s.dropped.Add(1)
		s.log.Warn("service: extraction queue full, dropping event", "kind", ev.Kind, "package", ev.Package)
		return false
	}
}

// Run feeds events into HandleEvent until ctx is done or events is closed.
func (s *Service) Run(ctx context.Context, events <-chan platform.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.HandleEvent(ctx, ev)
		}
	}
}

func (s *Service) worker(ctx context.Context, jobs <-chan job) {
	defer s.wg.Done()
	for j := range jobs {
		if ctx.Err() != nil {
			continue
		}
		s.process(ctx, j)
	}
}

func (s *Service) process(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("service: extraction panic", "package", j.ev.Package, "panic", r)
		}
	}()
	defer s.processed.Add(1)

	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("service: extraction failed", "package", j.ev.Package, "error", err)
	}
	if j.appSwitch {
		s.controller.OnAppSwitch(ctx, j.ev.Package)
	}
}

// Refresh extracts the active screen and publishes it. A capture cut short
// by a failing node is discarded.
func (s *Service) Refresh(ctx context.Context) error {
	snap, err := s.extractor.ExtractActive(ctx, s.p)
	if err != nil {
		return fmt.Errorf("service: refresh: %w", err)
	}
	s.store.Update(snap)
	s.log.Debug("service: screen updated", "package", snap.Package, "elements", len(snap.Elements), "id", snap.ID)
	return nil
}

// Store is the screen state.
func (s *Service) Store() *screen.Store { return s.store }

// CurrentScreen is the latest snapshot, or an empty placeholder.
func (s *Service) CurrentScreen() *screen.Snapshot { return s.store.CurrentOrEmpty() }

// ScreenSummary is a short text listing of the current screen.
func (s *Service) ScreenSummary() string { return s.CurrentScreen().Summary(20) }

// Executor performs actions on the live tree.
func (s *Service) Executor() *executor.Executor { return s.exec }

// Controller is the announcement controller.
func (s *Service) Controller() *assist.Controller { return s.controller }

// Stats returns the number of processed and dropped extractions.
func (s *Service) Stats() (processed, dropped int64) {
	return s.processed.Load(), s.dropped.Load()
}

// Handle is the lifecycle-scoped reference to the running service. Get
// reports false while no service is running.
type Handle struct {
	svc atomic.Pointer[Service]
}

// Start starts svc and publishes it.
func (h *Handle) Start(ctx context.Context, svc *Service) error {
	if err := svc.Start(ctx); err != nil {
		return err
	}
	h.svc.Store(svc)
	return nil
}

// Stop withdraws and stops the published service, if any.
func (h *Handle) Stop() {
	if svc := h.svc.Swap(nil); svc != nil {
		svc.Stop()
	}
}

// Get returns the running service.
func (h *Handle) Get() (*Service, bool) {
	svc := h.svc.Load()
	return svc, svc != nil
}
