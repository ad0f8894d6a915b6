package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"silexa/mcp-supervisor/internal/health"
	"silexa/mcp-supervisor/internal/layout"
	"silexa/mcp-supervisor/internal/registry"
)

const (
	defaultBackoffMin        = 1 * time.Second
	defaultBackoffMax        = 60 * time.Second
	metricsInterval          = 5 * time.Second
	defaultHealthIntervalSec = 20
	restartCleanupGap        = 100 * time.Millisecond
)

// Supervisor owns every supervised process's ProcessState, the shared
// registry, and the global fleet counters (spec section 4.11).
type Supervisor struct {
	store  *registry.Store
	layout layout.Layout
	spawn  Spawner
	prober *health.Prober
	clock  func() time.Time

	mu    sync.RWMutex
	procs map[string]*ProcessState

	rootCtx    context.Context
	rootCancel context.CancelFunc

	shuttingDown atomic.Bool

	totalStarts   atomic.Int64
	totalStops    atomic.Int64
	totalRestarts atomic.Int64

	metrics *metricsSet
	rotator *cron.Cron
}

// New constructs a Supervisor backed by store and rooted at l. Callers
// should defer Shutdown to release resources.
func New(store *registry.Store, l layout.Layout) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		store:      store,
		layout:     l,
		spawn:      ExecSpawner{},
		prober:     &health.Prober{},
		clock:      time.Now,
		procs:      map[string]*ProcessState{},
		rootCtx:    ctx,
		rootCancel: cancel,
		metrics:    newMetricsSet(),
	}
	s.rotator = s.startLogRotation()
	return s
}

// MetricsHandler returns an http.Handler exposing this supervisor's
// Prometheus metrics; it is a library return value, never a bound server.
func (s *Supervisor) MetricsHandler() http.Handler {
	return s.metrics.handler()
}

// Start is idempotent: if slug is already Running or Starting it returns
// success with no effect. It refuses new starts once shutdown has begun.
func (s *Supervisor) Start(slug string) error {
	if s.shuttingDown.Load() {
		return fmt.Errorf("supervisor: shutting down, refusing start of %q", slug)
	}
	entry, err := s.store.Find(slug)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	if err := os.MkdirAll(s.layout.LogsDir(), 0o755); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	if err := os.MkdirAll(s.layout.ServerDir(slug), 0o755); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	s.mu.Lock()
	proc, exists := s.procs[slug]
	if !exists {
		proc = s.newProcessState(slug, entry)
		s.procs[slug] = proc
	}
	s.mu.Unlock()

	proc.mu.Lock()
	if proc.State == StateRunning || proc.State == StateStarting {
		proc.mu.Unlock()
		return nil
	}
	proc.entry = entry.Entry
	proc.RestartPolicy = entry.Health.RestartPolicy
	proc.MaxRestarts = entry.Health.MaxRestarts
	proc.Transport = entry.Health.ProbeKind
	proc.HTTPProbeURL = health.ProbeURL(entry.Entry.Env, entry.Entry.Args)
	proc.HealthIntervalSec = entry.Health.IntervalSec
	proc.stopping = false
	proc.stopCh = make(chan struct{})
	proc.stoppedCh = make(chan struct{})
	if len(proc.PendingEnv) > 0 {
		merged := map[string]string{}
		for k, v := range proc.entry.Env {
			merged[k] = v
		}
		for k, v := range proc.PendingEnv {
			merged[k] = v
		}
		proc.entry.Env = merged
		proc.PendingEnv = nil
	}
	proc.State = StateStarting
	procCtx, cancel := context.WithCancel(s.rootCtx)
	proc.cancel = cancel
	proc.mu.Unlock()

	s.totalStarts.Add(1)
	go s.runLoop(procCtx, proc)
	return nil
}

// Stop is idempotent. It requests a graceful stop and waits up to grace
// for the run loop to acknowledge; past that it force-kills.
func (s *Supervisor) Stop(slug string, grace time.Duration) error {
	s.mu.RLock()
	proc, exists := s.procs[slug]
	s.mu.RUnlock()
	if !exists {
		return nil
	}

	proc.mu.Lock()
	state := proc.State
	if state == StateStopped {
		proc.mu.Unlock()
		return nil
	}
	if state == StateStopping {
		stoppedCh := proc.stoppedCh
		proc.mu.Unlock()
		if stoppedCh != nil {
			<-stoppedCh
		}
		return nil
	}
	proc.stopping = true
	proc.State = StateStopping
	stopCh := proc.stopCh
	stoppedCh := proc.stoppedCh
	child := proc.child
	proc.mu.Unlock()

	s.totalStops.Add(1)
	if stopCh != nil {
		close(stopCh)
	}
	if child != nil {
		_ = child.Terminate()
	}

	select {
	case <-stoppedCh:
	case <-time.After(grace):
		if child != nil {
			_ = child.Kill()
		}
		select {
		case <-stoppedCh:
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// Restart stops slug with a 10s grace, waits a short cleanup gap, then
// starts it again.
func (s *Supervisor) Restart(slug string) error {
	if err := s.Stop(slug, 10*time.Second); err != nil {
		return err
	}
	s.totalRestarts.Add(1)
	time.Sleep(restartCleanupGap)
	return s.Start(slug)
}

// SetEnv updates entry.env in the registry; it takes effect on next start.
func (s *Supervisor) SetEnv(slug string, env map[string]string) error {
	entry, err := s.store.Find(slug)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}
	merged := map[string]string{}
	for k, v := range entry.Entry.Env {
		merged[k] = v
	}
	for k, v := range env {
		merged[k] = v
	}
	entry.Entry.Env = merged
	if err := s.store.Upsert(entry); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	s.mu.RLock()
	proc, exists := s.procs[slug]
	s.mu.RUnlock()
	if exists {
		proc.mu.Lock()
		if proc.PendingEnv == nil {
			proc.PendingEnv = map[string]string{}
		}
		for k, v := range env {
			proc.PendingEnv[k] = v
		}
		proc.mu.Unlock()
	}
	return nil
}

// Shutdown closes the global latch, stops every known process concurrently
// with a per-process share of deadline, and cancels the root scope.
func (s *Supervisor) Shutdown(deadline time.Duration) error {
	s.shuttingDown.Store(true)
	if s.rotator != nil {
		<-s.rotator.Stop().Done()
	}

	s.mu.RLock()
	slugs := make([]string, 0, len(s.procs))
	for slug := range s.procs {
		slugs = append(slugs, slug)
	}
	s.mu.RUnlock()

	if len(slugs) == 0 {
		s.rootCancel()
		return nil
	}

	share := deadline / time.Duration(len(slugs))
	if share <= 0 {
		share = time.Second
	}

	var g errgroup.Group
	for _, slug := range slugs {
		slug := slug
		g.Go(func() error {
			return s.Stop(slug, share)
		})
	}
	_ = g.Wait()
	s.rootCancel()
	return nil
}

// Summary returns one row per known process.
func (s *Supervisor) Summary() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.clock()
	out := make([]Summary, 0, len(s.procs))
	for _, proc := range s.procs {
		proc.mu.Lock()
		out = append(out, proc.snapshotLocked(now).Summary)
		proc.mu.Unlock()
	}
	return out
}

// Info returns a detailed snapshot for one slug.
func (s *Supervisor) Info(slug string) (Info, error) {
	s.mu.RLock()
	proc, exists := s.procs[slug]
	s.mu.RUnlock()
	if !exists {
		return Info{}, fmt.Errorf("supervisor: unknown slug %q", slug)
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()
	return proc.snapshotLocked(s.clock()), nil
}

// Stats returns fleet-wide counters.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{
		TotalProcesses: len(s.procs),
		TotalStarts:    s.totalStarts.Load(),
		TotalStops:     s.totalStops.Load(),
		TotalRestarts:  s.totalRestarts.Load(),
	}
	for _, proc := range s.procs {
		proc.mu.Lock()
		switch proc.State {
		case StateRunning:
			stats.Running++
		case StateStopped:
			stats.Stopped++
		case StateFailed:
			stats.Failed++
		}
		proc.mu.Unlock()
	}
	return stats
}

func (s *Supervisor) newProcessState(slug string, entry registry.ServerEntry) *ProcessState {
	return &ProcessState{
		Slug:              slug,
		Name:              entry.Name,
		State:             StateStopped,
		RestartPolicy:     entry.Health.RestartPolicy,
		MaxRestarts:       entry.Health.MaxRestarts,
		Transport:         entry.Health.ProbeKind,
		HealthIntervalSec: entry.Health.IntervalSec,
		LogPath:           s.layout.LogPath(slug),
		entry:             entry.Entry,
	}
}
