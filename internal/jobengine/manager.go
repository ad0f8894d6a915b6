package jobengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"silexa/mcp-supervisor/internal/installer"
	"silexa/mcp-supervisor/internal/registry"
)

const (
	defaultMaxConcurrency = 5
	defaultRetention      = 24 * time.Hour
	logChannelCapacity    = 256
	reaperSchedule        = "@hourly"
)

// Integrator is the subset of the registry integrator a Manager needs to
// finalize a successful job (spec section 4.10). Defined here as an
// interface, rather than naming the integrator package's concrete type, so
// jobengine does not import the integrator package and tests can supply a
// fake.
type Integrator interface {
	Register(slug string, result installer.Result, sourceKind registry.SourceKind, uri string) (registry.ServerEntry, error)
}

// Manager owns the in-memory job table: creation, bounded-concurrency
// starts, cancellation, snapshot reads, finalize-into-registry, and a
// periodic reaper for terminal jobs past their retention window.
type Manager struct {
	mu             sync.Mutex
	jobs           map[string]*InstallationJob
	maxConcurrency int
	runningCount   int
	retention      time.Duration
	integrator     Integrator
	clock          func() time.Time
	cronSched      *cron.Cron
	newID          func() string
}

// NewManager constructs a Manager with the given integrator and defaults
// from spec section 4.8 (concurrency 5, retention 24h). It starts the
// hourly reaper immediately; callers must call Close to stop it.
func NewManager(integrator Integrator) *Manager {
	m := &Manager{
		jobs:           map[string]*InstallationJob{},
		maxConcurrency: defaultMaxConcurrency,
		retention:      defaultRetention,
		integrator:     integrator,
		clock:          time.Now,
		newID:          func() string { return uuid.NewString() },
	}
	m.cronSched = cron.New()
	_, _ = m.cronSched.AddFunc(reaperSchedule, m.reap)
	m.cronSched.Start()
	return m
}

// Close stops the reaper's scheduler. It does not cancel running jobs.
func (m *Manager) Close() {
	ctx := m.cronSched.Stop()
	<-ctx.Done()
}

// Create registers a new Pending job and returns its id. Create always
// succeeds; capacity is enforced at Start.
func (m *Manager) Create(slug string, sourceKind registry.SourceKind, uri string, inst installer.Installer) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.newID()
	job := &InstallationJob{
		ID:               id,
		Slug:             slug,
		SourceKind:       sourceKind,
		URI:              uri,
		Status:           StatusPending,
		PerStageProgress: map[Stage]float64{},
		installer:        inst,
	}
	m.jobs[id] = job
	return id
}

// Start transitions a Pending job to Running and launches its worker
// goroutine. It fails with a precondition error if the running count
// already meets maxConcurrency.
func (m *Manager) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("jobengine: unknown job %q", id)
	}
	if job.Status != StatusPending {
		m.mu.Unlock()
		return fmt.Errorf("jobengine: job %q is not pending (status=%s)", id, job.Status)
	}
	if m.runningCount >= m.maxConcurrency {
		m.mu.Unlock()
		return fmt.Errorf("jobengine: at capacity (%d running jobs)", m.maxConcurrency)
	}
	m.runningCount++
	job.Status = StatusRunning
	job.StartedAt = m.clock()
	job.logCh = make(chan LogEntry, logChannelCapacity)
	job.logDrained = make(chan struct{})
	workerCtx, cancel := context.WithCancel(ctx)
	job.cancel = cancel
	m.mu.Unlock()

	go m.drainLogs(job)
	go m.runWorker(workerCtx, job)
	return nil
}

// Cancel triggers the job's cancel scope. The job's own worker observes
// the cancellation and transitions it to Cancelled; Cancel itself does not
// mutate status synchronously. A job still Pending never gets a worker to
// observe anything, so Cancel transitions it to Cancelled directly.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("jobengine: unknown job %q", id)
	}
	if job.Status == StatusPending {
		job.Status = StatusCancelled
		job.EndedAt = m.clock()
		return nil
	}
	if job.Status != StatusRunning {
		return nil
	}
	if job.cancel != nil {
		job.cancel()
	}
	return nil
}

// Get returns a consistent snapshot of one job.
func (m *Manager) Get(id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("jobengine: unknown job %q", id)
	}
	return job.snapshot(), nil
}

// List returns snapshots for every job, optionally filtered by status.
func (m *Manager) List(statusFilter *Status) []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.jobs))
	for _, job := range m.jobs {
		if statusFilter != nil && job.Status != *statusFilter {
			continue
		}
		out = append(out, job.snapshot())
	}
	return out
}

// Finalize invokes the Registry Integrator for a successfully completed
// job. It accepts only StatusCompleted jobs whose Result is set and does
// not track earlier calls, so calling it again registers the entry again;
// the job's own status and stage progress were
// already set to terminal values by the worker, so Finalize does not
// mutate them further — it only returns the registered entry or the
// integrator's error.
func (m *Manager) Finalize(id string) (registry.ServerEntry, error) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return registry.ServerEntry{}, fmt.Errorf("jobengine: unknown job %q", id)
	}
	if job.Status != StatusCompleted || job.Result == nil {
		m.mu.Unlock()
		return registry.ServerEntry{}, fmt.Errorf("jobengine: job %q is not a successful completed job", id)
	}
	slug, sourceKind, uri, result := job.Slug, job.SourceKind, job.URI, *job.Result
	m.mu.Unlock()

	return m.integrator.Register(slug, result, sourceKind, uri)
}

func (m *Manager) reap() {
	cutoff := m.clock().Add(-m.retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, job := range m.jobs {
		if !isTerminal(job.Status) {
			continue
		}
		if job.EndedAt.IsZero() || job.EndedAt.After(cutoff) {
			continue
		}
		delete(m.jobs, id)
	}
}

func isTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}
