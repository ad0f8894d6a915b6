// Package supervisor is the per-process state machine, restart-with-backoff
// loop, graceful shutdown, and fleet view for installed servers (spec
// section 4.11).
package supervisor

import (
	"context"
	"sync"
	"time"

	"silexa/mcp-supervisor/internal/health"
	"silexa/mcp-supervisor/internal/registry"
)

// State is a process's position in the run loop state machine.
type State string

const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateFailed     State = "failed"
	StateRestarting State = "restarting"
)

const restartWindow = 10 * time.Minute

// ProcessState is the in-memory record for one supervised slug. All
// mutable fields are guarded by mu; the run loop, health monitor, and
// metrics sampler goroutines all touch it under that lock for O(1) reads
// and writes only (spec section 5, "Suspension points").
type ProcessState struct {
	mu sync.Mutex

	Slug string
	Name string

	State             State
	RestartsTotal     int
	restartTimestamps []time.Time
	StartedAt         time.Time
	StoppedAt         time.Time

	PID   int
	child Child

	stopping  bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
	cancel    context.CancelFunc

	Transport      registry.Transport
	HTTPProbeURL   string
	HandshakeReady bool

	HealthStatus      health.Status
	LastPingMs        int64
	MissedPings       int
	LastLogActivityAt time.Time

	CPUPercent float64
	RSSBytes   uint64
	LogPath    string

	RestartPolicy     registry.RestartPolicy
	MaxRestarts       int
	HealthIntervalSec int

	PendingEnv map[string]string

	entry registry.Entry
}

// Summary is the row shape returned by Supervisor.Summary.
type Summary struct {
	Slug        string
	Name        string
	State       State
	HealthState health.Status
	UptimeSec   int64
	Restarts    int
	LastPingMs  int64
	PID         int
	CPUPercent  float64
	RAMMB       float64
}

// Info is the detailed snapshot returned by Supervisor.Info: a superset of
// Summary.
type Info struct {
	Summary
	Transport         registry.Transport
	HTTPProbeURL      string
	HandshakeReady    bool
	MissedPings       int
	LastLogActivityAt time.Time
	RestartsLast10m   int
	LogPath           string
	RestartPolicy     registry.RestartPolicy
	MaxRestarts       int
}

// Stats is the fleet-wide counter snapshot returned by Supervisor.Stats.
type Stats struct {
	TotalProcesses int
	Running        int
	Stopped        int
	Failed         int
	TotalStarts    int64
	TotalStops     int64
	TotalRestarts  int64
}

func (p *ProcessState) snapshotLocked(now time.Time) Info {
	uptime := int64(0)
	if p.State == StateRunning && !p.StartedAt.IsZero() {
		uptime = int64(now.Sub(p.StartedAt).Seconds())
	}
	return Info{
		Summary: Summary{
			Slug:        p.Slug,
			Name:        p.Name,
			State:       p.State,
			HealthState: p.HealthStatus,
			UptimeSec:   uptime,
			Restarts:    p.RestartsTotal,
			LastPingMs:  p.LastPingMs,
			PID:         p.PID,
			CPUPercent:  p.CPUPercent,
			RAMMB:       float64(p.RSSBytes) / (1024 * 1024),
		},
		Transport:         p.Transport,
		HTTPProbeURL:      p.HTTPProbeURL,
		HandshakeReady:    p.HandshakeReady,
		MissedPings:       p.MissedPings,
		LastLogActivityAt: p.LastLogActivityAt,
		RestartsLast10m:   countRecent(p.restartTimestamps, now),
		LogPath:           p.LogPath,
		RestartPolicy:     p.RestartPolicy,
		MaxRestarts:       p.MaxRestarts,
	}
}

// recordRestart appends now to the sliding window and compacts entries
// older than restartWindow (spec section 4.11, "Restart-rate tracking").
func (p *ProcessState) recordRestart(now time.Time) {
	p.restartTimestamps = append(p.restartTimestamps, now)
	p.restartTimestamps = compactRecent(p.restartTimestamps, now)
}

func compactRecent(ts []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-restartWindow)
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func countRecent(ts []time.Time, now time.Time) int {
	cutoff := now.Add(-restartWindow)
	n := 0
	for _, t := range ts {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
