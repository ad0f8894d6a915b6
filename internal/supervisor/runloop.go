package supervisor

import (
	"context"
	"os"
	"time"

	"silexa/mcp-supervisor/internal/backoff"
	"silexa/mcp-supervisor/internal/health"
	"silexa/mcp-supervisor/internal/registry"
)

// runLoop is the per-process state machine described in spec section 4.11.
// It runs until ctx is cancelled or proc.stopCh is closed, transitioning
// through Starting/Running/Stopping/Failed/Restarting.
func (s *Supervisor) runLoop(ctx context.Context, proc *ProcessState) {
	for {
		proc.mu.Lock()
		restarts := proc.RestartsTotal
		maxRestarts := proc.MaxRestarts
		stopping := proc.stopping
		proc.mu.Unlock()

		if stopping {
			s.finishStopped(proc)
			return
		}
		if maxRestarts >= 0 && restarts >= maxRestarts && restarts > 0 {
			proc.mu.Lock()
			proc.State = StateFailed
			proc.mu.Unlock()
			return
		}

		if restarts > 0 {
			proc.mu.Lock()
			proc.State = StateRestarting
			proc.mu.Unlock()
			delay := backoff.Next(restarts, defaultBackoffMin, defaultBackoffMax)
			if !s.interruptibleSleep(ctx, proc, delay) {
				return
			}
		}

		proc.mu.Lock()
		proc.State = StateStarting
		dir := s.layout.ServerDir(proc.Slug)
		entry := proc.entry
		proc.mu.Unlock()

		logFile, err := os.OpenFile(proc.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			s.recordSpawnFailure(proc)
			continue
		}

		child, err := s.spawn.Spawn(ctx, entry, dir, logFile)
		if err != nil {
			logFile.Close()
			s.recordSpawnFailure(proc)
			continue
		}

		proc.mu.Lock()
		proc.State = StateRunning
		proc.StartedAt = s.clock()
		proc.PID = child.Pid()
		proc.child = child
		proc.HandshakeReady = false
		proc.MissedPings = 0
		healthCtx, healthCancel := context.WithCancel(ctx)
		metricsCtx, metricsCancel := context.WithCancel(ctx)
		proc.mu.Unlock()

		go s.healthMonitor(healthCtx, proc)
		go s.metricsSampler(metricsCtx, proc, child.Pid())

		// Stop() (or ctx cancellation) sends the terminate/kill signals
		// directly to child; this call simply awaits exit either way.
		exitErr := child.Wait()
		logFile.Close()
		healthCancel()
		metricsCancel()

		proc.mu.Lock()
		proc.StoppedAt = s.clock()
		proc.PID = 0
		proc.child = nil
		wasStopping := proc.stopping
		cleanExit := exitErr == nil
		proc.mu.Unlock()

		if wasStopping {
			s.finishStopped(proc)
			return
		}

		proc.mu.Lock()
		proc.recordRestart(s.clock())
		proc.RestartsTotal++
		policy := proc.RestartPolicy
		proc.mu.Unlock()

		if policy == registry.RestartNever || (policy == registry.RestartOnFailure && cleanExit) {
			proc.mu.Lock()
			proc.State = StateStopped
			proc.mu.Unlock()
			return
		}
	}
}

func (s *Supervisor) recordSpawnFailure(proc *ProcessState) {
	proc.mu.Lock()
	proc.State = StateFailed
	proc.RestartsTotal++
	proc.recordRestart(s.clock())
	proc.mu.Unlock()
}

func (s *Supervisor) finishStopped(proc *ProcessState) {
	proc.mu.Lock()
	proc.State = StateStopped
	proc.PID = 0
	stoppedCh := proc.stoppedCh
	proc.mu.Unlock()
	if stoppedCh != nil {
		select {
		case <-stoppedCh:
		default:
			close(stoppedCh)
		}
	}
}

// interruptibleSleep waits for delay, proc.stopCh, or ctx cancellation,
// whichever comes first. It returns false if the loop should terminate.
func (s *Supervisor) interruptibleSleep(ctx context.Context, proc *ProcessState, delay time.Duration) bool {
	proc.mu.Lock()
	stopCh := proc.stopCh
	proc.mu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stopCh:
		s.finishStopped(proc)
		return false
	case <-ctx.Done():
		s.finishStopped(proc)
		return false
	}
}

func (s *Supervisor) healthMonitor(ctx context.Context, proc *ProcessState) {
	proc.mu.Lock()
	intervalSec := proc.HealthIntervalSec
	proc.mu.Unlock()
	if intervalSec <= 0 {
		intervalSec = defaultHealthIntervalSec
	}
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probeOnce(ctx, proc)
		}
	}
}

func (s *Supervisor) probeOnce(ctx context.Context, proc *ProcessState) {
	proc.mu.Lock()
	tick := health.Tick{
		Transport:         string(proc.Transport),
		ProbeURL:          proc.HTTPProbeURL,
		LogPath:           proc.LogPath,
		LastLogActivityAt: proc.LastLogActivityAt,
		HandshakeReady:    proc.HandshakeReady,
		Now:               s.clock(),
	}
	prevMissed := proc.MissedPings
	restartsRecent := countRecent(proc.restartTimestamps, s.clock())
	proc.mu.Unlock()

	result := s.prober.Probe(ctx, tick, prevMissed)

	proc.mu.Lock()
	proc.LastPingMs = result.LastPingMs
	proc.MissedPings = result.MissedPings
	if !result.LastLogActivityAt.IsZero() {
		proc.LastLogActivityAt = result.LastLogActivityAt
	}
	proc.HandshakeReady = result.HandshakeReady
	status := health.Evaluate(health.Inputs{
		ProcessRunning:  proc.State == StateRunning,
		MissedPings:     proc.MissedPings,
		LastPingMs:      proc.LastPingMs,
		RestartsLast10m: restartsRecent,
		HandshakeReady:  proc.HandshakeReady,
	})
	proc.HealthStatus = status
	proc.mu.Unlock()
}
