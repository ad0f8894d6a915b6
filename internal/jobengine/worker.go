package jobengine

import (
	"context"
	"errors"

	"silexa/mcp-supervisor/internal/installer"
)

// jobLogger adapts an InstallationJob into the installer.Logger interface
// the three source-specific installers write progress and log lines
// through, translating installer's own Stage/LogLevel enums into the job
// engine's (the job engine's is the superset; see types.go).
type jobLogger struct {
	m   *Manager
	job *InstallationJob
}

func (l jobLogger) Log(stage installer.Stage, level installer.LogLevel, msg string) {
	entry := LogEntry{
		Timestamp: l.m.clock(),
		Level:     LogLevel(level),
		Stage:     mapInstallerStage(stage),
		Message:   msg,
	}
	l.m.enqueueLog(l.job, entry)
}

func (l jobLogger) Progress(stage installer.Stage, percent float64) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	l.job.Stage = mapInstallerStage(stage)
	l.job.PerStageProgress[mapInstallerStage(stage)] = percent
}

func mapInstallerStage(s installer.Stage) Stage {
	switch s {
	case installer.StageValidation:
		return StageValidation
	case installer.StageDownloading:
		return StageDownloading
	case installer.StageExtracting:
		return StageExtracting
	case installer.StageInstalling:
		return StageInstalling
	case installer.StageConfiguring:
		return StageConfiguring
	case installer.StagePostInstall:
		return StagePostInstall
	default:
		return StageValidation
	}
}

// enqueueLog appends a log entry without ever blocking the worker.
// Non-debug entries are guaranteed delivery: they fall back to a direct,
// mutex-guarded append if the channel is momentarily full. Debug entries
// are dropped under that same pressure (spec section 4.8, "Logs").
func (m *Manager) enqueueLog(job *InstallationJob, entry LogEntry) {
	select {
	case job.logCh <- entry:
		return
	default:
	}
	if entry.Level == LogDebug {
		return
	}
	m.mu.Lock()
	job.Logs = append(job.Logs, entry)
	m.mu.Unlock()
}

func (m *Manager) drainLogs(job *InstallationJob) {
	defer close(job.logDrained)
	for entry := range job.logCh {
		m.mu.Lock()
		job.Logs = append(job.Logs, entry)
		m.mu.Unlock()
	}
}

// runWorker drives the job's installer to completion, translating its
// outcome into the job's terminal status. It always runs to one of
// Completed, Failed, or Cancelled, and always decrements runningCount.
func (m *Manager) runWorker(ctx context.Context, job *InstallationJob) {
	defer func() {
		m.mu.Lock()
		m.runningCount--
		m.mu.Unlock()
	}()

	logger := jobLogger{m: m, job: job}
	result, err := job.installer.Install(ctx, job.Slug, logger)

	m.mu.Lock()
	job.EndedAt = m.clock()
	switch {
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		job.Status = StatusCancelled
	case err != nil:
		job.Status = StatusFailed
		job.Stage = StageFailed
		job.Err = err.Error()
	default:
		job.Status = StatusCompleted
		job.Stage = StageCompleted
		job.Result = &result
		for _, stage := range orderedStages {
			job.PerStageProgress[stage] = 100
		}
	}
	m.mu.Unlock()

	close(job.logCh)
	<-job.logDrained
}
