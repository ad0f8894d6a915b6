// Package jobengine runs installation jobs to completion: it owns the
// in-memory job table, the bounded concurrency worker pool, and the
// periodic reaper that evicts terminal jobs past their retention window
// (spec section 4.8).
package jobengine

import (
	"context"
	"time"

	"silexa/mcp-supervisor/internal/installer"
	"silexa/mcp-supervisor/internal/registry"
)

// Status is the job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Stage is the installer pipeline position, extended with the three stages
// that only the job engine itself owns: Registering (the integrator hand
// off) and the terminal Completed/Failed markers.
type Stage string

const (
	StageValidation  Stage = "validation"
	StageDownloading Stage = "downloading"
	StageExtracting  Stage = "extracting"
	StageInstalling  Stage = "installing"
	StageConfiguring Stage = "configuring"
	StagePostInstall Stage = "post_install"
	StageRegistering Stage = "registering"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// stageWeight is the fixed contribution of each stage to overallProgress;
// the set sums to 100 (spec section 4.8, "Stages and weights").
var stageWeight = map[Stage]float64{
	StageValidation:  5,
	StageDownloading: 20,
	StageExtracting:  10,
	StageInstalling:  40,
	StageConfiguring: 15,
	StagePostInstall: 5,
	StageRegistering: 5,
}

var orderedStages = []Stage{
	StageValidation, StageDownloading, StageExtracting,
	StageInstalling, StageConfiguring, StagePostInstall, StageRegistering,
}

// LogLevel is the severity of one log entry.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// LogEntry is one append-only line in a job's log.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Stage     Stage
	Message   string
}

// InstallationJob tracks one install attempt end to end. All mutation goes
// through the owning Manager, which serializes access with its single
// Manager-wide mutex.
type InstallationJob struct {
	ID         string
	Slug       string
	SourceKind registry.SourceKind
	URI        string

	Status           Status
	Stage            Stage
	PerStageProgress map[Stage]float64
	Logs             []LogEntry

	Result *installer.Result
	Err    string

	StartedAt time.Time
	EndedAt   time.Time

	installer  installer.Installer
	cancel     context.CancelFunc
	logCh      chan LogEntry
	logDrained chan struct{}
}

// OverallProgress is the weighted sum of PerStageProgress over the fixed
// stage weights.
func (j *InstallationJob) OverallProgress() float64 {
	var total float64
	for stage, weight := range stageWeight {
		total += weight * j.PerStageProgress[stage] / 100
	}
	return total
}

// Snapshot is a deep, caller-owned copy of a job safe to hand out to
// readers while the worker keeps mutating the original.
type Snapshot struct {
	ID               string
	Slug             string
	SourceKind       registry.SourceKind
	URI              string
	Status           Status
	Stage            Stage
	OverallProgress  float64
	PerStageProgress map[Stage]float64
	Logs             []LogEntry
	Result           *installer.Result
	Err              string
	StartedAt        time.Time
	EndedAt          time.Time
}

func (j *InstallationJob) snapshot() Snapshot {
	stageCopy := make(map[Stage]float64, len(j.PerStageProgress))
	for k, v := range j.PerStageProgress {
		stageCopy[k] = v
	}
	logsCopy := make([]LogEntry, len(j.Logs))
	copy(logsCopy, j.Logs)
	var resultCopy *installer.Result
	if j.Result != nil {
		r := *j.Result
		resultCopy = &r
	}
	return Snapshot{
		ID:               j.ID,
		Slug:             j.Slug,
		SourceKind:       j.SourceKind,
		URI:              j.URI,
		Status:           j.Status,
		Stage:            j.Stage,
		OverallProgress:  j.OverallProgress(),
		PerStageProgress: stageCopy,
		Logs:             logsCopy,
		Result:           resultCopy,
		Err:              j.Err,
		StartedAt:        j.StartedAt,
		EndedAt:          j.EndedAt,
	}
}
