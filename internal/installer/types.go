// Package installer materializes a server's on-disk layout from its
// source: git clone, JS package registry, or Python package registry
// (spec section 4.7). Every installer shares the same contract: Install
// returns a normalized Result or a wrapped error; none of them touch the
// registry directly.
package installer

import "context"

// Result is what a successful install produces, ready for the registry
// integrator to validate and persist (spec section 3, InstallationResult).
type Result struct {
	InstallPath        string
	RuntimePath        string
	BinPath            string
	EntryCommand       string
	EntryArgs          []string
	Environment        map[string]string
	RuntimeKind        string
	PackageManagerKind string
	InstalledVersion   string
	Metadata           map[string]string
}

// LogLevel mirrors the job engine's severity taxonomy so installers can log
// through the same Logger interface without importing the job engine.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// Stage mirrors the job engine's stage enum for the same reason.
type Stage string

const (
	StageValidation  Stage = "validation"
	StageDownloading Stage = "downloading"
	StageExtracting  Stage = "extracting"
	StageInstalling  Stage = "installing"
	StageConfiguring Stage = "configuring"
	StagePostInstall Stage = "post_install"
)

// Logger is how an installer reports progress and structured log lines
// without depending on the job engine package directly.
type Logger interface {
	Log(stage Stage, level LogLevel, msg string)
	Progress(stage Stage, percent float64)
}

// Installer is the shared contract for all three source-specific
// installers.
type Installer interface {
	Install(ctx context.Context, slug string, logger Logger) (Result, error)
}

// NoopLogger discards everything; useful in tests and for any caller that
// runs an installer without wanting to emit job logs.
type NoopLogger struct{}

func (NoopLogger) Log(Stage, LogLevel, string) {}
func (NoopLogger) Progress(Stage, float64)     {}
