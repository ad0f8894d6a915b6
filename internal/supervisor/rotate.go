package supervisor

import (
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"

	"silexa/mcp-supervisor/internal/logrotate"
)

const (
	rotateSchedule    = "@hourly"
	perFileLogCap     = 64 * 1024 * 1024
	globalLogCap      = 512 * 1024 * 1024
)

// startLogRotation schedules hourly head-truncation of every slug's log
// file, the same cron-driven cleanup shape as the job engine's reaper
// (spec section 4.2, log files never growing unbounded).
func (s *Supervisor) startLogRotation() *cron.Cron {
	c := cron.New()
	_, _ = c.AddFunc(rotateSchedule, s.rotateLogs)
	c.Start()
	return c
}

func (s *Supervisor) rotateLogs() {
	entries, err := os.ReadDir(s.layout.LogsDir())
	if err != nil {
		return
	}

	slugs := make([]string, 0, len(entries))
	sizes := make([]int64, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		slugs = append(slugs, e.Name())
		sizes = append(sizes, info.Size())
	}

	trims := logrotate.Plan(sizes, perFileLogCap, globalLogCap)
	for i, name := range slugs {
		if trims[i] <= 0 {
			continue
		}
		_ = logrotate.Trim(filepath.Join(s.layout.LogsDir(), name), trims[i])
	}
}
