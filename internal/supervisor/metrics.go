package supervisor

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"

	"silexa/mcp-supervisor/internal/health"
)

// metricsSet holds this supervisor's Prometheus collectors on a private
// registry, so MetricsHandler never touches the global default registry
// (multiple Supervisors in one process, as in tests, must not collide).
type metricsSet struct {
	registry *prometheus.Registry

	cpuPercent    *prometheus.GaugeVec
	rssBytes      *prometheus.GaugeVec
	restartsTotal *prometheus.GaugeVec
	healthStatus  *prometheus.GaugeVec
}

func newMetricsSet() *metricsSet {
	reg := prometheus.NewRegistry()
	m := &metricsSet{
		registry: reg,
		cpuPercent: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mcp_supervisor",
			Name:      "process_cpu_percent",
			Help:      "CPU utilization percent of a supervised process.",
		}, []string{"slug"}),
		rssBytes: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mcp_supervisor",
			Name:      "process_rss_bytes",
			Help:      "Resident set size in bytes of a supervised process.",
		}, []string{"slug"}),
		restartsTotal: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mcp_supervisor",
			Name:      "process_restarts_total",
			Help:      "Total restarts observed for a supervised process.",
		}, []string{"slug"}),
		healthStatus: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mcp_supervisor",
			Name:      "process_health_status",
			Help:      "Health status of a supervised process: 1 ready, 0.5 degraded, 0 down.",
		}, []string{"slug"}),
	}
	return m
}

func (m *metricsSet) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func healthStatusValue(s health.Status) float64 {
	switch s {
	case health.StatusReady:
		return 1
	case health.StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

// metricsSampler updates cpuPercent/rssBytes every metricsInterval by
// shelling out to the platform process inspector via gopsutil (spec
// section 4.11, "Metrics sampler"). Errors are swallowed: the process may
// have exited between check and read.
func (s *Supervisor) metricsSampler(ctx context.Context, proc *ProcessState, pid int) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce(proc, pid)
		}
	}
}

func (s *Supervisor) sampleOnce(proc *ProcessState, pid int) {
	gp, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	cpuPct, err := gp.CPUPercent()
	if err != nil {
		return
	}
	memInfo, err := gp.MemoryInfo()
	if err != nil {
		return
	}

	proc.mu.Lock()
	proc.CPUPercent = cpuPct
	proc.RSSBytes = memInfo.RSS
	slug := proc.Slug
	restarts := proc.RestartsTotal
	healthStatus := proc.HealthStatus
	proc.mu.Unlock()

	s.metrics.cpuPercent.WithLabelValues(slug).Set(cpuPct)
	s.metrics.rssBytes.WithLabelValues(slug).Set(float64(memInfo.RSS))
	s.metrics.restartsTotal.WithLabelValues(slug).Set(float64(restarts))
	s.metrics.healthStatus.WithLabelValues(slug).Set(healthStatusValue(healthStatus))
}
