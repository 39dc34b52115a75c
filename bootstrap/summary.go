package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/flowgate/component"
	"github.com/kbukum/flowgate/logger"
)

// RouteInfo is one registered HTTP route.
type RouteInfo struct {
	Method string
	Path   string
}

// Summary collects what a process started with and logs it once startup
// completes.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	routes          []RouteInfo
}

// NewSummary creates a summary for the named service.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records how long startup took.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// TrackRoute records an HTTP route for the summary.
func (s *Summary) TrackRoute(method, path string) {
	s.routes = append(s.routes, RouteInfo{Method: method, Path: path})
}

// Routes returns the tracked routes.
func (s *Summary) Routes() []RouteInfo {
	return s.routes
}

// Display logs the startup summary: components with their health, then
// routes.
func (s *Summary) Display(ctx context.Context, reg *component.Registry, log *logger.Logger) {
	var (
		lines   []string
		reports []component.Health
	)
	if reg != nil {
		reports = reg.HealthAll(ctx)
	}
	for _, h := range reports {
		line := fmt.Sprintf("%s %s", statusIcon(string(h.Status)), h.Name)
		if d, ok := reg.Get(h.Name).(component.Describable); ok {
			desc := d.Describe()
			line += fmt.Sprintf(" [%s] %s", desc.Type, desc.Details)
		}
		lines = append(lines, line)
	}
	for _, r := range s.routes {
		lines = append(lines, fmt.Sprintf("%-6s %s", r.Method, r.Path))
	}

	log.Info("Startup summary", map[string]interface{}{
		"service":    s.serviceName,
		"version":    s.version,
		"startup_ms": s.startupDuration.Milliseconds(),
		"components": len(reports),
		"routes":     len(s.routes),
	})
	if len(lines) > 0 {
		log.Debug("Startup details\n" + strings.Join(lines, "\n"))
	}
}

func statusIcon(status string) string {
	switch component.HealthStatus(status) {
	case component.StatusHealthy:
		return "✓"
	case component.StatusDegraded:
		return "!"
	case component.StatusUnhealthy:
		return "✗"
	default:
		return "?"
	}
}
