package api

import (
	"errors"

	"github.com/heptiolabs/healthcheck"

	"github.com/tonhe/fieldscan/internal/heartbeat"
	"github.com/tonhe/fieldscan/internal/scan"
)

const maxGoroutines = 10000

func newHealthHandler(deps Deps) healthcheck.Handler {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	if deps.Heartbeat != nil {
		health.AddLivenessCheck("heartbeat", heartbeatCheck(deps.Heartbeat))
	}
	if deps.Manager != nil {
		health.AddReadinessCheck("scan", scanRunningCheck(deps.Manager))
	}
	for name, check := range deps.ReadyChecks {
		health.AddReadinessCheck(name, check)
	}
	return health
}

func heartbeatCheck(m *heartbeat.Monitor) healthcheck.Check {
	return func() error {
		if m.Degraded() {
			return errors.New("scheduler heartbeat degraded")
		}
		return nil
	}
}

func scanRunningCheck(m *scan.Manager) healthcheck.Check {
	return func() error {
		if !m.IsRunning() {
			return errors.New("no scan session running")
		}
		return nil
	}
}
