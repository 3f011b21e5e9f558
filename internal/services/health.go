package services

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/robfig/cron/v3"

	"github.com/remediarr/remediarr/internal/config"
	"github.com/remediarr/remediarr/internal/domain"
	"github.com/remediarr/remediarr/internal/eventbus"
	"github.com/remediarr/remediarr/internal/integration"
	"github.com/remediarr/remediarr/internal/logger"
)

// pinger is the reachability slice every downstream client exposes.
type pinger interface {
	SystemStatus(ctx context.Context) error
}

type healthTarget struct {
	name     string
	client   pinger
	optional bool
	enabled  func() bool
}

// HealthMonitor pings the downstream services at startup and on a cron
// schedule, publishing state transitions to the event bus so metrics and
// notifications pick them up.
type HealthMonitor struct {
	eventBus eventbus.Publisher
	targets  []healthTarget
	cron     *cron.Cron

	mu      sync.Mutex
	healthy map[string]bool
}

func NewHealthMonitor(eb eventbus.Publisher, radarr, sonarr, jellyseerr pinger, bazarr integration.BazarrClient) *HealthMonitor {
	targets := []healthTarget{
		{name: "radarr", client: radarr},
		{name: "sonarr", client: sonarr},
		{name: "jellyseerr", client: jellyseerr},
	}
	if bazarr != nil {
		targets = append(targets, healthTarget{
			name:     "bazarr",
			client:   bazarr,
			optional: true,
			enabled:  bazarr.Enabled,
		})
	}
	return &HealthMonitor{
		eventBus: eb,
		targets:  targets,
		healthy:  make(map[string]bool),
	}
}

// StartupCheck pings every configured downstream with bounded retries and
// logs a reachability banner. Unreachable services are reported but do not
// prevent startup: they may simply still be booting.
func (h *HealthMonitor) StartupCheck(ctx context.Context) {
	for _, target := range h.targets {
		if target.enabled != nil && !target.enabled() {
			logger.Infof("Health: %s not configured, skipping", target.name)
			continue
		}

		err := retry.Do(
			func() error { return target.client.SystemStatus(ctx) },
			retry.Context(ctx),
			retry.Attempts(3),
			retry.Delay(2*time.Second),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
		h.recordState(target.name, err)
		if err != nil {
			logger.Warnf("Health: %s unreachable at startup: %v", target.name, err)
		} else {
			logger.Infof("Health: %s reachable", target.name)
		}
	}
}

// Start schedules periodic re-checks per HEALTHCHECK_CRON.
func (h *HealthMonitor) Start() error {
	spec := config.Get().HealthcheckCron
	if spec == "" {
		logger.Infof("Health: periodic checks disabled")
		return nil
	}

	h.cron = cron.New()
	if _, err := h.cron.AddFunc(spec, h.runChecks); err != nil {
		return err
	}
	h.cron.Start()
	logger.Infof("Health: periodic checks scheduled (%s)", spec)
	return nil
}

func (h *HealthMonitor) Stop() {
	if h.cron != nil {
		h.cron.Stop()
	}
}

// Healthy returns the last observed state per service.
func (h *HealthMonitor) Healthy() map[string]bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]bool, len(h.healthy))
	for name, ok := range h.healthy {
		out[name] = ok
	}
	return out
}

func (h *HealthMonitor) runChecks() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, target := range h.targets {
		if target.enabled != nil && !target.enabled() {
			continue
		}
		h.recordState(target.name, target.client.SystemStatus(ctx))
	}
}

// recordState updates the per-service state and publishes a bus event on
// every transition.
func (h *HealthMonitor) recordState(name string, err error) {
	nowHealthy := err == nil

	h.mu.Lock()
	wasHealthy, known := h.healthy[name]
	h.healthy[name] = nowHealthy
	h.mu.Unlock()

	if known && wasHealthy == nowHealthy {
		return
	}

	eventType := domain.InstanceHealthy
	data := map[string]interface{}{"service": name}
	if !nowHealthy {
		eventType = domain.InstanceUnhealthy
		data["error"] = err.Error()
		logger.Warnf("Health: %s became unhealthy: %v", name, err)
	} else if known {
		logger.Infof("Health: %s recovered", name)
	}

	if pubErr := h.eventBus.Publish(domain.Event{
		AggregateType: "service",
		AggregateID:   name,
		EventType:     eventType,
		EventData:     data,
	}); pubErr != nil {
		logger.Errorf("Health: publish %s for %s failed: %v", eventType, name, pubErr)
	}
}
