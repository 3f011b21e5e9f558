package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/remediarr/remediarr/internal/clock"
	"github.com/remediarr/remediarr/internal/config"
	"github.com/remediarr/remediarr/internal/domain"
	"github.com/remediarr/remediarr/internal/eventbus"
	"github.com/remediarr/remediarr/internal/logger"
)

// sendTimeout bounds a single delivery to one sink.
const sendTimeout = 15 * time.Second

// Notification levels, matching the Apprise notification types.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelFailure = "failure"
)

// Message is one rendered notification.
type Message struct {
	Title string
	Body  string
	Level string
}

// sink delivers a rendered message to one provider.
type sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Notifier fans remediation outcomes and health transitions out to the
// configured sinks. Delivery failures are logged and reported on the bus,
// never surfaced to the caller: a dead Gotify must not stall remediation.
type Notifier struct {
	eventBus eventbus.Publisher
	sinks    []sink
	clk      clock.Clock
	throttle time.Duration

	mu       sync.Mutex
	lastSent map[domain.EventType]time.Time
}

// notifiableEvents are the bus events that produce an outbound notification.
var notifiableEvents = []domain.EventType{
	domain.GrabConfirmed,
	domain.VerificationTimeout,
	domain.MediaNotFound,
	domain.DeletionFailed,
	domain.InstanceUnhealthy,
	domain.InstanceHealthy,
}

func NewNotifier(eb eventbus.Publisher, clk clock.Clock) *Notifier {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	cfg := config.Get()

	var sinks []sink
	if cfg.GotifyURL != "" && cfg.GotifyToken != "" {
		sinks = append(sinks, newGotifySink(cfg.GotifyURL, cfg.GotifyToken, cfg.GotifyPriority))
	}
	if cfg.AppriseURL != "" {
		sinks = append(sinks, newAppriseSink(cfg.AppriseURL, cfg.AppriseTargets, nil))
	}

	return &Notifier{
		eventBus: eb,
		sinks:    sinks,
		clk:      clk,
		throttle: cfg.NotifyThrottle,
		lastSent: make(map[domain.EventType]time.Time),
	}
}

// Enabled reports whether at least one sink is configured.
func (n *Notifier) Enabled() bool {
	return len(n.sinks) > 0
}

// Start subscribes to the notifiable event types. A notifier without sinks
// subscribes nothing.
func (n *Notifier) Start() {
	if !n.Enabled() {
		logger.Infof("Notifier: no sinks configured")
		return
	}
	for _, eventType := range notifiableEvents {
		n.eventBus.Subscribe(eventType, n.handleEvent)
	}
	logger.Infof("Notifier: %d sink(s) active", len(n.sinks))
}

// SendStartup announces that the service came up. Not throttled.
func (n *Notifier) SendStartup(version string) {
	if !n.Enabled() {
		return
	}
	n.deliver("", Message{
		Title: "Remediarr started",
		Body:  fmt.Sprintf("Remediarr %s is up and watching for issue reports.", version),
		Level: LevelInfo,
	})
}

// SendHealthDegraded announces a degraded health report. Shares a throttle
// window per call site key so a flapping health endpoint does not spam.
func (n *Notifier) SendHealthDegraded(data map[string]interface{}) {
	if !n.Enabled() {
		return
	}
	if !n.allow("HealthDegraded") {
		return
	}
	body := "The health endpoint reports a degraded state."
	if dbStatus, ok := data["database_status"].(string); ok && dbStatus != "connected" {
		body = fmt.Sprintf("Database status: %s.", dbStatus)
	} else if online, ok := data["online"].(int); ok {
		if total, tok := data["total"].(int); tok {
			body = fmt.Sprintf("%d of %d downstream services reachable.", online, total)
		}
	}
	n.deliver("HealthDegraded", Message{
		Title: "Remediarr: health degraded",
		Body:  body,
		Level: LevelWarning,
	})
}

func (n *Notifier) handleEvent(event domain.Event) {
	msg, ok := formatEvent(event)
	if !ok {
		return
	}
	if !n.allow(event.EventType) {
		logger.Debugf("Notifier: %s throttled", event.EventType)
		return
	}
	n.deliver(string(event.EventType), msg)
}

// allow applies the per-event-type throttle window.
func (n *Notifier) allow(eventType domain.EventType) bool {
	if n.throttle <= 0 {
		return true
	}
	now := n.clk.Now()

	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.lastSent[eventType]; ok && now.Sub(last) < n.throttle {
		return false
	}
	n.lastSent[eventType] = now
	return true
}

func (n *Notifier) deliver(eventType string, msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	for _, s := range n.sinks {
		err := s.Send(ctx, msg)
		if err != nil {
			logger.Warnf("Notifier: %s delivery failed: %v", s.Name(), err)
		}
		n.publishOutcome(s.Name(), eventType, msg.Title, err)
	}
}

func (n *Notifier) publishOutcome(sinkName, eventType, title string, sendErr error) {
	resultType := domain.NotificationSent
	data := map[string]interface{}{
		"sink":  sinkName,
		"title": title,
	}
	if eventType != "" {
		data["trigger"] = eventType
	}
	if sendErr != nil {
		resultType = domain.NotificationFailed
		data["error"] = sendErr.Error()
	}
	if err := n.eventBus.Publish(domain.Event{
		AggregateType: "notification",
		AggregateID:   sinkName,
		EventType:     resultType,
		EventData:     data,
	}); err != nil {
		logger.Errorf("Notifier: publish %s failed: %v", resultType, err)
	}
}

// formatEvent renders a bus event into a notification. Returns false for
// events that carry nothing worth announcing.
func formatEvent(event domain.Event) (Message, bool) {
	title := event.GetStringOr("title", "")
	mediaRef := title
	if season, ok := event.GetInt64("season"); ok {
		if episode, epOk := event.GetInt64("episode"); epOk {
			mediaRef = fmt.Sprintf("%s S%02dE%02d", title, season, episode)
		}
	}

	switch event.EventType {
	case domain.GrabConfirmed:
		return Message{
			Title: "Remediarr: issue remediated",
			Body:  fmt.Sprintf("%s: replacement download grabbed.", orUnknown(mediaRef)),
			Level: LevelSuccess,
		}, true
	case domain.VerificationTimeout:
		return Message{
			Title: "Remediarr: no grab yet",
			Body:  fmt.Sprintf("%s: search triggered but no grab observed within the budget.", orUnknown(mediaRef)),
			Level: LevelWarning,
		}, true
	case domain.MediaNotFound:
		return Message{
			Title: "Remediarr: media not in library",
			Body:  fmt.Sprintf("%s: reported media was not found in the library manager.", orUnknown(mediaRef)),
			Level: LevelWarning,
		}, true
	case domain.DeletionFailed:
		return Message{
			Title: "Remediarr: file deletion failed",
			Body:  fmt.Sprintf("%s: could not delete the reported file, continuing with a search.", orUnknown(mediaRef)),
			Level: LevelWarning,
		}, true
	case domain.InstanceUnhealthy:
		service := event.GetStringOr("service", "downstream service")
		reason := event.GetStringOr("error", "unreachable")
		return Message{
			Title: fmt.Sprintf("Remediarr: %s unreachable", service),
			Body:  reason,
			Level: LevelFailure,
		}, true
	case domain.InstanceHealthy:
		service := event.GetStringOr("service", "downstream service")
		return Message{
			Title: fmt.Sprintf("Remediarr: %s reachable", service),
			Body:  fmt.Sprintf("%s is responding again.", service),
			Level: LevelInfo,
		}, true
	}
	return Message{}, false
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown media"
	}
	return s
}

// defaultHTTPClient is shared by HTTP-based sinks.
var defaultHTTPClient = &http.Client{Timeout: sendTimeout}
