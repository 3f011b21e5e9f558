package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/remediarr/remediarr/internal/domain"
	"github.com/remediarr/remediarr/internal/eventbus"
	"github.com/remediarr/remediarr/internal/logger"
)

// MetricsService exposes Prometheus metrics for Remediarr
type MetricsService struct {
	eventBus eventbus.Publisher

	// Counters
	webhooksReceived     prometheus.Counter
	issuesIgnored        *prometheus.CounterVec
	classificationsTotal *prometheus.CounterVec
	remediationsTotal    *prometheus.CounterVec
	deletionsTotal       *prometheus.CounterVec
	searchesTotal        *prometheus.CounterVec
	commentsTotal        *prometheus.CounterVec
	closesTotal          *prometheus.CounterVec
	blocklistTotal       prometheus.Counter
	coachingTotal        prometheus.Counter
	notificationsTotal   *prometheus.CounterVec

	// Gauges
	activeVerifications prometheus.Gauge
	unhealthyInstances  prometheus.Gauge

	// Histograms
	verificationDuration prometheus.Histogram

	// Internal tracking
	mu                 sync.Mutex
	verificationCount  int
	verificationStarts map[string]time.Time
	unhealthyByService map[string]bool
}

// NewMetricsService creates metrics registered on the global Prometheus registry
func NewMetricsService(eb eventbus.Publisher) *MetricsService {
	return NewMetricsServiceWithRegistry(eb, prometheus.DefaultRegisterer)
}

// NewMetricsServiceWithRegistry creates metrics on a caller-provided registry.
// Tests use private registries to avoid duplicate registration.
func NewMetricsServiceWithRegistry(eb eventbus.Publisher, reg prometheus.Registerer) *MetricsService {
	m := &MetricsService{
		eventBus:           eb,
		verificationStarts: make(map[string]time.Time),
		unhealthyByService: make(map[string]bool),

		webhooksReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "remediarr_webhooks_received_total",
				Help: "Total number of webhook deliveries accepted",
			},
		),

		issuesIgnored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remediarr_issues_ignored_total",
				Help: "Total number of deliveries skipped without action, by reason",
			},
			[]string{"reason"},
		),

		classificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remediarr_classifications_total",
				Help: "Total number of keyword classifications by media type and category",
			},
			[]string{"media_type", "category"},
		),

		remediationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remediarr_remediations_total",
				Help: "Total number of remediations by outcome",
			},
			[]string{"outcome"}, // grabbed, timeout
		),

		deletionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remediarr_deletions_total",
				Help: "Total number of file deletion passes by outcome",
			},
			[]string{"outcome"}, // completed, failed
		),

		searchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remediarr_searches_total",
				Help: "Total number of search triggers by outcome",
			},
			[]string{"outcome"}, // started, failed
		),

		commentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remediarr_comments_total",
				Help: "Total number of tracker comments by outcome",
			},
			[]string{"outcome"}, // posted, failed
		),

		closesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remediarr_issue_closes_total",
				Help: "Total number of issue close attempts by outcome",
			},
			[]string{"outcome"}, // closed, failed
		),

		blocklistTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "remediarr_blocklists_total",
				Help: "Total number of grabs marked failed in the library manager",
			},
		),

		coachingTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "remediarr_coaching_total",
				Help: "Total number of keyword coaching comments posted",
			},
		),

		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remediarr_notifications_total",
				Help: "Total number of notifications by outcome",
			},
			[]string{"outcome"}, // sent, failed
		),

		activeVerifications: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "remediarr_active_verifications",
				Help: "Number of grab verifications currently polling",
			},
		),

		unhealthyInstances: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "remediarr_unhealthy_instances",
				Help: "Number of downstream services currently unreachable",
			},
		),

		verificationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "remediarr_verification_duration_seconds",
				Help:    "Time from search trigger to grab confirmation or timeout",
				Buckets: prometheus.ExponentialBuckets(5, 2, 8), // 5s to ~10min
			},
		),
	}

	reg.MustRegister(
		m.webhooksReceived,
		m.issuesIgnored,
		m.classificationsTotal,
		m.remediationsTotal,
		m.deletionsTotal,
		m.searchesTotal,
		m.commentsTotal,
		m.closesTotal,
		m.blocklistTotal,
		m.coachingTotal,
		m.notificationsTotal,
		m.activeVerifications,
		m.unhealthyInstances,
		m.verificationDuration,
	)

	return m
}

// Start subscribes to events and updates metrics
func (m *MetricsService) Start() {
	m.eventBus.Subscribe(domain.WebhookReceived, m.handleWebhookReceived)
	m.eventBus.Subscribe(domain.IssueIgnored, m.handleIssueIgnored)
	m.eventBus.Subscribe(domain.IssueClassified, m.handleIssueClassified)
	m.eventBus.Subscribe(domain.CoachingPosted, m.handleCoachingPosted)
	m.eventBus.Subscribe(domain.BlocklistApplied, m.handleBlocklistApplied)
	m.eventBus.Subscribe(domain.DeletionCompleted, m.handleDeletionCompleted)
	m.eventBus.Subscribe(domain.DeletionFailed, m.handleDeletionFailed)
	m.eventBus.Subscribe(domain.SearchStarted, m.handleSearchStarted)
	m.eventBus.Subscribe(domain.SearchFailed, m.handleSearchFailed)
	m.eventBus.Subscribe(domain.VerificationStarted, m.handleVerificationStarted)
	m.eventBus.Subscribe(domain.GrabConfirmed, m.handleGrabConfirmed)
	m.eventBus.Subscribe(domain.VerificationTimeout, m.handleVerificationTimeout)
	m.eventBus.Subscribe(domain.CommentPosted, m.handleCommentPosted)
	m.eventBus.Subscribe(domain.CommentFailed, m.handleCommentFailed)
	m.eventBus.Subscribe(domain.IssueClosed, m.handleIssueClosed)
	m.eventBus.Subscribe(domain.IssueCloseFailed, m.handleIssueCloseFailed)
	m.eventBus.Subscribe(domain.NotificationSent, m.handleNotificationSent)
	m.eventBus.Subscribe(domain.NotificationFailed, m.handleNotificationFailed)
	m.eventBus.Subscribe(domain.InstanceUnhealthy, m.handleInstanceUnhealthy)
	m.eventBus.Subscribe(domain.InstanceHealthy, m.handleInstanceHealthy)

	logger.Infof("Metrics service started")
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
func (m *MetricsService) Handler() http.Handler {
	return promhttp.Handler()
}

// Event handlers

func (m *MetricsService) handleWebhookReceived(event domain.Event) {
	m.webhooksReceived.Inc()
}

func (m *MetricsService) handleIssueIgnored(event domain.Event) {
	m.issuesIgnored.WithLabelValues(event.GetStringOr("reason", "unknown")).Inc()
}

func (m *MetricsService) handleIssueClassified(event domain.Event) {
	mediaType := event.GetStringOr("media_type", "unknown")
	category := event.GetStringOr("category", "unknown")
	m.classificationsTotal.WithLabelValues(mediaType, category).Inc()
}

func (m *MetricsService) handleCoachingPosted(event domain.Event) {
	m.coachingTotal.Inc()
}

func (m *MetricsService) handleBlocklistApplied(event domain.Event) {
	m.blocklistTotal.Inc()
}

func (m *MetricsService) handleDeletionCompleted(event domain.Event) {
	m.deletionsTotal.WithLabelValues("completed").Inc()
}

func (m *MetricsService) handleDeletionFailed(event domain.Event) {
	m.deletionsTotal.WithLabelValues("failed").Inc()
}

func (m *MetricsService) handleSearchStarted(event domain.Event) {
	m.searchesTotal.WithLabelValues("started").Inc()
}

func (m *MetricsService) handleSearchFailed(event domain.Event) {
	m.searchesTotal.WithLabelValues("failed").Inc()
}

func (m *MetricsService) handleVerificationStarted(event domain.Event) {
	m.mu.Lock()
	m.verificationCount++
	m.activeVerifications.Set(float64(m.verificationCount))
	if event.AggregateID != "" {
		m.verificationStarts[event.AggregateID] = time.Now()
	}
	m.mu.Unlock()
}

func (m *MetricsService) handleGrabConfirmed(event domain.Event) {
	m.remediationsTotal.WithLabelValues("grabbed").Inc()
	m.finishVerification(event.AggregateID)
}

func (m *MetricsService) handleVerificationTimeout(event domain.Event) {
	m.remediationsTotal.WithLabelValues("timeout").Inc()
	m.finishVerification(event.AggregateID)
}

func (m *MetricsService) finishVerification(aggregateID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.verificationCount > 0 {
		m.verificationCount--
		m.activeVerifications.Set(float64(m.verificationCount))
	}
	if started, ok := m.verificationStarts[aggregateID]; ok {
		m.verificationDuration.Observe(time.Since(started).Seconds())
		delete(m.verificationStarts, aggregateID)
	}
}

func (m *MetricsService) handleCommentPosted(event domain.Event) {
	m.commentsTotal.WithLabelValues("posted").Inc()
}

func (m *MetricsService) handleCommentFailed(event domain.Event) {
	m.commentsTotal.WithLabelValues("failed").Inc()
}

func (m *MetricsService) handleIssueClosed(event domain.Event) {
	m.closesTotal.WithLabelValues("closed").Inc()
}

func (m *MetricsService) handleIssueCloseFailed(event domain.Event) {
	m.closesTotal.WithLabelValues("failed").Inc()
}

func (m *MetricsService) handleNotificationSent(event domain.Event) {
	m.notificationsTotal.WithLabelValues("sent").Inc()
}

func (m *MetricsService) handleNotificationFailed(event domain.Event) {
	m.notificationsTotal.WithLabelValues("failed").Inc()
}

func (m *MetricsService) handleInstanceUnhealthy(event domain.Event) {
	service := event.GetStringOr("service", "unknown")
	m.mu.Lock()
	m.unhealthyByService[service] = true
	m.unhealthyInstances.Set(float64(len(m.unhealthyByService)))
	m.mu.Unlock()
}

func (m *MetricsService) handleInstanceHealthy(event domain.Event) {
	service := event.GetStringOr("service", "unknown")
	m.mu.Lock()
	delete(m.unhealthyByService, service)
	m.unhealthyInstances.Set(float64(len(m.unhealthyByService)))
	m.mu.Unlock()
}
