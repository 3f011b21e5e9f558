// Package testutil provides test utilities including mocks, fixtures, and test database helpers.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/remediarr/remediarr/internal/clock"
	"github.com/remediarr/remediarr/internal/domain"
	"github.com/remediarr/remediarr/internal/eventbus"
	"github.com/remediarr/remediarr/internal/integration"
)

// =============================================================================
// MockClock - Testable time abstraction
// =============================================================================

// MockClock implements clock.Clock for testing, providing deterministic control
// over time-dependent operations like cooldown expiry and verification polls.
type MockClock struct {
	mu           sync.Mutex
	now          time.Time
	pendingFuncs []pendingFunc
}

type pendingFunc struct {
	executeAt time.Time
	fn        func()
	stopped   bool
}

// MockTimer implements clock.Timer for testing.
type MockTimer struct {
	clock *MockClock
	index int
}

// Compile-time assertion that MockClock implements clock.Clock
var _ clock.Clock = (*MockClock)(nil)

// NewMockClock creates a new MockClock with the current time as initial value.
func NewMockClock() *MockClock {
	return &MockClock{
		now: time.Now(),
	}
}

// NewMockClockAt creates a new MockClock with a specific initial time.
func NewMockClockAt(t time.Time) *MockClock {
	return &MockClock{
		now: t,
	}
}

// Now returns the mock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// SetNow sets the mock's current time without triggering pending functions.
func (m *MockClock) SetNow(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// AfterFunc schedules f to be called after duration d.
// Returns a Timer that can be used to cancel the call.
func (m *MockClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	executeAt := m.now.Add(d)
	index := len(m.pendingFuncs)
	m.pendingFuncs = append(m.pendingFuncs, pendingFunc{
		executeAt: executeAt,
		fn:        f,
		stopped:   false,
	})

	return &MockTimer{clock: m, index: index}
}

// Advance moves time forward by the given duration and executes any functions
// whose scheduled time has passed. Returns the number of functions executed.
func (m *MockClock) Advance(d time.Duration) int {
	m.mu.Lock()
	newTime := m.now.Add(d)
	m.now = newTime

	var toExecute []func()
	for i := range m.pendingFuncs {
		pf := &m.pendingFuncs[i]
		if !pf.stopped && !pf.executeAt.After(newTime) {
			toExecute = append(toExecute, pf.fn)
			pf.stopped = true
		}
	}
	m.mu.Unlock()

	// Execute outside the lock to avoid deadlocks
	for _, fn := range toExecute {
		fn()
	}
	return len(toExecute)
}

// FireAll immediately executes all pending scheduled functions, regardless of
// their scheduled time. Useful for testing without worrying about delays.
func (m *MockClock) FireAll() int {
	m.mu.Lock()
	var toExecute []func()
	for i := range m.pendingFuncs {
		pf := &m.pendingFuncs[i]
		if !pf.stopped {
			toExecute = append(toExecute, pf.fn)
			pf.stopped = true
		}
	}
	m.mu.Unlock()

	for _, fn := range toExecute {
		fn()
	}
	return len(toExecute)
}

// PendingCount returns the number of scheduled functions that haven't been
// executed or stopped.
func (m *MockClock) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, pf := range m.pendingFuncs {
		if !pf.stopped {
			count++
		}
	}
	return count
}

// Reset clears all pending scheduled functions and resets time to now.
func (m *MockClock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingFuncs = nil
	m.now = time.Now()
}

// Stop prevents the timer from firing. Returns true if the timer was stopped,
// false if it had already fired or been stopped.
func (t *MockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.index < len(t.clock.pendingFuncs) && !t.clock.pendingFuncs[t.index].stopped {
		t.clock.pendingFuncs[t.index].stopped = true
		return true
	}
	return false
}

// =============================================================================
// AutoClock - clock whose timers fire immediately
// =============================================================================

// AutoClock advances its own time and fires every AfterFunc callback right
// away. Poll loops built on the clock run to completion without sleeping,
// which keeps verification tests fast and deterministic.
type AutoClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ clock.Clock = (*AutoClock)(nil)

func NewAutoClockAt(t time.Time) *AutoClock {
	return &AutoClock{now: t}
}

func (a *AutoClock) Now() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.now
}

// Advance moves the clock forward without firing anything.
func (a *AutoClock) Advance(d time.Duration) {
	a.mu.Lock()
	a.now = a.now.Add(d)
	a.mu.Unlock()
}

func (a *AutoClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	a.mu.Lock()
	a.now = a.now.Add(d)
	a.mu.Unlock()
	f()
	return noopTimer{}
}

type noopTimer struct{}

func (noopTimer) Stop() bool { return false }

// =============================================================================
// MockEventBus - In-memory event bus
// =============================================================================

// MockEventBus provides a simple in-memory event bus for testing.
// It captures all published events and allows synchronous subscription.
// Implements eventbus.Publisher interface.
type MockEventBus struct {
	mu              sync.Mutex
	PublishedEvents []domain.Event
	Subscribers     map[domain.EventType][]func(domain.Event)
}

// Compile-time assertion that MockEventBus implements eventbus.Publisher
var _ eventbus.Publisher = (*MockEventBus)(nil)

// NewMockEventBus creates a new mock event bus.
func NewMockEventBus() *MockEventBus {
	return &MockEventBus{
		Subscribers: make(map[domain.EventType][]func(domain.Event)),
	}
}

// Publish stores the event and notifies subscribers synchronously.
func (m *MockEventBus) Publish(event domain.Event) error {
	m.mu.Lock()
	m.PublishedEvents = append(m.PublishedEvents, event)
	subscribers := m.Subscribers[event.EventType]
	m.mu.Unlock()

	// Notify subscribers synchronously for deterministic testing
	for _, handler := range subscribers {
		handler(event)
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (m *MockEventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscribers[eventType] = append(m.Subscribers[eventType], handler)
}

// GetEvents returns all published events of a given type.
func (m *MockEventBus) GetEvents(eventType domain.EventType) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Event
	for _, e := range m.PublishedEvents {
		if e.EventType == eventType {
			result = append(result, e)
		}
	}
	return result
}

// GetAllEvents returns all published events.
func (m *MockEventBus) GetAllEvents() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.Event, len(m.PublishedEvents))
	copy(result, m.PublishedEvents)
	return result
}

// Reset clears all published events and subscribers.
func (m *MockEventBus) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = nil
	m.Subscribers = make(map[domain.EventType][]func(domain.Event))
}

// SubscriptionCount returns the total number of registered handlers.
func (m *MockEventBus) SubscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, handlers := range m.Subscribers {
		total += len(handlers)
	}
	return total
}

// EventCount returns the number of events of a given type.
func (m *MockEventBus) EventCount(eventType domain.EventType) int {
	return len(m.GetEvents(eventType))
}

// LastEvent returns the most recently published event, or nil if none.
func (m *MockEventBus) LastEvent() *domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.PublishedEvents) == 0 {
		return nil
	}
	return &m.PublishedEvents[len(m.PublishedEvents)-1]
}

// =============================================================================
// Call tracking shared by the client mocks
// =============================================================================

// MockCall records a method call for verification in tests.
type MockCall struct {
	Method string
	Args   []interface{}
}

type callRecorder struct {
	mu    sync.Mutex
	Calls []MockCall
}

func (r *callRecorder) recordCall(method string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, MockCall{Method: method, Args: args})
}

// CallCount returns the number of times a method was called.
func (r *callRecorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, call := range r.Calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

// ResetCalls clears the call history.
func (r *callRecorder) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = nil
}

// =============================================================================
// MockRadarr - Mock for integration.RadarrClient
// =============================================================================

// MockRadarr implements integration.RadarrClient for testing.
// All methods delegate to configurable function fields.
type MockRadarr struct {
	callRecorder

	LookupByTMDBFunc       func(tmdbID int64) (*integration.Movie, error)
	GetMovieFilesFunc      func(movieID int64) ([]integration.MediaFile, error)
	DeleteMovieFileFunc    func(fileID int64) error
	MarkLastGrabFailedFunc func(movieID int64) (bool, error)
	TriggerSearchFunc      func(movieID int64) error
	QueueContainsFunc      func(movieID int64) (bool, error)
	HasGrabSinceFunc       func(movieID int64, baseline time.Time) (bool, error)
	SystemStatusFunc       func() error
}

var _ integration.RadarrClient = (*MockRadarr)(nil)

func (m *MockRadarr) LookupByTMDB(ctx context.Context, tmdbID int64) (*integration.Movie, error) {
	m.recordCall("LookupByTMDB", tmdbID)
	if m.LookupByTMDBFunc != nil {
		return m.LookupByTMDBFunc(tmdbID)
	}
	return nil, nil
}

func (m *MockRadarr) GetMovieFiles(ctx context.Context, movieID int64) ([]integration.MediaFile, error) {
	m.recordCall("GetMovieFiles", movieID)
	if m.GetMovieFilesFunc != nil {
		return m.GetMovieFilesFunc(movieID)
	}
	return nil, nil
}

func (m *MockRadarr) DeleteMovieFile(ctx context.Context, fileID int64) error {
	m.recordCall("DeleteMovieFile", fileID)
	if m.DeleteMovieFileFunc != nil {
		return m.DeleteMovieFileFunc(fileID)
	}
	return nil
}

func (m *MockRadarr) MarkLastGrabFailed(ctx context.Context, movieID int64) (bool, error) {
	m.recordCall("MarkLastGrabFailed", movieID)
	if m.MarkLastGrabFailedFunc != nil {
		return m.MarkLastGrabFailedFunc(movieID)
	}
	return false, nil
}

func (m *MockRadarr) TriggerSearch(ctx context.Context, movieID int64) error {
	m.recordCall("TriggerSearch", movieID)
	if m.TriggerSearchFunc != nil {
		return m.TriggerSearchFunc(movieID)
	}
	return nil
}

func (m *MockRadarr) QueueContains(ctx context.Context, movieID int64) (bool, error) {
	m.recordCall("QueueContains", movieID)
	if m.QueueContainsFunc != nil {
		return m.QueueContainsFunc(movieID)
	}
	return false, nil
}

func (m *MockRadarr) HasGrabSince(ctx context.Context, movieID int64, baseline time.Time) (bool, error) {
	m.recordCall("HasGrabSince", movieID, baseline)
	if m.HasGrabSinceFunc != nil {
		return m.HasGrabSinceFunc(movieID, baseline)
	}
	return false, nil
}

func (m *MockRadarr) SystemStatus(ctx context.Context) error {
	m.recordCall("SystemStatus")
	if m.SystemStatusFunc != nil {
		return m.SystemStatusFunc()
	}
	return nil
}

// =============================================================================
// MockSonarr - Mock for integration.SonarrClient
// =============================================================================

// MockSonarr implements integration.SonarrClient for testing.
type MockSonarr struct {
	callRecorder

	LookupByTVDBFunc         func(tvdbID int64) (*integration.Series, error)
	GetEpisodesFunc          func(seriesID int64) ([]integration.Episode, error)
	DeleteEpisodeFileFunc    func(fileID int64) error
	TriggerEpisodeSearchFunc func(episodeIDs []int64) error
	TriggerSeriesSearchFunc  func(seriesID int64) error
	MarkLastGrabFailedFunc   func(episodeID int64) (bool, error)
	QueueContainsFunc        func(episodeID int64) (bool, error)
	HasGrabSinceFunc         func(episodeID int64, baseline time.Time) (bool, error)
	SystemStatusFunc         func() error
}

var _ integration.SonarrClient = (*MockSonarr)(nil)

func (m *MockSonarr) LookupByTVDB(ctx context.Context, tvdbID int64) (*integration.Series, error) {
	m.recordCall("LookupByTVDB", tvdbID)
	if m.LookupByTVDBFunc != nil {
		return m.LookupByTVDBFunc(tvdbID)
	}
	return nil, nil
}

func (m *MockSonarr) GetEpisodes(ctx context.Context, seriesID int64) ([]integration.Episode, error) {
	m.recordCall("GetEpisodes", seriesID)
	if m.GetEpisodesFunc != nil {
		return m.GetEpisodesFunc(seriesID)
	}
	return nil, nil
}

func (m *MockSonarr) DeleteEpisodeFile(ctx context.Context, fileID int64) error {
	m.recordCall("DeleteEpisodeFile", fileID)
	if m.DeleteEpisodeFileFunc != nil {
		return m.DeleteEpisodeFileFunc(fileID)
	}
	return nil
}

func (m *MockSonarr) TriggerEpisodeSearch(ctx context.Context, episodeIDs []int64) error {
	m.recordCall("TriggerEpisodeSearch", episodeIDs)
	if m.TriggerEpisodeSearchFunc != nil {
		return m.TriggerEpisodeSearchFunc(episodeIDs)
	}
	return nil
}

func (m *MockSonarr) TriggerSeriesSearch(ctx context.Context, seriesID int64) error {
	m.recordCall("TriggerSeriesSearch", seriesID)
	if m.TriggerSeriesSearchFunc != nil {
		return m.TriggerSeriesSearchFunc(seriesID)
	}
	return nil
}

func (m *MockSonarr) MarkLastGrabFailed(ctx context.Context, episodeID int64) (bool, error) {
	m.recordCall("MarkLastGrabFailed", episodeID)
	if m.MarkLastGrabFailedFunc != nil {
		return m.MarkLastGrabFailedFunc(episodeID)
	}
	return false, nil
}

func (m *MockSonarr) QueueContains(ctx context.Context, episodeID int64) (bool, error) {
	m.recordCall("QueueContains", episodeID)
	if m.QueueContainsFunc != nil {
		return m.QueueContainsFunc(episodeID)
	}
	return false, nil
}

func (m *MockSonarr) HasGrabSince(ctx context.Context, episodeID int64, baseline time.Time) (bool, error) {
	m.recordCall("HasGrabSince", episodeID, baseline)
	if m.HasGrabSinceFunc != nil {
		return m.HasGrabSinceFunc(episodeID, baseline)
	}
	return false, nil
}

func (m *MockSonarr) SystemStatus(ctx context.Context) error {
	m.recordCall("SystemStatus")
	if m.SystemStatusFunc != nil {
		return m.SystemStatusFunc()
	}
	return nil
}

// =============================================================================
// MockJellyseerr - Mock for integration.JellyseerrClient
// =============================================================================

// MockJellyseerr implements integration.JellyseerrClient for testing.
type MockJellyseerr struct {
	callRecorder

	FetchIssueFunc   func(issueID int64) (map[string]interface{}, error)
	PostCommentFunc  func(issueID int64, message string) error
	CloseIssueFunc   func(issueID int64) error
	SystemStatusFunc func() error
}

var _ integration.JellyseerrClient = (*MockJellyseerr)(nil)

func (m *MockJellyseerr) FetchIssue(ctx context.Context, issueID int64) (map[string]interface{}, error) {
	m.recordCall("FetchIssue", issueID)
	if m.FetchIssueFunc != nil {
		return m.FetchIssueFunc(issueID)
	}
	return map[string]interface{}{}, nil
}

func (m *MockJellyseerr) PostComment(ctx context.Context, issueID int64, message string) error {
	m.recordCall("PostComment", issueID, message)
	if m.PostCommentFunc != nil {
		return m.PostCommentFunc(issueID, message)
	}
	return nil
}

func (m *MockJellyseerr) CloseIssue(ctx context.Context, issueID int64) error {
	m.recordCall("CloseIssue", issueID)
	if m.CloseIssueFunc != nil {
		return m.CloseIssueFunc(issueID)
	}
	return nil
}

func (m *MockJellyseerr) SystemStatus(ctx context.Context) error {
	m.recordCall("SystemStatus")
	if m.SystemStatusFunc != nil {
		return m.SystemStatusFunc()
	}
	return nil
}

// Comments returns the message of every PostComment call, in order.
func (m *MockJellyseerr) Comments() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, call := range m.Calls {
		if call.Method == "PostComment" && len(call.Args) == 2 {
			if msg, ok := call.Args[1].(string); ok {
				out = append(out, msg)
			}
		}
	}
	return out
}

// =============================================================================
// MockTMDB - Mock for integration.TMDBClient
// =============================================================================

// MockTMDB implements integration.TMDBClient for testing.
type MockTMDB struct {
	callRecorder

	IsDigitallyReleasedFunc func(tmdbID int64) (bool, string, error)
}

var _ integration.TMDBClient = (*MockTMDB)(nil)

func (m *MockTMDB) IsDigitallyReleased(ctx context.Context, tmdbID int64) (bool, string, error) {
	m.recordCall("IsDigitallyReleased", tmdbID)
	if m.IsDigitallyReleasedFunc != nil {
		return m.IsDigitallyReleasedFunc(tmdbID)
	}
	return true, "", nil
}

// =============================================================================
// MockBazarr - Mock for integration.BazarrClient
// =============================================================================

// MockBazarr implements integration.BazarrClient for testing.
type MockBazarr struct {
	callRecorder

	EnabledValue                     bool
	MovieSubtitlesFunc               func(radarrMovieID int64) ([]integration.Subtitle, error)
	EpisodeSubtitlesFunc             func(sonarrEpisodeID int64) ([]integration.Subtitle, error)
	DeleteMovieSubtitleFunc          func(radarrMovieID, subtitleID int64) error
	DeleteEpisodeSubtitleFunc        func(sonarrEpisodeID, subtitleID int64) error
	TriggerMovieSubtitleSearchFunc   func(radarrMovieID int64) error
	TriggerEpisodeSubtitleSearchFunc func(sonarrEpisodeID int64) error
	SystemStatusFunc                 func() error
}

var _ integration.BazarrClient = (*MockBazarr)(nil)

func (m *MockBazarr) Enabled() bool {
	return m.EnabledValue
}

func (m *MockBazarr) MovieSubtitles(ctx context.Context, radarrMovieID int64) ([]integration.Subtitle, error) {
	m.recordCall("MovieSubtitles", radarrMovieID)
	if m.MovieSubtitlesFunc != nil {
		return m.MovieSubtitlesFunc(radarrMovieID)
	}
	return nil, nil
}

func (m *MockBazarr) EpisodeSubtitles(ctx context.Context, sonarrEpisodeID int64) ([]integration.Subtitle, error) {
	m.recordCall("EpisodeSubtitles", sonarrEpisodeID)
	if m.EpisodeSubtitlesFunc != nil {
		return m.EpisodeSubtitlesFunc(sonarrEpisodeID)
	}
	return nil, nil
}

func (m *MockBazarr) DeleteMovieSubtitle(ctx context.Context, radarrMovieID, subtitleID int64) error {
	m.recordCall("DeleteMovieSubtitle", radarrMovieID, subtitleID)
	if m.DeleteMovieSubtitleFunc != nil {
		return m.DeleteMovieSubtitleFunc(radarrMovieID, subtitleID)
	}
	return nil
}

func (m *MockBazarr) DeleteEpisodeSubtitle(ctx context.Context, sonarrEpisodeID, subtitleID int64) error {
	m.recordCall("DeleteEpisodeSubtitle", sonarrEpisodeID, subtitleID)
	if m.DeleteEpisodeSubtitleFunc != nil {
		return m.DeleteEpisodeSubtitleFunc(sonarrEpisodeID, subtitleID)
	}
	return nil
}

func (m *MockBazarr) TriggerMovieSubtitleSearch(ctx context.Context, radarrMovieID int64) error {
	m.recordCall("TriggerMovieSubtitleSearch", radarrMovieID)
	if m.TriggerMovieSubtitleSearchFunc != nil {
		return m.TriggerMovieSubtitleSearchFunc(radarrMovieID)
	}
	return nil
}

func (m *MockBazarr) TriggerEpisodeSubtitleSearch(ctx context.Context, sonarrEpisodeID int64) error {
	m.recordCall("TriggerEpisodeSubtitleSearch", sonarrEpisodeID)
	if m.TriggerEpisodeSubtitleSearchFunc != nil {
		return m.TriggerEpisodeSubtitleSearchFunc(sonarrEpisodeID)
	}
	return nil
}

func (m *MockBazarr) SystemStatus(ctx context.Context) error {
	m.recordCall("SystemStatus")
	if m.SystemStatusFunc != nil {
		return m.SystemStatusFunc()
	}
	return nil
}
