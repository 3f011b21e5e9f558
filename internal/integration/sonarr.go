package integration

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/remediarr/remediarr/internal/config"
	"github.com/remediarr/remediarr/internal/logger"
)

// Sonarr implements SonarrClient against the v3 API.
type Sonarr struct {
	svc httpService
}

func NewSonarr(baseURL, apiKey string, timeout time.Duration, breakers *CircuitBreakerRegistry, retry RetryPolicy) *Sonarr {
	cfg := config.Get()
	return &Sonarr{
		svc: httpService{
			name:        "sonarr",
			baseURL:     baseURL,
			apiKey:      apiKey,
			client:      &http.Client{Timeout: timeout},
			limiter:     NewRateLimiter(cfg.ArrRateLimitRPS, cfg.ArrRateLimitBurst),
			breakers:    breakers,
			retryPolicy: retry,
		},
	}
}

// LookupByTVDB resolves a library series by TVDB id. Returns nil when the
// series is not in the library.
func (s *Sonarr) LookupByTVDB(ctx context.Context, tvdbID int64) (*Series, error) {
	var series []Series
	if err := s.svc.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/v3/series?tvdbId=%d", tvdbID), nil, &series); err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, nil
	}
	return &series[0], nil
}

func (s *Sonarr) GetEpisodes(ctx context.Context, seriesID int64) ([]Episode, error) {
	var episodes []Episode
	if err := s.svc.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/v3/episode?seriesId=%d", seriesID), nil, &episodes); err != nil {
		return nil, err
	}
	return episodes, nil
}

func (s *Sonarr) DeleteEpisodeFile(ctx context.Context, fileID int64) error {
	return s.svc.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/v3/episodefile/%d", fileID), nil, nil)
}

func (s *Sonarr) TriggerEpisodeSearch(ctx context.Context, episodeIDs []int64) error {
	payload := map[string]interface{}{"name": "EpisodeSearch", "episodeIds": episodeIDs}
	return s.svc.doJSON(ctx, http.MethodPost, "/api/v3/command", payload, nil)
}

func (s *Sonarr) TriggerSeriesSearch(ctx context.Context, seriesID int64) error {
	payload := map[string]interface{}{"name": "SeriesSearch", "seriesId": seriesID}
	return s.svc.doJSON(ctx, http.MethodPost, "/api/v3/command", payload, nil)
}

// MarkLastGrabFailed marks the most recent grab for the episode as failed,
// which adds the release to the blocklist. Returns false when the episode
// has no grab history.
func (s *Sonarr) MarkLastGrabFailed(ctx context.Context, episodeID int64) (bool, error) {
	grabs, err := s.grabHistory(ctx, episodeID)
	if err != nil {
		return false, err
	}
	if len(grabs) == 0 {
		logger.Debugf("Sonarr: no grab history for episode %d, nothing to blocklist", episodeID)
		return false, nil
	}
	latest := grabs[0]
	for _, g := range grabs[1:] {
		if g.Date.After(latest.Date) {
			latest = g
		}
	}
	if err := s.svc.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/v3/history/failed/%d", latest.ID), nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// QueueContains reports whether the episode currently has a queued download.
func (s *Sonarr) QueueContains(ctx context.Context, episodeID int64) (bool, error) {
	var doc interface{}
	if err := s.svc.doJSON(ctx, http.MethodGet, "/api/v3/queue?page=1&pageSize=100", nil, &doc); err != nil {
		return false, err
	}
	for _, rec := range extractRecords(doc) {
		if id, ok := numField(rec, "episodeId"); ok && id == episodeID {
			return true, nil
		}
	}
	return false, nil
}

// HasGrabSince reports whether a grab strictly after baseline appears in
// the episode's history.
func (s *Sonarr) HasGrabSince(ctx context.Context, episodeID int64, baseline time.Time) (bool, error) {
	grabs, err := s.grabHistory(ctx, episodeID)
	if err != nil {
		return false, err
	}
	for _, g := range grabs {
		if g.Date.After(baseline) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Sonarr) SystemStatus(ctx context.Context) error {
	return s.svc.doJSON(ctx, http.MethodGet, "/api/v3/system/status", nil, nil)
}

func (s *Sonarr) grabHistory(ctx context.Context, episodeID int64) ([]historyRecord, error) {
	var doc interface{}
	endpoint := fmt.Sprintf("/api/v3/history?episodeId=%d&page=1&pageSize=50&sortKey=date&sortDirection=descending", episodeID)
	if err := s.svc.doJSON(ctx, http.MethodGet, endpoint, nil, &doc); err != nil {
		return nil, err
	}
	return grabRecords(extractRecords(doc)), nil
}
