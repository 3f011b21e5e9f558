package integration

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/remediarr/remediarr/internal/config"
	"github.com/remediarr/remediarr/internal/logger"
)

// Radarr implements RadarrClient against the v3 API.
type Radarr struct {
	svc httpService
}

func NewRadarr(baseURL, apiKey string, timeout time.Duration, breakers *CircuitBreakerRegistry, retry RetryPolicy) *Radarr {
	cfg := config.Get()
	return &Radarr{
		svc: httpService{
			name:        "radarr",
			baseURL:     baseURL,
			apiKey:      apiKey,
			client:      &http.Client{Timeout: timeout},
			limiter:     NewRateLimiter(cfg.ArrRateLimitRPS, cfg.ArrRateLimitBurst),
			breakers:    breakers,
			retryPolicy: retry,
		},
	}
}

// LookupByTMDB resolves a library movie by TMDB id. Returns nil when the
// movie is not in the library.
func (r *Radarr) LookupByTMDB(ctx context.Context, tmdbID int64) (*Movie, error) {
	var movies []Movie
	if err := r.svc.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/v3/movie?tmdbId=%d", tmdbID), nil, &movies); err != nil {
		return nil, err
	}
	if len(movies) == 0 {
		return nil, nil
	}
	return &movies[0], nil
}

func (r *Radarr) GetMovieFiles(ctx context.Context, movieID int64) ([]MediaFile, error) {
	var files []MediaFile
	if err := r.svc.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/v3/moviefile?movieId=%d", movieID), nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (r *Radarr) DeleteMovieFile(ctx context.Context, fileID int64) error {
	return r.svc.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/v3/moviefile/%d", fileID), nil, nil)
}

// MarkLastGrabFailed marks the most recent grab for the movie as failed in
// history, which adds the release to the blocklist. Returns false when the
// movie has no grab history.
func (r *Radarr) MarkLastGrabFailed(ctx context.Context, movieID int64) (bool, error) {
	grab, err := r.latestGrab(ctx, movieID)
	if err != nil {
		return false, err
	}
	if grab == nil {
		logger.Debugf("Radarr: no grab history for movie %d, nothing to blocklist", movieID)
		return false, nil
	}
	if err := r.svc.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/v3/history/failed/%d", grab.ID), nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// TriggerSearch kicks off an automatic search for the movie. Older servers
// only accept the singular command name, so that is tried as a fallback.
func (r *Radarr) TriggerSearch(ctx context.Context, movieID int64) error {
	payload := map[string]interface{}{"name": "MoviesSearch", "movieIds": []int64{movieID}}
	err := r.svc.doJSON(ctx, http.MethodPost, "/api/v3/command", payload, nil)
	if err == nil {
		return nil
	}
	logger.Debugf("Radarr: MoviesSearch command failed (%v), retrying as MovieSearch", err)
	payload["name"] = "MovieSearch"
	return r.svc.doJSON(ctx, http.MethodPost, "/api/v3/command", payload, nil)
}

// QueueContains reports whether the movie currently has a queued download.
func (r *Radarr) QueueContains(ctx context.Context, movieID int64) (bool, error) {
	var doc interface{}
	if err := r.svc.doJSON(ctx, http.MethodGet, "/api/v3/queue?page=1&pageSize=100", nil, &doc); err != nil {
		return false, err
	}
	for _, rec := range extractRecords(doc) {
		if id, ok := numField(rec, "movieId"); ok && id == movieID {
			return true, nil
		}
	}
	return false, nil
}

// HasGrabSince reports whether a grab strictly after baseline appears in
// the movie's history.
func (r *Radarr) HasGrabSince(ctx context.Context, movieID int64, baseline time.Time) (bool, error) {
	grabs, err := r.grabHistory(ctx, movieID)
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

func (r *Radarr) SystemStatus(ctx context.Context) error {
	return r.svc.doJSON(ctx, http.MethodGet, "/api/v3/system/status", nil, nil)
}

func (r *Radarr) latestGrab(ctx context.Context, movieID int64) (*historyRecord, error) {
	grabs, err := r.grabHistory(ctx, movieID)
	if err != nil {
		return nil, err
	}
	if len(grabs) == 0 {
		return nil, nil
	}
	latest := grabs[0]
	for _, g := range grabs[1:] {
		if g.Date.After(latest.Date) {
			latest = g
		}
	}
	return &latest, nil
}

func (r *Radarr) grabHistory(ctx context.Context, movieID int64) ([]historyRecord, error) {
	var doc interface{}
	if err := r.svc.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/v3/history/movie?movieId=%d", movieID), nil, &doc); err != nil {
		return nil, err
	}
	return grabRecords(extractRecords(doc)), nil
}
