package integration

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Bazarr implements BazarrClient. The service is optional; an unset base
// URL makes every call fail with a configuration error, and callers are
// expected to check Enabled first.
type Bazarr struct {
	svc httpService
}

func NewBazarr(baseURL, apiKey string, breakers *CircuitBreakerRegistry, retry RetryPolicy) *Bazarr {
	return &Bazarr{
		svc: httpService{
			name:        "bazarr",
			baseURL:     baseURL,
			apiKey:      apiKey,
			authHeader:  "X-API-KEY",
			client:      &http.Client{Timeout: 30 * time.Second},
			limiter:     NewRateLimiter(3, 6),
			breakers:    breakers,
			retryPolicy: retry,
		},
	}
}

// Enabled reports whether a Bazarr instance is configured.
func (b *Bazarr) Enabled() bool {
	return b.svc.configured()
}

func (b *Bazarr) MovieSubtitles(ctx context.Context, radarrMovieID int64) ([]Subtitle, error) {
	var doc struct {
		Data []struct {
			Subtitles []Subtitle `json:"subtitles"`
		} `json:"data"`
	}
	endpoint := fmt.Sprintf("/api/movies?start=0&length=-1&radarrid[]=%d", radarrMovieID)
	if err := b.svc.doJSON(ctx, http.MethodGet, endpoint, nil, &doc); err != nil {
		return nil, err
	}
	var subs []Subtitle
	for _, entry := range doc.Data {
		subs = append(subs, entry.Subtitles...)
	}
	return subs, nil
}

func (b *Bazarr) EpisodeSubtitles(ctx context.Context, sonarrEpisodeID int64) ([]Subtitle, error) {
	var doc struct {
		Data []struct {
			Subtitles []Subtitle `json:"subtitles"`
		} `json:"data"`
	}
	endpoint := fmt.Sprintf("/api/episodes?episodeid[]=%d", sonarrEpisodeID)
	if err := b.svc.doJSON(ctx, http.MethodGet, endpoint, nil, &doc); err != nil {
		return nil, err
	}
	var subs []Subtitle
	for _, entry := range doc.Data {
		subs = append(subs, entry.Subtitles...)
	}
	return subs, nil
}

func (b *Bazarr) DeleteMovieSubtitle(ctx context.Context, radarrMovieID, subtitleID int64) error {
	endpoint := fmt.Sprintf("/api/movies/%d/subtitles/%d", radarrMovieID, subtitleID)
	return b.svc.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (b *Bazarr) DeleteEpisodeSubtitle(ctx context.Context, sonarrEpisodeID, subtitleID int64) error {
	endpoint := fmt.Sprintf("/api/episodes/%d/subtitles/%d", sonarrEpisodeID, subtitleID)
	return b.svc.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (b *Bazarr) TriggerMovieSubtitleSearch(ctx context.Context, radarrMovieID int64) error {
	endpoint := fmt.Sprintf("/api/movies?action=search-missing&radarrid=%d", radarrMovieID)
	return b.svc.doJSON(ctx, http.MethodPatch, endpoint, nil, nil)
}

func (b *Bazarr) TriggerEpisodeSubtitleSearch(ctx context.Context, sonarrEpisodeID int64) error {
	endpoint := fmt.Sprintf("/api/episodes?action=search-missing&sonarrepisodeid=%d", sonarrEpisodeID)
	return b.svc.doJSON(ctx, http.MethodPatch, endpoint, nil, nil)
}

func (b *Bazarr) SystemStatus(ctx context.Context) error {
	return b.svc.doJSON(ctx, http.MethodGet, "/api/system/status", nil, nil)
}
