package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/remediarr/remediarr/internal/clock"
	"github.com/remediarr/remediarr/internal/logger"
)

const tmdbDigitalRelease = 4

// TMDB checks digital availability before a wrong-movie report is allowed
// to trigger a re-search. Authentication rides on the api_key query
// parameter rather than a header.
type TMDB struct {
	svc    httpService
	apiKey string
	clk    clock.Clock
}

func NewTMDB(apiKey string, clk clock.Clock, breakers *CircuitBreakerRegistry, retry RetryPolicy) *TMDB {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	base := ""
	if apiKey != "" {
		base = "https://api.themoviedb.org/3"
	}
	return &TMDB{
		svc: httpService{
			name:        "tmdb",
			baseURL:     base,
			client:      &http.Client{Timeout: 15 * time.Second},
			limiter:     NewRateLimiter(4, 8),
			breakers:    breakers,
			retryPolicy: retry,
		},
		apiKey: apiKey,
		clk:    clk,
	}
}

// IsDigitallyReleased reports whether the movie has a digital release date
// in the past. Without an API key the gate is permissive so remediation is
// never blocked by missing configuration.
func (t *TMDB) IsDigitallyReleased(ctx context.Context, tmdbID int64) (bool, string, error) {
	if t.apiKey == "" {
		return true, "", nil
	}

	released, date, err := t.digitalReleaseDate(ctx, tmdbID)
	if err == nil {
		return released, date, nil
	}
	logger.Debugf("TMDB: release_dates lookup for %d failed (%v), falling back to primary release date", tmdbID, err)

	var movie struct {
		ReleaseDate string `json:"release_date"`
	}
	endpoint := fmt.Sprintf("/movie/%d?api_key=%s", tmdbID, url.QueryEscape(t.apiKey))
	if err := t.svc.doJSON(ctx, http.MethodGet, endpoint, nil, &movie); err != nil {
		return false, "", err
	}
	if movie.ReleaseDate == "" {
		return false, "", nil
	}
	when, err := time.Parse("2006-01-02", movie.ReleaseDate)
	if err != nil {
		return false, "", nil
	}
	return !when.After(t.clk.Now()), movie.ReleaseDate, nil
}

func (t *TMDB) digitalReleaseDate(ctx context.Context, tmdbID int64) (bool, string, error) {
	var doc struct {
		Results []struct {
			ReleaseDates []struct {
				Type        int    `json:"type"`
				ReleaseDate string `json:"release_date"`
			} `json:"release_dates"`
		} `json:"results"`
	}
	endpoint := fmt.Sprintf("/movie/%d/release_dates?api_key=%s", tmdbID, url.QueryEscape(t.apiKey))
	if err := t.svc.doJSON(ctx, http.MethodGet, endpoint, nil, &doc); err != nil {
		return false, "", err
	}

	var earliest time.Time
	for _, region := range doc.Results {
		for _, rd := range region.ReleaseDates {
			if rd.Type != tmdbDigitalRelease {
				continue
			}
			when, err := time.Parse(time.RFC3339, rd.ReleaseDate)
			if err != nil {
				continue
			}
			if earliest.IsZero() || when.Before(earliest) {
				earliest = when
			}
		}
	}
	if earliest.IsZero() {
		return false, "", nil
	}
	return !earliest.After(t.clk.Now()), earliest.Format("2006-01-02"), nil
}
