package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestBazarr(serverURL string) *Bazarr {
	return NewBazarr(serverURL, "test-api-key", newTestBreakers(), testRetryPolicy())
}

func TestBazarr_Enabled(t *testing.T) {
	if NewBazarr("", "", newTestBreakers(), testRetryPolicy()).Enabled() {
		t.Error("Expected Bazarr without URL to be disabled")
	}
	if !newTestBazarr("http://bazarr:6767").Enabled() {
		t.Error("Expected Bazarr with URL to be enabled")
	}
}

func TestBazarr_MovieSubtitles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/movies" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("X-API-KEY") != "test-api-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("radarrid[]") != "42" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"subtitles": []map[string]string{
					{"name": "English", "code2": "en", "path": "/movies/matrix.en.srt"},
					{"name": "German", "code2": "de", "path": "/movies/matrix.de.srt"},
				}},
			},
		})
	}))
	defer server.Close()

	client := newTestBazarr(server.URL)

	subs, err := client.MovieSubtitles(t.Context(), 42)
	if err != nil {
		t.Fatalf("MovieSubtitles failed: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("Expected 2 subtitles, got %d", len(subs))
	}
	if subs[0].Code2 != "en" || subs[1].Language != "German" {
		t.Errorf("Unexpected subtitles: %+v", subs)
	}
}

func TestBazarr_EpisodeSubtitles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/episodes" || r.URL.Query().Get("episodeid[]") != "100" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"subtitles": []map[string]string{
					{"name": "English", "code2": "en", "path": "/tv/got.s01e01.en.srt"},
				}},
			},
		})
	}))
	defer server.Close()

	client := newTestBazarr(server.URL)

	subs, err := client.EpisodeSubtitles(t.Context(), 100)
	if err != nil {
		t.Fatalf("EpisodeSubtitles failed: %v", err)
	}
	if len(subs) != 1 || subs[0].Path != "/tv/got.s01e01.en.srt" {
		t.Errorf("Unexpected subtitles: %+v", subs)
	}
}

func TestBazarr_TriggerSubtitleSearches(t *testing.T) {
	type call struct {
		method string
		path   string
		query  string
	}
	var calls []call
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path, r.URL.RawQuery})
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestBazarr(server.URL)

	if err := client.TriggerMovieSubtitleSearch(t.Context(), 42); err != nil {
		t.Fatalf("TriggerMovieSubtitleSearch failed: %v", err)
	}
	if err := client.TriggerEpisodeSubtitleSearch(t.Context(), 100); err != nil {
		t.Fatalf("TriggerEpisodeSubtitleSearch failed: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("Expected 2 calls, got %d", len(calls))
	}
	if calls[0].method != http.MethodPatch || calls[0].path != "/api/movies" || calls[0].query != "action=search-missing&radarrid=42" {
		t.Errorf("Unexpected movie search call: %+v", calls[0])
	}
	if calls[1].method != http.MethodPatch || calls[1].path != "/api/episodes" || calls[1].query != "action=search-missing&sonarrepisodeid=100" {
		t.Errorf("Unexpected episode search call: %+v", calls[1])
	}
}

func TestBazarr_DeleteSubtitles(t *testing.T) {
	type call struct {
		method string
		path   string
	}
	var calls []call
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path})
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestBazarr(server.URL)

	if err := client.DeleteMovieSubtitle(t.Context(), 42, 7); err != nil {
		t.Fatalf("DeleteMovieSubtitle failed: %v", err)
	}
	if err := client.DeleteEpisodeSubtitle(t.Context(), 100, 9); err != nil {
		t.Fatalf("DeleteEpisodeSubtitle failed: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("Expected 2 calls, got %d", len(calls))
	}
	if calls[0].method != http.MethodDelete || calls[0].path != "/api/movies/42/subtitles/7" {
		t.Errorf("Unexpected movie subtitle delete: %+v", calls[0])
	}
	if calls[1].method != http.MethodDelete || calls[1].path != "/api/episodes/100/subtitles/9" {
		t.Errorf("Unexpected episode subtitle delete: %+v", calls[1])
	}
}

func TestBazarr_NotConfigured(t *testing.T) {
	client := NewBazarr("", "", newTestBreakers(), testRetryPolicy())

	if _, err := client.MovieSubtitles(t.Context(), 42); err == nil {
		t.Error("Expected error for unconfigured Bazarr")
	}
	if err := client.SystemStatus(t.Context()); err == nil {
		t.Error("Expected error for unconfigured Bazarr")
	}
}
