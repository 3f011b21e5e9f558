package integration

import (
	"context"
	"time"
)

// RadarrClient covers the Radarr operations the remediation flow needs.
type RadarrClient interface {
	// LookupByTMDB resolves a library movie by its TMDB id.
	LookupByTMDB(ctx context.Context, tmdbID int64) (*Movie, error)
	GetMovieFiles(ctx context.Context, movieID int64) ([]MediaFile, error)
	DeleteMovieFile(ctx context.Context, fileID int64) error
	// MarkLastGrabFailed marks the most recent grab in history as failed,
	// which blocklists the release. Returns false when no grab exists.
	MarkLastGrabFailed(ctx context.Context, movieID int64) (bool, error)
	TriggerSearch(ctx context.Context, movieID int64) error
	QueueContains(ctx context.Context, movieID int64) (bool, error)
	// HasGrabSince reports whether a grab strictly after baseline exists.
	HasGrabSince(ctx context.Context, movieID int64, baseline time.Time) (bool, error)
	SystemStatus(ctx context.Context) error
}

// SonarrClient covers the Sonarr operations the remediation flow needs.
type SonarrClient interface {
	LookupByTVDB(ctx context.Context, tvdbID int64) (*Series, error)
	GetEpisodes(ctx context.Context, seriesID int64) ([]Episode, error)
	DeleteEpisodeFile(ctx context.Context, fileID int64) error
	TriggerEpisodeSearch(ctx context.Context, episodeIDs []int64) error
	TriggerSeriesSearch(ctx context.Context, seriesID int64) error
	MarkLastGrabFailed(ctx context.Context, episodeID int64) (bool, error)
	QueueContains(ctx context.Context, episodeID int64) (bool, error)
	HasGrabSince(ctx context.Context, episodeID int64, baseline time.Time) (bool, error)
	SystemStatus(ctx context.Context) error
}

// JellyseerrClient talks to the request tracker that sent the webhook.
type JellyseerrClient interface {
	// FetchIssue returns the raw issue document; the payload shape varies
	// across tracker versions so callers get the decoded JSON as-is.
	FetchIssue(ctx context.Context, issueID int64) (map[string]interface{}, error)
	PostComment(ctx context.Context, issueID int64, message string) error
	CloseIssue(ctx context.Context, issueID int64) error
	SystemStatus(ctx context.Context) error
}

// TMDBClient gates wrong-movie re-searches on actual availability.
type TMDBClient interface {
	// IsDigitallyReleased reports whether the movie has a digital release
	// date in the past, plus the date for display when known.
	IsDigitallyReleased(ctx context.Context, tmdbID int64) (bool, string, error)
}

// BazarrClient handles subtitle-level remediation when a Bazarr instance
// is configured.
type BazarrClient interface {
	// Enabled reports whether a Bazarr instance is configured.
	Enabled() bool
	MovieSubtitles(ctx context.Context, radarrMovieID int64) ([]Subtitle, error)
	EpisodeSubtitles(ctx context.Context, sonarrEpisodeID int64) ([]Subtitle, error)
	DeleteMovieSubtitle(ctx context.Context, radarrMovieID, subtitleID int64) error
	DeleteEpisodeSubtitle(ctx context.Context, sonarrEpisodeID, subtitleID int64) error
	TriggerMovieSubtitleSearch(ctx context.Context, radarrMovieID int64) error
	TriggerEpisodeSubtitleSearch(ctx context.Context, sonarrEpisodeID int64) error
	SystemStatus(ctx context.Context) error
}

// Movie is a Radarr library entry.
type Movie struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Year        int    `json:"year"`
	HasFile     bool   `json:"hasFile"`
	Monitored   bool   `json:"monitored"`
	MovieFileID int64  `json:"movieFileId"`
	TMDBID      int64  `json:"tmdbId"`
}

// Series is a Sonarr library entry.
type Series struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Year   int    `json:"year"`
	TVDBID int64  `json:"tvdbId"`
}

// Episode is a Sonarr episode record.
type Episode struct {
	ID            int64  `json:"id"`
	SeriesID      int64  `json:"seriesId"`
	SeasonNumber  int    `json:"seasonNumber"`
	EpisodeNumber int    `json:"episodeNumber"`
	Title         string `json:"title"`
	HasFile       bool   `json:"hasFile"`
	EpisodeFileID int64  `json:"episodeFileId"`
	Monitored     bool   `json:"monitored"`
}

// MediaFile is a movie or episode file entry in Sonarr/Radarr.
type MediaFile struct {
	ID           int64  `json:"id"`
	Path         string `json:"path"`
	RelativePath string `json:"relativePath"`
}

// Subtitle is a subtitle track known to Bazarr.
type Subtitle struct {
	ID       int64  `json:"id"`
	Language string `json:"name"`
	Code2    string `json:"code2"`
	Path     string `json:"path"`
}
