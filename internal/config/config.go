package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is set at build time via -ldflags
// Default "dev" is used for development builds
var Version = "dev"

// BotPrefix tags every comment this service posts and drives self-loop
// protection. It is deliberately not configurable: changing it on a running
// deployment would make the service react to its own older comments.
const BotPrefix = "[Remediarr]"

// Config holds all application configuration loaded from environment variables.
// All fields have sensible defaults if environment variables are not set.
type Config struct {
	// Port is the HTTP server listen port (default: 8189)
	Port string

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error" (default: "info")
	LogLevel string

	// DataDir is the directory for persistent data (database, logs)
	// Default: /config in Docker, ./config locally
	DataDir string

	// DatabasePath is the SQLite database file path (default: <DataDir>/remediarr.db)
	DatabasePath string

	// LogDir is the directory for log files (default: <DataDir>/logs)
	LogDir string

	// CORSOrigin is the allowed CORS origin for the API and websocket ("" = same-origin)
	CORSOrigin string

	// WebhookSharedSecret enables HMAC-SHA256 verification of the raw webhook
	// body against the X-Jellyseerr-Signature header when non-empty.
	WebhookSharedSecret string

	// WebhookHeaderName / WebhookHeaderValue enable a static header check on
	// the webhook endpoint when WebhookHeaderValue is non-empty.
	WebhookHeaderName  string
	WebhookHeaderValue string

	// Jellyseerr connection and behavior
	JellyseerrURL             string
	JellyseerrAPIKey          string
	JellyseerrCloseIssues     bool
	JellyseerrCloseMessage    string
	JellyseerrCommentOnAction bool
	JellyseerrCoachReporters  bool
	JellyseerrBotUsername     string

	// Sonarr / Radarr connections
	SonarrURL         string
	SonarrAPIKey      string
	SonarrHTTPTimeout time.Duration
	RadarrURL         string
	RadarrAPIKey      string
	RadarrHTTPTimeout time.Duration

	// Bazarr connection (optional; subtitle remediation is delegated here when set)
	BazarrURL               string
	BazarrAPIKey            string
	BazarrSubtitleLanguages string
	BazarrForceRedownload   bool

	// TMDB release-date gate for wrong-movie reports
	TMDBAPIKey                 string
	SearchOnlyIfDigitalRelease bool

	// EnableBlocklist marks the last movie grab as failed before re-searching
	EnableBlocklist bool

	// IssueCooldown is the per-issue window during which repeated webhook
	// deliveries are not re-actioned (default: 90s)
	IssueCooldown time.Duration

	// Grab verification windows
	RadarrVerifyGrab time.Duration
	SonarrVerifyGrab time.Duration
	VerifyPoll       time.Duration

	// Outbound HTTP retry policy
	HTTPMaxRetries   int
	HTTPRetryBackoff time.Duration

	// ArrRateLimitRPS / ArrRateLimitBurst bound request rates to downstream APIs
	ArrRateLimitRPS   float64
	ArrRateLimitBurst int

	// Keyword lists, comma-separated lowercase phrases
	TVAudioKeywords       string
	TVVideoKeywords       string
	TVSubtitleKeywords    string
	TVOtherKeywords       string
	MovieAudioKeywords    string
	MovieVideoKeywords    string
	MovieSubtitleKeywords string
	MovieOtherKeywords    string
	MovieWrongKeywords    string

	// SubtitleDeleteFiles controls whether the subtitle bucket deletes media
	// files before searching (default: false, search-only)
	SubtitleDeleteFiles bool

	// Message templates. Placeholders: {title}, {season:02d}, {episode:02d},
	// {deleted}, {keywords}. The bot prefix is prepended by code.
	MsgTVAudioHandled          string
	MsgTVVideoHandled          string
	MsgTVSubHandled            string
	MsgTVOtherCoach            string
	MsgMovieAudioHandled       string
	MsgMovieVideoHandled       string
	MsgMovieSubHandled         string
	MsgMovieWrongHandled       string
	MsgMovieWrongNoRelease     string
	MsgMovieOtherCoach         string
	MsgKeywordCoach            string
	MsgAutocloseFail           string
	MsgMovieReplacedAndGrabbed string
	MsgTVReplacedAndGrabbed    string
	MsgMovieSearchOnlyGrabbed  string
	MsgTVSearchOnlyGrabbed     string

	// Notification sinks (optional)
	GotifyURL      string
	GotifyToken    string
	GotifyPriority int
	AppriseURL     string
	AppriseTargets string

	// NotifyThrottle is the minimum gap between notifications of the same
	// event type. Repeats inside the window are dropped.
	NotifyThrottle time.Duration

	// HealthcheckCron schedules periodic downstream reachability checks
	HealthcheckCron string

	// RetentionDays is how long audit events are kept (0 disables pruning)
	RetentionDays int
}

// Global singleton
var cfg *Config

// Load reads configuration from environment variables with sensible defaults.
// Should be called once at application startup.
func Load() *Config {
	// Determine DataDir - this is where all persistent data lives
	dataDir := getEnvOrDefault("REMEDIARR_DATA_DIR", "")
	if dataDir == "" {
		// Check if we're in Docker (has /config directory)
		if info, err := os.Stat("/config"); err == nil && info.IsDir() {
			dataDir = "/config"
		} else if cwd, err := os.Getwd(); err == nil {
			dataDir = filepath.Join(cwd, "config")
		} else {
			dataDir = "./config"
		}
	}
	if absDataDir, err := filepath.Abs(dataDir); err == nil {
		dataDir = absDataDir
	}
	os.MkdirAll(dataDir, 0755)

	dbPath := getEnvOrDefault("REMEDIARR_DB_PATH", "")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "remediarr.db")
	}

	logDir := filepath.Join(dataDir, "logs")
	os.MkdirAll(logDir, 0755)

	cfg = &Config{
		Port:         getEnvOrDefault("REMEDIARR_PORT", "8189"),
		LogLevel:     strings.ToLower(getEnvOrDefault("REMEDIARR_LOG_LEVEL", "info")),
		DataDir:      dataDir,
		DatabasePath: dbPath,
		LogDir:       logDir,
		CORSOrigin:   getEnvOrDefault("REMEDIARR_CORS_ORIGIN", ""),

		WebhookSharedSecret: os.Getenv("WEBHOOK_SHARED_SECRET"),
		WebhookHeaderName:   getEnvOrDefault("WEBHOOK_HEADER_NAME", "X-Jellyseerr-Token"),
		WebhookHeaderValue:  os.Getenv("WEBHOOK_HEADER_VALUE"),

		JellyseerrURL:             strings.TrimSuffix(getEnvOrDefault("JELLYSEERR_URL", "http://jellyseerr:5055"), "/"),
		JellyseerrAPIKey:          os.Getenv("JELLYSEERR_API_KEY"),
		JellyseerrCloseIssues:     getEnvBoolOrDefault("JELLYSEERR_CLOSE_ISSUES", true),
		JellyseerrCloseMessage:    getEnvOrDefault("JELLYSEERR_CLOSE_MESSAGE", "Issue auto-closed after remediation. If anything's still off, comment and I'll take another pass."),
		JellyseerrCommentOnAction: getEnvBoolOrDefault("JELLYSEERR_COMMENT_ON_ACTION", true),
		JellyseerrCoachReporters:  getEnvBoolOrDefault("JELLYSEERR_COACH_REPORTERS", true),
		JellyseerrBotUsername:     os.Getenv("JELLYSEERR_BOT_USERNAME"),

		SonarrURL:         strings.TrimSuffix(getEnvOrDefault("SONARR_URL", "http://sonarr:8989"), "/"),
		SonarrAPIKey:      os.Getenv("SONARR_API_KEY"),
		SonarrHTTPTimeout: getEnvSecondsOrDefault("SONARR_HTTP_TIMEOUT", 60*time.Second),
		RadarrURL:         strings.TrimSuffix(getEnvOrDefault("RADARR_URL", "http://radarr:7878"), "/"),
		RadarrAPIKey:      os.Getenv("RADARR_API_KEY"),
		RadarrHTTPTimeout: getEnvSecondsOrDefault("RADARR_HTTP_TIMEOUT", 60*time.Second),

		BazarrURL:               strings.TrimSuffix(os.Getenv("BAZARR_URL"), "/"),
		BazarrAPIKey:            os.Getenv("BAZARR_API_KEY"),
		BazarrSubtitleLanguages: getEnvOrDefault("BAZARR_SUBTITLE_LANGUAGES", "en"),
		BazarrForceRedownload:   getEnvBoolOrDefault("BAZARR_FORCE_REDOWNLOAD", false),

		TMDBAPIKey:                 os.Getenv("TMDB_API_KEY"),
		SearchOnlyIfDigitalRelease: getEnvBoolOrDefault("SEARCH_ONLY_IF_DIGITAL_RELEASE", true),
		EnableBlocklist:            getEnvBoolOrDefault("ENABLE_BLOCKLIST", true),

		IssueCooldown:    getEnvSecondsOrDefault("REMEDIARR_ISSUE_COOLDOWN_SEC", 90*time.Second),
		RadarrVerifyGrab: getEnvSecondsOrDefault("RADARR_VERIFY_GRAB_SEC", 60*time.Second),
		SonarrVerifyGrab: getEnvSecondsOrDefault("SONARR_VERIFY_GRAB_SEC", 60*time.Second),
		VerifyPoll:       getEnvSecondsOrDefault("VERIFY_POLL_SEC", 5*time.Second),

		HTTPMaxRetries:   getEnvIntOrDefault("HTTP_MAX_RETRIES", 3),
		HTTPRetryBackoff: getEnvSecondsOrDefault("HTTP_RETRY_BACKOFF_SEC", 2*time.Second),

		ArrRateLimitRPS:   getEnvFloatOrDefault("REMEDIARR_ARR_RATE_LIMIT_RPS", 5.0),
		ArrRateLimitBurst: getEnvIntOrDefault("REMEDIARR_ARR_RATE_LIMIT_BURST", 10),

		TVAudioKeywords:       getEnvOrDefault("TV_AUDIO_KEYWORDS", "no audio,no sound,missing audio,audio issue,wrong language,not in english"),
		TVVideoKeywords:       getEnvOrDefault("TV_VIDEO_KEYWORDS", "no video,video glitch,black screen,stutter,pixelation"),
		TVSubtitleKeywords:    getEnvOrDefault("TV_SUBTITLE_KEYWORDS", "missing subs,no subtitles,bad subtitles,wrong subs,subs out of sync"),
		TVOtherKeywords:       getEnvOrDefault("TV_OTHER_KEYWORDS", "buffering,playback error,corrupt file"),
		MovieAudioKeywords:    getEnvOrDefault("MOVIE_AUDIO_KEYWORDS", "no audio,no sound,audio issue,wrong language,not in english"),
		MovieVideoKeywords:    getEnvOrDefault("MOVIE_VIDEO_KEYWORDS", "no video,video missing,bad video,broken video,black screen"),
		MovieSubtitleKeywords: getEnvOrDefault("MOVIE_SUBTITLE_KEYWORDS", "missing subs,no subtitles,bad subtitles,wrong subs,subs out of sync"),
		MovieOtherKeywords:    getEnvOrDefault("MOVIE_OTHER_KEYWORDS", "buffering,playback error,corrupt file"),
		MovieWrongKeywords:    getEnvOrDefault("MOVIE_WRONG_KEYWORDS", "not the right movie,wrong movie,incorrect movie"),

		SubtitleDeleteFiles: getEnvBoolOrDefault("SUBTITLE_DELETE_FILES", false),

		MsgTVAudioHandled:          getEnvOrDefault("MSG_TV_AUDIO_HANDLED", "Fixed TV audio issue automatically: {title} S{season:02d}E{episode:02d}"),
		MsgTVVideoHandled:          getEnvOrDefault("MSG_TV_VIDEO_HANDLED", "Fixed TV video issue automatically: {title} S{season:02d}E{episode:02d}"),
		MsgTVSubHandled:            getEnvOrDefault("MSG_TV_SUB_HANDLED", "Fixed subtitle issue automatically: {title} S{season:02d}E{episode:02d}"),
		MsgTVOtherCoach:            getEnvOrDefault("MSG_TV_OTHER_COACH", "This type of TV issue can't be auto-fixed. Please wait for admin review."),
		MsgMovieAudioHandled:       getEnvOrDefault("MSG_MOVIE_AUDIO_HANDLED", "Fixed movie audio issue automatically: {title}"),
		MsgMovieVideoHandled:       getEnvOrDefault("MSG_MOVIE_VIDEO_HANDLED", "Fixed movie video issue automatically: {title}"),
		MsgMovieSubHandled:         getEnvOrDefault("MSG_MOVIE_SUB_HANDLED", "Fixed movie subtitle issue automatically: {title}"),
		MsgMovieWrongHandled:       getEnvOrDefault("MSG_MOVIE_WRONG_HANDLED", "Wrong movie reported - handled automatically: {title}"),
		MsgMovieWrongNoRelease:     getEnvOrDefault("MSG_MOVIE_WRONG_NO_RELEASE", "Wrong movie: {title}. Blocklisted last grab, deleted {deleted} file(s). Not searching (not digitally released)."),
		MsgMovieOtherCoach:         getEnvOrDefault("MSG_MOVIE_OTHER_COACH", "This type of movie issue can't be auto-fixed. Please wait for admin review."),
		MsgKeywordCoach:            getEnvOrDefault("MSG_KEYWORD_COACH", "Tip: include one of these keywords next time so I can repair this automatically: {keywords}"),
		MsgAutocloseFail:           getEnvOrDefault("MSG_AUTOCLOSE_FAIL", "Action completed but I couldn't auto-close this issue. Please close it once you verify it's fixed."),
		MsgMovieReplacedAndGrabbed: getEnvOrDefault("MSG_MOVIE_REPLACED_AND_GRABBED", "{title}: replaced file; new download grabbed. Closing this issue. If anything's still off, comment and I'll take another pass."),
		MsgTVReplacedAndGrabbed:    getEnvOrDefault("MSG_TV_REPLACED_AND_GRABBED", "{title} S{season:02d}E{episode:02d}: replaced file; new download grabbed. Closing this issue. If anything's still off, comment and I'll take another pass."),
		MsgMovieSearchOnlyGrabbed:  getEnvOrDefault("MSG_MOVIE_SEARCH_ONLY_GRABBED", "{title}: new download grabbed. Closing this issue. If anything's still off, comment and I'll take another pass."),
		MsgTVSearchOnlyGrabbed:     getEnvOrDefault("MSG_TV_SEARCH_ONLY_GRABBED", "{title} S{season:02d}E{episode:02d}: new download grabbed. Closing this issue. If anything's still off, comment and I'll take another pass."),

		GotifyURL:      strings.TrimSuffix(os.Getenv("GOTIFY_URL"), "/"),
		GotifyToken:    os.Getenv("GOTIFY_TOKEN"),
		GotifyPriority: getEnvIntOrDefault("GOTIFY_PRIORITY", 5),
		AppriseURL:     strings.TrimSuffix(os.Getenv("APPRISE_URL"), "/"),
		AppriseTargets: os.Getenv("APPRISE_TARGETS"),
		NotifyThrottle: getEnvSecondsOrDefault("NOTIFY_THROTTLE_SEC", 60*time.Second),

		HealthcheckCron: getEnvOrDefault("HEALTHCHECK_CRON", "@every 10m"),
		RetentionDays:   getEnvIntOrDefault("REMEDIARR_RETENTION_DAYS", 90),
	}

	// Validate log level
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		cfg.LogLevel = "info" // Fall back to info for invalid values
	}

	return cfg
}

// Get returns the current configuration. Panics if Load() hasn't been called.
func Get() *Config {
	if cfg == nil {
		panic("config.Load() must be called before config.Get()")
	}
	return cfg
}

// SetForTesting allows tests to set the global config without calling Load().
// This should ONLY be used in test code.
func SetForTesting(c *Config) {
	cfg = c
}

// NewTestConfig returns a minimal Config suitable for unit tests.
func NewTestConfig() *Config {
	return &Config{
		Port:                       "8189",
		LogLevel:                   "debug",
		DataDir:                    "/tmp/remediarr-test",
		DatabasePath:               "/tmp/remediarr-test/remediarr.db",
		LogDir:                     "/tmp/remediarr-test/logs",
		WebhookHeaderName:          "X-Jellyseerr-Token",
		JellyseerrURL:              "http://jellyseerr:5055",
		JellyseerrCloseIssues:      true,
		JellyseerrCloseMessage:     "Issue auto-closed after remediation.",
		JellyseerrCommentOnAction:  true,
		JellyseerrCoachReporters:   true,
		SonarrURL:                  "http://sonarr:8989",
		SonarrHTTPTimeout:          60 * time.Second,
		RadarrURL:                  "http://radarr:7878",
		RadarrHTTPTimeout:          60 * time.Second,
		BazarrSubtitleLanguages:    "en",
		SearchOnlyIfDigitalRelease: true,
		EnableBlocklist:            true,
		IssueCooldown:              90 * time.Second,
		RadarrVerifyGrab:           60 * time.Second,
		SonarrVerifyGrab:           60 * time.Second,
		VerifyPoll:                 5 * time.Second,
		HTTPMaxRetries:             3,
		HTTPRetryBackoff:           2 * time.Second,
		ArrRateLimitRPS:            5,
		ArrRateLimitBurst:          10,
		TVAudioKeywords:            "no audio,no sound,missing audio,audio issue,wrong language,not in english",
		TVVideoKeywords:            "no video,video glitch,black screen,stutter,pixelation",
		TVSubtitleKeywords:         "missing subs,no subtitles,bad subtitles,wrong subs,subs out of sync",
		TVOtherKeywords:            "buffering,playback error,corrupt file",
		MovieAudioKeywords:         "no audio,no sound,audio issue,wrong language,not in english",
		MovieVideoKeywords:         "no video,video missing,bad video,broken video,black screen",
		MovieSubtitleKeywords:      "missing subs,no subtitles,bad subtitles,wrong subs,subs out of sync",
		MovieOtherKeywords:         "buffering,playback error,corrupt file",
		MovieWrongKeywords:         "not the right movie,wrong movie,incorrect movie",
		MsgTVAudioHandled:          "Fixed TV audio issue automatically: {title} S{season:02d}E{episode:02d}",
		MsgTVVideoHandled:          "Fixed TV video issue automatically: {title} S{season:02d}E{episode:02d}",
		MsgTVSubHandled:            "Fixed subtitle issue automatically: {title} S{season:02d}E{episode:02d}",
		MsgTVOtherCoach:            "This type of TV issue can't be auto-fixed. Please wait for admin review.",
		MsgMovieAudioHandled:       "Fixed movie audio issue automatically: {title}",
		MsgMovieVideoHandled:       "Fixed movie video issue automatically: {title}",
		MsgMovieSubHandled:         "Fixed movie subtitle issue automatically: {title}",
		MsgMovieWrongHandled:       "Wrong movie reported - handled automatically: {title}",
		MsgMovieWrongNoRelease:     "Wrong movie: {title}. Blocklisted last grab, deleted {deleted} file(s). Not searching (not digitally released).",
		MsgMovieOtherCoach:         "This type of movie issue can't be auto-fixed. Please wait for admin review.",
		MsgKeywordCoach:            "Tip: include one of these keywords next time so I can repair this automatically: {keywords}",
		MsgAutocloseFail:           "Action completed but I couldn't auto-close this issue. Please close it once you verify it's fixed.",
		MsgMovieReplacedAndGrabbed: "{title}: replaced file; new download grabbed. Closing this issue.",
		MsgTVReplacedAndGrabbed:    "{title} S{season:02d}E{episode:02d}: replaced file; new download grabbed. Closing this issue.",
		MsgMovieSearchOnlyGrabbed:  "{title}: new download grabbed. Closing this issue.",
		MsgTVSearchOnlyGrabbed:     "{title} S{season:02d}E{episode:02d}: new download grabbed. Closing this issue.",
		GotifyPriority:             5,
		NotifyThrottle:             60 * time.Second,
		HealthcheckCron:            "@every 10m",
		RetentionDays:              90,
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable as an int or the default if not set/invalid.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvSecondsOrDefault reads a duration expressed either as bare seconds
// ("90") or as a Go duration string ("90s", "2m"). The bare-seconds form is
// the established deployment convention for the *_SEC variables.
func getEnvSecondsOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if i, err := strconv.Atoi(value); err == nil {
		return time.Duration(i) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the environment variable as a bool or the default if not set.
// Accepts "true", "1", "yes" as true values (case-insensitive).
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

// getEnvFloatOrDefault returns the environment variable as a float64 or the default if not set/invalid.
func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// FlagOverrides holds command-line flag values that can override environment variables
type FlagOverrides struct {
	Port          *string
	LogLevel      *string
	DataDir       *string
	DatabasePath  *string
	IssueCooldown *time.Duration
	RetentionDays *int
}

// ApplyFlags applies command-line flag overrides to the configuration.
// Should be called after Load() and after flag parsing.
// Only non-nil values with non-default flag values will override.
func ApplyFlags(flags FlagOverrides) {
	if cfg == nil {
		return
	}

	if flags.Port != nil && *flags.Port != "" {
		cfg.Port = *flags.Port
	}
	if flags.LogLevel != nil && *flags.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(*flags.LogLevel)
	}
	if flags.DataDir != nil && *flags.DataDir != "" {
		cfg.DataDir = *flags.DataDir
	}
	if flags.DatabasePath != nil && *flags.DatabasePath != "" {
		cfg.DatabasePath = *flags.DatabasePath
	}
	if flags.IssueCooldown != nil && *flags.IssueCooldown != 0 {
		cfg.IssueCooldown = *flags.IssueCooldown
	}
	if flags.RetentionDays != nil {
		cfg.RetentionDays = *flags.RetentionDays
	}
}
