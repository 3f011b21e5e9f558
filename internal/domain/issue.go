package domain

import "fmt"

// MediaType distinguishes the two downstream managers.
type MediaType string

const (
	MediaMovie  MediaType = "movie"
	MediaSeries MediaType = "tv"
)

// Category is the classified problem bucket driving the remediation path.
type Category string

const (
	CategoryNone     Category = ""
	CategoryAudio    Category = "audio"
	CategoryVideo    Category = "video"
	CategorySubtitle Category = "subtitle"
	CategoryOther    Category = "other"
	CategoryWrong    Category = "wrong" // movie-only: "not the right movie"
)

// IssueContext is the normalized view of one webhook delivery. All identifier
// fields are pointers: absence is propagated, never defaulted to a sentinel
// that could be mistaken for a real id.
type IssueContext struct {
	DeliveryID string

	Event     string
	Subject   string
	Message   string
	IssueID   *int64
	IssueType string

	MediaType MediaType
	TMDBID    *int64
	TVDBID    *int64
	IMDBID    string

	Season  *int
	Episode *int

	CommentText string
	CommentedBy string
	ReportedBy  string
}

// IsComment reports whether the delivery was triggered by a new comment.
func (ic *IssueContext) IsComment() bool {
	return ic.CommentText != ""
}

// HasEpisodeScope reports whether a series issue names a single episode.
func (ic *IssueContext) HasEpisodeScope() bool {
	return ic.Season != nil && ic.Episode != nil
}

// Text returns the text to classify: the comment when present, otherwise the
// issue subject and message.
func (ic *IssueContext) Text() string {
	if ic.CommentText != "" {
		return ic.CommentText
	}
	if ic.Subject != "" && ic.Message != "" {
		return ic.Subject + " " + ic.Message
	}
	return ic.Subject + ic.Message
}

// DisplayRef formats the issue target for logs, e.g. "movie tmdb:603" or
// "tv tvdb:121361 S01E01".
func (ic *IssueContext) DisplayRef() string {
	switch ic.MediaType {
	case MediaMovie:
		if ic.TMDBID != nil {
			return fmt.Sprintf("movie tmdb:%d", *ic.TMDBID)
		}
		return "movie (no id)"
	case MediaSeries:
		ref := "tv (no id)"
		if ic.TVDBID != nil {
			ref = fmt.Sprintf("tv tvdb:%d", *ic.TVDBID)
		}
		if ic.HasEpisodeScope() {
			ref = fmt.Sprintf("%s S%02dE%02d", ref, *ic.Season, *ic.Episode)
		}
		return ref
	default:
		return "unknown media"
	}
}
