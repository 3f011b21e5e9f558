package testutil

import (
	"fmt"
	"time"

	"github.com/remediarr/remediarr/internal/domain"
)

// =============================================================================
// Webhook payload fixtures
// =============================================================================

// MovieIssuePayload is a movie issue delivery in the common Jellyseerr
// shape: tmdbId 603, issue 42, "black screen, no video".
const MovieIssuePayload = `{
	"event": "issue.created",
	"subject": "Issue reported: The Matrix (1999)",
	"message": "A new issue was reported",
	"media": {"media_type": "movie", "tmdbId": 603},
	"issue": {"issue_id": 42, "issue_type": "video", "issue_status": "open"},
	"comment": {"comment_message": "black screen, no video", "commentedBy": "alice"}
}`

// SeriesIssuePayload is a series issue delivery: tvdbId 121361, S01E01,
// "no audio".
const SeriesIssuePayload = `{
	"event": "issue.created",
	"subject": "Issue reported: Game of Thrones",
	"message": "A new issue was reported",
	"media": {"media_type": "tv", "tvdbId": 121361},
	"issue": {"issue_id": 77, "issue_type": "audio", "affected_season": 1, "affected_episode": 1},
	"comment": {"comment_message": "no audio", "commentedBy": "bob"}
}`

// NoKeywordPayload carries a comment the classifier cannot bucket.
const NoKeywordPayload = `{
	"event": "issue.comment",
	"media": {"media_type": "tv", "tvdbId": 121361},
	"issue": {"issue_id": 78, "issue_type": "audio", "affected_season": 1, "affected_episode": 1},
	"comment": {"comment_message": "great episode!", "commentedBy": "carol"}
}`

// BotCommentPayload is the bot reacting to its own output.
const BotCommentPayload = `{
	"event": "issue.comment",
	"media": {"media_type": "movie", "tmdbId": 603},
	"issue": {"issue_id": 42, "issue_type": "video"},
	"comment": {"comment_message": "[Remediarr] Search triggered. no video yet", "commentedBy": "remediarr-bot"}
}`

// SeriesNoEpisodePayload lacks season/episode, so the orchestrator must
// not touch Sonarr unless the tracker fills the gap.
const SeriesNoEpisodePayload = `{
	"event": "issue.created",
	"media": {"media_type": "tv", "tvdbId": 121361},
	"issue": {"issue_id": 79, "issue_type": "video"},
	"comment": {"comment_message": "black screen", "commentedBy": "dave"}
}`

// WrongMoviePayload reports the wrong movie was downloaded.
const WrongMoviePayload = `{
	"event": "issue.created",
	"media": {"media_type": "movie", "tmdbId": 603},
	"issue": {"issue_id": 43, "issue_type": "other"},
	"comment": {"comment_message": "wrong movie, this is a different film", "commentedBy": "erin"}
}`

// WebhookEvent wraps a raw payload the way the webhook handler publishes it.
func WebhookEvent(deliveryID, rawBody string) domain.Event {
	return domain.Event{
		AggregateType: "issue",
		AggregateID:   deliveryID,
		EventType:     domain.WebhookReceived,
		EventData: map[string]interface{}{
			"delivery_id": deliveryID,
			"raw_body":    rawBody,
		},
	}
}

// =============================================================================
// Audit event fixtures
// =============================================================================

// EventOption mutates a fixture event before it is returned.
type EventOption func(*domain.Event)

func WithAggregateID(id string) EventOption {
	return func(e *domain.Event) {
		e.AggregateID = id
	}
}

func WithCreatedAt(t time.Time) EventOption {
	return func(e *domain.Event) {
		e.CreatedAt = t
	}
}

func WithEventData(data map[string]interface{}) EventOption {
	return func(e *domain.Event) {
		for k, v := range data {
			e.EventData[k] = v
		}
	}
}

// NewIssueEvent builds an audit event for the given issue.
func NewIssueEvent(eventType domain.EventType, issueID int64, opts ...EventOption) domain.Event {
	e := domain.Event{
		AggregateType: "issue",
		AggregateID:   fmt.Sprintf("%d", issueID),
		EventType:     eventType,
		EventData: map[string]interface{}{
			"issue_id": issueID,
		},
		EventVersion: 1,
		CreatedAt:    time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// IssueFlow returns the event sequence of one successful movie remediation,
// useful for seeding the audit log in API and metrics tests.
func IssueFlow(issueID int64, title string) []domain.Event {
	return []domain.Event{
		NewIssueEvent(domain.WebhookReceived, issueID),
		NewIssueEvent(domain.IssueClassified, issueID, WithEventData(map[string]interface{}{
			"media_type": "movie", "category": "video", "matched": "no video",
		})),
		NewIssueEvent(domain.DeletionCompleted, issueID, WithEventData(map[string]interface{}{
			"title": title, "deleted_files": int64(1),
		})),
		NewIssueEvent(domain.SearchStarted, issueID, WithEventData(map[string]interface{}{
			"title": title, "media_type": "movie",
		})),
		NewIssueEvent(domain.GrabConfirmed, issueID, WithEventData(map[string]interface{}{
			"title": title, "media_type": "movie", "deleted_files": int64(1),
		})),
		NewIssueEvent(domain.CommentPosted, issueID),
		NewIssueEvent(domain.IssueClosed, issueID),
	}
}
