package domain

import (
	"time"
)

type EventType string

const (
	WebhookReceived     EventType = "WebhookReceived"
	IssueIgnored        EventType = "IssueIgnored" // self-comment, cooldown, wrong event, insufficient context
	IssueClassified     EventType = "IssueClassified"
	CoachingPosted      EventType = "CoachingPosted"
	MediaNotFound       EventType = "MediaNotFound"
	BlocklistApplied    EventType = "BlocklistApplied"
	DeletionStarted     EventType = "DeletionStarted"
	DeletionCompleted   EventType = "DeletionCompleted"
	DeletionFailed      EventType = "DeletionFailed"
	SearchStarted       EventType = "SearchStarted"
	SearchCompleted     EventType = "SearchCompleted"
	SearchFailed        EventType = "SearchFailed"
	VerificationStarted EventType = "VerificationStarted"
	GrabConfirmed       EventType = "GrabConfirmed"
	VerificationTimeout EventType = "VerificationTimeout"
	CommentPosted       EventType = "CommentPosted"
	CommentFailed       EventType = "CommentFailed"
	IssueClosed         EventType = "IssueClosed"
	IssueCloseFailed    EventType = "IssueCloseFailed"
	NotificationSent    EventType = "NotificationSent"
	NotificationFailed  EventType = "NotificationFailed"

	// Downstream health monitoring events
	InstanceUnhealthy EventType = "InstanceUnhealthy"
	InstanceHealthy   EventType = "InstanceHealthy"
)

type Event struct {
	ID            int64                  `json:"id"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	EventType     EventType              `json:"event_type"`
	EventData     map[string]interface{} `json:"event_data"`
	EventVersion  int                    `json:"event_version"`
	CreatedAt     time.Time              `json:"created_at"`
}

// =============================================================================
// Type-safe event data accessors
// These helpers provide compile-time safety when extracting data from events.
// =============================================================================

// GetString safely extracts a string field from EventData.
// Returns the value and true if found and is a string, otherwise empty string and false.
func (e *Event) GetString(key string) (string, bool) {
	if e.EventData == nil {
		return "", false
	}
	v, ok := e.EventData[key].(string)
	return v, ok
}

// GetStringOr extracts a string field or returns the default value.
func (e *Event) GetStringOr(key, defaultVal string) string {
	if v, ok := e.GetString(key); ok {
		return v
	}
	return defaultVal
}

// GetInt64 safely extracts an int64 field from EventData.
// Handles both int64 and float64 (JSON unmarshaling produces float64).
func (e *Event) GetInt64(key string) (int64, bool) {
	if e.EventData == nil {
		return 0, false
	}
	switch v := e.EventData[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// GetInt64Or extracts an int64 field or returns the default value.
func (e *Event) GetInt64Or(key string, defaultVal int64) int64 {
	if v, ok := e.GetInt64(key); ok {
		return v
	}
	return defaultVal
}

// GetBool safely extracts a bool field from EventData.
func (e *Event) GetBool(key string) (bool, bool) {
	if e.EventData == nil {
		return false, false
	}
	v, ok := e.EventData[key].(bool)
	return v, ok
}

// GetBoolOr extracts a bool field or returns the default value.
func (e *Event) GetBoolOr(key string, defaultVal bool) bool {
	if v, ok := e.GetBool(key); ok {
		return v
	}
	return defaultVal
}

// GetMap safely extracts a nested map from EventData.
func (e *Event) GetMap(key string) (map[string]interface{}, bool) {
	if e.EventData == nil {
		return nil, false
	}
	v, ok := e.EventData[key].(map[string]interface{})
	return v, ok
}

// =============================================================================
// Typed event data structures for common events
// =============================================================================

// WebhookEventData carries the raw delivery into the orchestrator.
type WebhookEventData struct {
	DeliveryID string `json:"delivery_id"`
	RawBody    string `json:"raw_body"`
}

// ParseWebhookEventData extracts typed webhook data from an event.
func (e *Event) ParseWebhookEventData() (WebhookEventData, bool) {
	raw, ok := e.GetString("raw_body")
	if !ok {
		return WebhookEventData{}, false
	}
	return WebhookEventData{
		DeliveryID: e.GetStringOr("delivery_id", ""),
		RawBody:    raw,
	}, true
}

// ClassificationEventData contains data for IssueClassified events.
type ClassificationEventData struct {
	IssueID   int64  `json:"issue_id"`
	MediaType string `json:"media_type"`
	Category  string `json:"category"`
	Matched   string `json:"matched,omitempty"`
}

// ParseClassificationEventData extracts typed classification data from an event.
func (e *Event) ParseClassificationEventData() (ClassificationEventData, bool) {
	category, ok := e.GetString("category")
	if !ok {
		return ClassificationEventData{}, false
	}
	return ClassificationEventData{
		IssueID:   e.GetInt64Or("issue_id", 0),
		MediaType: e.GetStringOr("media_type", ""),
		Category:  category,
		Matched:   e.GetStringOr("matched", ""),
	}, true
}

// OutcomeEventData contains data for GrabConfirmed / VerificationTimeout events.
type OutcomeEventData struct {
	IssueID      int64  `json:"issue_id"`
	Title        string `json:"title"`
	MediaType    string `json:"media_type"`
	DeletedFiles int64  `json:"deleted_files"`
}

// ParseOutcomeEventData extracts typed outcome data from an event.
func (e *Event) ParseOutcomeEventData() (OutcomeEventData, bool) {
	issueID, ok := e.GetInt64("issue_id")
	if !ok {
		return OutcomeEventData{}, false
	}
	return OutcomeEventData{
		IssueID:      issueID,
		Title:        e.GetStringOr("title", ""),
		MediaType:    e.GetStringOr("media_type", ""),
		DeletedFiles: e.GetInt64Or("deleted_files", 0),
	}, true
}
