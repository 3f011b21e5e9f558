package integration

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/remediarr/remediarr/internal/logger"
)

// Jellyseerr implements JellyseerrClient. Endpoint paths drifted between
// Overseerr and Jellyseerr releases, so the write operations walk through
// known path variants until one sticks.
type Jellyseerr struct {
	svc httpService
}

func NewJellyseerr(baseURL, apiKey string, breakers *CircuitBreakerRegistry, retry RetryPolicy) *Jellyseerr {
	return &Jellyseerr{
		svc: httpService{
			name:        "jellyseerr",
			baseURL:     baseURL,
			apiKey:      apiKey,
			sendBearer:  true,
			client:      &http.Client{Timeout: 30 * time.Second},
			limiter:     NewRateLimiter(5, 10),
			breakers:    breakers,
			retryPolicy: retry,
		},
	}
}

// FetchIssue returns the raw issue document.
func (j *Jellyseerr) FetchIssue(ctx context.Context, issueID int64) (map[string]interface{}, error) {
	var doc map[string]interface{}
	err := j.svc.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/v1/issue/%d", issueID), nil, &doc)
	if err == nil {
		return doc, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	doc = nil
	if err := j.svc.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/v1/issues/%d", issueID), nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (j *Jellyseerr) PostComment(ctx context.Context, issueID int64, message string) error {
	body := map[string]string{"message": message}
	err := j.svc.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/v1/issue/%d/comment", issueID), body, nil)
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return err
	}
	return j.svc.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/v1/issues/%d/comments", issueID), body, nil)
}

// CloseIssue marks the issue resolved, trying each known endpoint variant
// in order. Only a failure of every variant is reported as an error.
func (j *Jellyseerr) CloseIssue(ctx context.Context, issueID int64) error {
	type variant struct {
		endpoint string
		body     interface{}
	}
	variants := []variant{
		{fmt.Sprintf("/api/v1/issue/%d/resolved", issueID), nil},
		{fmt.Sprintf("/api/v1/issue/%d/resolve?status=resolved", issueID), nil},
		{fmt.Sprintf("/api/v1/issue/%d/status", issueID), map[string]string{"status": "resolved"}},
	}

	var lastErr error
	for _, v := range variants {
		lastErr = j.svc.doJSON(ctx, http.MethodPost, v.endpoint, v.body, nil)
		if lastErr == nil {
			return nil
		}
		logger.Debugf("Jellyseerr: close variant %s failed: %v", v.endpoint, lastErr)
	}
	return fmt.Errorf("all close variants failed for issue %d: %w", issueID, lastErr)
}

func (j *Jellyseerr) SystemStatus(ctx context.Context) error {
	return j.svc.doJSON(ctx, http.MethodGet, "/api/v1/status", nil, nil)
}

// LatestHumanComment returns the newest issue comment that was not posted
// by the bot itself. Bot comments are recognized by the message prefix or,
// when configured, the bot account name. botReplied reports whether the
// newest comment overall is one of the bot's own, meaning the bot already
// has the last word on the issue.
func LatestHumanComment(issueDoc map[string]interface{}, botPrefix, botUsername string) (text, author string, botReplied, ok bool) {
	comments, _ := issueDoc["comments"].([]interface{})
	newest := true
	for i := len(comments) - 1; i >= 0; i-- {
		comment, isMap := comments[i].(map[string]interface{})
		if !isMap {
			continue
		}
		message, _ := comment["message"].(string)
		if message == "" {
			continue
		}
		name := commentAuthor(comment)
		fromBot := strings.HasPrefix(message, botPrefix) ||
			(botUsername != "" && strings.EqualFold(name, botUsername))
		if fromBot {
			if newest {
				botReplied = true
			}
			newest = false
			continue
		}
		return message, name, botReplied, true
	}
	return "", "", botReplied, false
}

func commentAuthor(comment map[string]interface{}) string {
	user, _ := comment["user"].(map[string]interface{})
	if user == nil {
		user, _ = comment["createdBy"].(map[string]interface{})
	}
	if user == nil {
		return ""
	}
	for _, key := range []string{"displayName", "username", "email"} {
		if name, _ := user[key].(string); name != "" {
			return name
		}
	}
	return ""
}
