package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/containrrr/shoutrrr"
)

// =============================================================================
// Gotify (via shoutrrr)
// =============================================================================

type gotifySink struct {
	url  string
	send func(rawURL, message string) error
}

func newGotifySink(serverURL, token string, priority int) *gotifySink {
	return &gotifySink{
		url:  buildGotifyURL(serverURL, token, priority),
		send: shoutrrr.Send,
	}
}

// buildGotifyURL converts a plain Gotify server URL and app token into the
// shoutrrr form gotify://host[:port][/path]/token.
func buildGotifyURL(serverURL, token string, priority int) string {
	host := strings.TrimSuffix(serverURL, "/")
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	u := fmt.Sprintf("gotify://%s/%s", host, token)
	if priority > 0 {
		u += fmt.Sprintf("?priority=%d", priority)
	}
	return u
}

func (g *gotifySink) Name() string { return "gotify" }

func (g *gotifySink) Send(ctx context.Context, msg Message) error {
	// shoutrrr carries its own timeout; ctx is honored as a pre-flight check.
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.send(g.url, fmt.Sprintf("%s\n%s", msg.Title, msg.Body))
}

// =============================================================================
// Apprise (plain HTTP)
// =============================================================================

type appriseSink struct {
	notifyURL string
	targets   []string
	client    *http.Client
}

func newAppriseSink(baseURL, targets string, client *http.Client) *appriseSink {
	if client == nil {
		client = defaultHTTPClient
	}
	var urls []string
	for _, t := range strings.Split(targets, ",") {
		if t = strings.TrimSpace(t); t != "" {
			urls = append(urls, t)
		}
	}
	return &appriseSink{
		notifyURL: strings.TrimSuffix(baseURL, "/") + "/notify",
		targets:   urls,
		client:    client,
	}
}

func (a *appriseSink) Name() string { return "apprise" }

func (a *appriseSink) Send(ctx context.Context, msg Message) error {
	payload := map[string]interface{}{
		"title": msg.Title,
		"body":  msg.Body,
		"type":  msg.Level,
	}
	if len(a.targets) > 0 {
		payload["urls"] = strings.Join(a.targets, ",")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.notifyURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("apprise returned status %d", resp.StatusCode)
	}
	return nil
}
