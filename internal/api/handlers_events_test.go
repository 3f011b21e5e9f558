package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remediarr/remediarr/internal/domain"
	"github.com/remediarr/remediarr/internal/testutil"
)

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ts.server.router.ServeHTTP(rec, req)
	return rec
}

func seedIssueFlow(t *testing.T, ts *testServer, issueID int64, title string) {
	t.Helper()
	for _, event := range testutil.IssueFlow(issueID, title) {
		require.NoError(t, ts.bus.Publish(event))
	}
}

func TestListEvents_ReturnsNewestFirst(t *testing.T) {
	ts := newTestServer(t, nil)
	seedIssueFlow(t, ts, 42, "The Matrix")

	rec := ts.get("/api/v1/events")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events     []domain.Event     `json:"events"`
		Pagination PaginationResponse `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.NotEmpty(t, resp.Events)
	assert.Equal(t, len(resp.Events), resp.Pagination.Total)
	// Newest first: the flow ends with IssueClosed.
	assert.Equal(t, domain.IssueClosed, resp.Events[0].EventType)
}

func TestListEvents_FiltersByEventType(t *testing.T) {
	ts := newTestServer(t, nil)
	seedIssueFlow(t, ts, 42, "The Matrix")

	rec := ts.get("/api/v1/events?event_type=GrabConfirmed")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events []domain.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Events, 1)
	assert.Equal(t, domain.GrabConfirmed, resp.Events[0].EventType)
}

func TestListEvents_Paginates(t *testing.T) {
	ts := newTestServer(t, nil)
	seedIssueFlow(t, ts, 42, "The Matrix")
	seedIssueFlow(t, ts, 43, "Inception")

	rec := ts.get("/api/v1/events?page=1&limit=3")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events     []domain.Event     `json:"events"`
		Pagination PaginationResponse `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Len(t, resp.Events, 3)
	assert.Equal(t, 3, resp.Pagination.Limit)
	assert.Greater(t, resp.Pagination.TotalPages, 1)
}

func TestListEvents_EmptyIsAnArray(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.get("/api/v1/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"events":[]`)
}

func TestIssueEvents_ReturnsFullTrail(t *testing.T) {
	ts := newTestServer(t, nil)
	seedIssueFlow(t, ts, 42, "The Matrix")

	rec := ts.get("/api/v1/issues/42/events")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		IssueID string         `json:"issue_id"`
		Events  []domain.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "42", resp.IssueID)
	require.NotEmpty(t, resp.Events)
	// Insertion order: the trail starts with the received delivery.
	assert.Equal(t, domain.WebhookReceived, resp.Events[0].EventType)
	assert.Equal(t, domain.IssueClosed, resp.Events[len(resp.Events)-1].EventType)
}

func TestIssueEvents_UnknownIssueIs404(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.get("/api/v1/issues/999/events")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
