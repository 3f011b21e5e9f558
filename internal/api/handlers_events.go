package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/remediarr/remediarr/internal/db"
	"github.com/remediarr/remediarr/internal/domain"
)

// handleListEvents returns recent audit events, newest first. Optional
// filters: event_type, aggregate_type, aggregate_id.
func (s *RESTServer) handleListEvents(c *gin.Context) {
	p := ParsePagination(c, DefaultPaginationConfig())

	filter := db.EventFilter{
		AggregateType: c.Query("aggregate_type"),
		AggregateID:   c.Query("aggregate_id"),
		EventType:     c.Query("event_type"),
	}

	total, err := s.repo.CountEvents(filter)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	events, err := s.repo.ListEvents(filter, p.Limit, p.Offset)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}

	c.JSON(http.StatusOK, gin.H{
		"events":     events,
		"pagination": NewPaginationResponse(p, int(total)),
	})
}

// handleIssueEvents returns the full audit trail of one issue in insertion
// order.
func (s *RESTServer) handleIssueEvents(c *gin.Context) {
	issueID := c.Param("issue_id")

	events, err := s.repo.EventsForAggregate("issue", issueID)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if len(events) == 0 {
		respondNotFound(c, "Issue")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"issue_id": issueID,
		"events":   events,
	})
}
