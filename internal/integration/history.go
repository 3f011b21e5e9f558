package integration

import (
	"encoding/json"
	"time"
)

// historyRecord is the subset of an Arr history entry the remediation flow
// cares about. History payloads differ between server versions, so records
// are read out of the generic JSON document instead of a fixed struct.
type historyRecord struct {
	ID        int64
	EventType string
	Date      time.Time
}

// grabRecords filters raw history records down to grab events.
func grabRecords(records []map[string]interface{}) []historyRecord {
	var grabs []historyRecord
	for _, rec := range records {
		eventType, _ := strField(rec, "eventType")
		if eventType != "grabbed" {
			continue
		}
		id, ok := numField(rec, "id")
		if !ok {
			continue
		}
		grabs = append(grabs, historyRecord{
			ID:        id,
			EventType: eventType,
			Date:      dateField(rec, "date"),
		})
	}
	return grabs
}

func numField(rec map[string]interface{}, key string) (int64, bool) {
	switch v := rec[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

func strField(rec map[string]interface{}, key string) (string, bool) {
	s, ok := rec[key].(string)
	return s, ok
}

func dateField(rec map[string]interface{}, key string) time.Time {
	s, ok := strField(rec, key)
	if !ok {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
