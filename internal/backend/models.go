package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openrag/opsconsole/internal/probe"
	"github.com/openrag/opsconsole/internal/session"
)

// Timestamp decodes the backend's ISO-8601 timestamps, which may or may not
// carry a zone offset. Zone-less values are taken as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON accepts null, empty strings and any of timestampLayouts.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

// MarshalJSON renders RFC 3339, or null for the zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// DocumentStatus is the ingestion state of a document.
type DocumentStatus string

const (
	DocumentUploaded   DocumentStatus = "uploaded"
	DocumentProcessing DocumentStatus = "processing"
	DocumentProcessed  DocumentStatus = "processed"
	DocumentFailed     DocumentStatus = "failed"
)

// DocumentStatuses lists the statuses the documents listing can filter on.
var DocumentStatuses = []string{
	string(DocumentUploaded),
	string(DocumentProcessing),
	string(DocumentProcessed),
	string(DocumentFailed),
}

// DocumentRecord is an ingested document. The console only displays and deletes them.
type DocumentRecord struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	Status       DocumentStatus `json:"status"`
	CollectionID string         `json:"collection_id,omitempty"`
	ChunkCount   *int           `json:"chunk_count,omitempty"`
	CreatedAt    Timestamp      `json:"created_at"`
}

// SourceRef is a document cited by an answer.
type SourceRef struct {
	Filename       string  `json:"filename"`
	RelevanceScore float64 `json:"relevance_score"`
}

// UnmarshalJSON accepts "relevance_score" or "score" and clamps into [0, 1].
func (s *SourceRef) UnmarshalJSON(data []byte) error {
	var raw struct {
		Filename       string   `json:"filename"`
		Source         string   `json:"source"`
		RelevanceScore *float64 `json:"relevance_score"`
		Score          *float64 `json:"score"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Filename = raw.Filename
	if s.Filename == "" {
		s.Filename = raw.Source
	}

	score := 0.0
	switch {
	case raw.RelevanceScore != nil:
		score = *raw.RelevanceScore
	case raw.Score != nil:
		score = *raw.Score
	}
	if math.IsNaN(score) {
		score = 0
	}
	s.RelevanceScore = math.Max(0, math.Min(1, score))
	return nil
}

// QueryHistoryEntry is one past query. Read-only.
type QueryHistoryEntry struct {
	ID              string      `json:"id"`
	QueryText       string      `json:"query_text"`
	ResponseText    *string     `json:"response_text,omitempty"`
	ExecutionTimeMs *int64      `json:"execution_time_ms,omitempty"`
	Sources         []SourceRef `json:"sources"`
	CreatedAt       Timestamp   `json:"created_at"`
}

// UserAccount is a console account.
type UserAccount struct {
	ID        string       `json:"id"`
	Username  string       `json:"username"`
	Role      session.Role `json:"role"`
	IsActive  bool         `json:"is_active"`
	CreatedAt Timestamp    `json:"created_at"`
}

// NewUser is the payload for creating an account.
type NewUser struct {
	Username string       `json:"username"`
	Password string       `json:"password"`
	Role     session.Role `json:"role"`
}

// ListQuery is an offset/limit page request with an optional server-side status filter.
type ListQuery struct {
	Limit  int
	Offset int
	Status string
}

// DocumentStats are the document counters from the stats endpoint.
type DocumentStats struct {
	Total      int64            `json:"total"`
	Processed  int64            `json:"processed"`
	Processing int64            `json:"processing"`
	Failed     int64            `json:"failed"`
	ByStatus   map[string]int64 `json:"by_status,omitempty"`
}

// QueryStats are the query counters from the stats endpoint.
type QueryStats struct {
	Total        int64   `json:"total"`
	Last24h      int64   `json:"last_24h"`
	Last7d       int64   `json:"last_7d"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// Stats is the stats endpoint payload. Sections are pointers so a missing
// section can be told apart from a zero one.
type Stats struct {
	Documents   *DocumentStats `json:"documents"`
	Chunks      *int64         `json:"chunks"`
	Vectors     *int64         `json:"vectors"`
	Collections *int64         `json:"collections"`
	Queries     *QueryStats    `json:"queries"`
	Users       *int64         `json:"users"`
}

// CollectionSummary describes one vector collection.
type CollectionSummary struct {
	Name          string      `json:"name"`
	PointsCount   int64       `json:"points_count"`
	IndexedCount  int64       `json:"indexed_vectors_count"`
	SegmentsCount int64       `json:"segments_count"`
	Status        probe.State `json:"status"`
	RawStatus     string      `json:"raw_status,omitempty"`
}

// UnmarshalJSON accepts either points_count or vectors_count and normalizes
// the backend-specific status into the shared status enum.
func (c *CollectionSummary) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name          string `json:"name"`
		ID            string `json:"id"`
		PointsCount   *int64 `json:"points_count"`
		VectorsCount  *int64 `json:"vectors_count"`
		IndexedCount  int64  `json:"indexed_vectors_count"`
		SegmentsCount int64  `json:"segments_count"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Name = raw.Name
	if c.Name == "" {
		c.Name = raw.ID
	}
	switch {
	case raw.PointsCount != nil:
		c.PointsCount = *raw.PointsCount
	case raw.VectorsCount != nil:
		c.PointsCount = *raw.VectorsCount
	}
	c.IndexedCount = raw.IndexedCount
	c.SegmentsCount = raw.SegmentsCount
	c.RawStatus = raw.Status
	if state, ok := probe.Normalize(raw.Status); ok {
		c.Status = state
	} else {
		c.Status = probe.StatePending
	}
	return nil
}

// decodeCollections accepts {"collections": [...]}, a bare array, or an
// object without the field (an empty list).
func decodeCollections(body []byte) ([]CollectionSummary, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []CollectionSummary
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapped struct {
		Collections []CollectionSummary `json:"collections"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Collections == nil {
		return []CollectionSummary{}, nil
	}
	return wrapped.Collections, nil
}

// pageBody decodes list responses that carry either "total" or, from older
// backends, only "count".
type pageBody[T any] struct {
	Items []T
	Total int
}

func decodePage[T any](body []byte, field string) (pageBody[T], error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return pageBody[T]{}, err
	}

	var page pageBody[T]
	if items, ok := raw[field]; ok {
		if err := json.Unmarshal(items, &page.Items); err != nil {
			return pageBody[T]{}, fmt.Errorf("%s: %w", field, err)
		}
	}
	if page.Items == nil {
		page.Items = []T{}
	}

	for _, key := range []string{"total", "count"} {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, &page.Total); err != nil {
				return pageBody[T]{}, fmt.Errorf("%s: %w", key, err)
			}
			break
		}
	}
	if page.Total < len(page.Items) {
		page.Total = len(page.Items)
	}
	return page, nil
}
