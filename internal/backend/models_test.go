package backend_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrag/opsconsole/internal/backend"
)

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", `"2024-03-01T10:00:00Z"`, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"offset", `"2024-03-01T12:00:00+02:00"`, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"no zone with micros", `"2024-03-01T10:00:00.123456"`, time.Date(2024, 3, 1, 10, 0, 0, 123456000, time.UTC)},
		{"space separated", `"2024-03-01 10:00:00"`, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"null", `null`, time.Time{}},
		{"empty", `""`, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts backend.Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.in), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %s", ts.Time)
		})
	}

	var ts backend.Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestTimestamp_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(backend.Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	data, err = json.Marshal(backend.Timestamp{Time: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-01T10:00:00Z"`, string(data))
}

func TestSourceRef_UnmarshalJSON(t *testing.T) {
	var refs []backend.SourceRef
	require.NoError(t, json.Unmarshal([]byte(`[
		{"filename":"a.pdf","relevance_score":0.82},
		{"source":"b.pdf","score":1.7},
		{"filename":"c.pdf","score":-0.2},
		{"filename":"d.pdf"}
	]`), &refs))

	require.Len(t, refs, 4)
	assert.Equal(t, backend.SourceRef{Filename: "a.pdf", RelevanceScore: 0.82}, refs[0])
	assert.Equal(t, backend.SourceRef{Filename: "b.pdf", RelevanceScore: 1}, refs[1])
	assert.Equal(t, backend.SourceRef{Filename: "c.pdf", RelevanceScore: 0}, refs[2])
	assert.Equal(t, backend.SourceRef{Filename: "d.pdf", RelevanceScore: 0}, refs[3])
}

func TestQueryHistoryEntry_OptionalFields(t *testing.T) {
	var entry backend.QueryHistoryEntry
	require.NoError(t, json.Unmarshal([]byte(`{
		"id":"q1","query_text":"hello","created_at":"2024-03-01T10:00:00"
	}`), &entry))

	assert.Equal(t, "hello", entry.QueryText)
	assert.Nil(t, entry.ResponseText)
	assert.Nil(t, entry.ExecutionTimeMs)
	assert.Empty(t, entry.Sources)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestStats_MissingSections(t *testing.T) {
	var stats backend.Stats
	require.NoError(t, json.Unmarshal([]byte(`{"documents":{"total":4,"processed":2}}`), &stats))

	require.NotNil(t, stats.Documents)
	assert.Equal(t, int64(4), stats.Documents.Total)
	assert.Nil(t, stats.Queries)
	assert.Nil(t, stats.Users)
	assert.Nil(t, stats.Collections)
}
