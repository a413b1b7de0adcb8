// Package dashboard merges the backend's summary endpoints into a single
// snapshot. A section whose call fails is left at its zero value while the
// other sections still populate.
package dashboard

import (
	"encoding/json"
	"math"
	"time"

	"github.com/openrag/opsconsole/internal/backend"
)

// Section names used as keys in Snapshot.Errors.
const (
	SectionStats       = "stats"
	SectionCollections = "collections"
)

// DocumentCounts are document totals by ingestion state. Other absorbs every
// document not counted as processed, processing or failed.
type DocumentCounts struct {
	Total      int64
	Processed  int64
	Processing int64
	Failed     int64
	Other      int64
}

func newDocumentCounts(s *backend.DocumentStats) DocumentCounts {
	if s == nil {
		return DocumentCounts{}
	}
	d := DocumentCounts{
		Processed:  nonNegative(s.Processed),
		Processing: nonNegative(s.Processing),
		Failed:     nonNegative(s.Failed),
	}
	known := d.Processed + d.Processing + d.Failed
	d.Total = max(nonNegative(s.Total), known)
	d.Other = d.Total - known
	return d
}

// Percent returns n as a percentage of Total, rounded to one decimal.
func (d DocumentCounts) Percent(n int64) float64 {
	if d.Total == 0 {
		return 0
	}
	return math.Round(float64(n)*1000/float64(d.Total)) / 10
}

// Breakdown returns the per-state counts, residue included.
func (d DocumentCounts) Breakdown() map[string]int64 {
	return map[string]int64{
		string(backend.DocumentProcessed):  d.Processed,
		string(backend.DocumentProcessing): d.Processing,
		string(backend.DocumentFailed):     d.Failed,
		"other":                            d.Other,
	}
}

type documentCountsJSON struct {
	Total      int64              `json:"total"`
	Processed  int64              `json:"processed"`
	Processing int64              `json:"processing"`
	Failed     int64              `json:"failed"`
	Other      int64              `json:"other"`
	Percent    map[string]float64 `json:"percent"`
}

// MarshalJSON includes percentages derived from the counts at encode time.
func (d DocumentCounts) MarshalJSON() ([]byte, error) {
	pct := make(map[string]float64, 4)
	for state, n := range d.Breakdown() {
		pct[state] = d.Percent(n)
	}
	return json.Marshal(documentCountsJSON{
		Total:      d.Total,
		Processed:  d.Processed,
		Processing: d.Processing,
		Failed:     d.Failed,
		Other:      d.Other,
		Percent:    pct,
	})
}

// QueryCounts are query totals.
type QueryCounts struct {
	Total        int64   `json:"total"`
	Last24h      int64   `json:"last_24h"`
	Last7d       int64   `json:"last_7d"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// Snapshot is a point-in-time merge of the stats and collections endpoints.
type Snapshot struct {
	Documents       DocumentCounts              `json:"documents"`
	Chunks          int64                       `json:"chunks"`
	Vectors         int64                       `json:"vectors"`
	CollectionCount int64                       `json:"collection_count"`
	Queries         QueryCounts                 `json:"queries"`
	Users           int64                       `json:"users"`
	Collections     []backend.CollectionSummary `json:"collections"`
	FetchedAt       time.Time                   `json:"fetched_at"`

	// Errors maps a failed section to its user-visible message.
	Errors map[string]string `json:"errors,omitempty"`
}

// Degraded reports whether any section failed.
func (s Snapshot) Degraded() bool {
	return len(s.Errors) > 0
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Collections = append([]backend.CollectionSummary{}, s.Collections...)
	if s.Errors != nil {
		out.Errors = make(map[string]string, len(s.Errors))
		for k, v := range s.Errors {
			out.Errors[k] = v
		}
	}
	return out
}

// merge builds a snapshot from whatever sections were fetched. Nil inputs
// leave their fields at zero.
func merge(stats *backend.Stats, collections []backend.CollectionSummary, fetchedAt time.Time) Snapshot {
	snap := Snapshot{
		Collections: []backend.CollectionSummary{},
		FetchedAt:   fetchedAt,
	}
	if collections != nil {
		snap.Collections = collections
	}

	var pointSum int64
	for _, c := range snap.Collections {
		pointSum += c.PointsCount
	}
	snap.Vectors = pointSum
	snap.CollectionCount = int64(len(snap.Collections))

	if stats == nil {
		return snap
	}

	snap.Documents = newDocumentCounts(stats.Documents)
	if stats.Chunks != nil {
		snap.Chunks = nonNegative(*stats.Chunks)
	}
	if stats.Vectors != nil {
		snap.Vectors = nonNegative(*stats.Vectors)
	}
	if stats.Collections != nil {
		snap.CollectionCount = nonNegative(*stats.Collections)
	}
	if stats.Queries != nil {
		snap.Queries = QueryCounts{
			Total:        nonNegative(stats.Queries.Total),
			Last24h:      nonNegative(stats.Queries.Last24h),
			Last7d:       nonNegative(stats.Queries.Last7d),
			AvgLatencyMs: math.Max(0, stats.Queries.AvgLatencyMs),
		}
	}
	if stats.Users != nil {
		snap.Users = nonNegative(*stats.Users)
	}
	return snap
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
