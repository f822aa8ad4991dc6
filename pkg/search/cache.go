package search

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// queryKey is the structural part of a cache key: every query field that
// changes the result page.
type queryKey struct {
	Type            types.QueryType      `json:"type"`
	Query           string               `json:"query"`
	Embedding       uint64               `json:"embedding,omitempty"`
	TimeRange       *types.TimeRange     `json:"time_range,omitempty"`
	Filters         *types.SearchFilters `json:"filters,omitempty"`
	Boost           *types.BoostFactors  `json:"boost,omitempty"`
	Limit           int                  `json:"limit"`
	Offset          int                  `json:"offset"`
	Threshold       float64              `json:"threshold"`
	ExpandQuery     bool                 `json:"expand_query"`
	ConceptualDepth int                  `json:"conceptual_depth"`
	Records         uint64               `json:"records"`
	Relationships   uint64               `json:"relationships"`
}

// cacheKey derives the query-cache key. The record and relationship
// fingerprints make a cached page stale as soon as the snapshot it was
// computed from changes. A relative time range is keyed by its raw form, so
// a cached page keeps the window resolved when it was computed.
func cacheKey(q *types.SearchQuery, records []*types.MemoryRecord, rels []types.MemoryRelationship) (string, error) {
	key := queryKey{
		Type:            q.Type,
		Query:           q.Query,
		Embedding:       vectorHash(q.Embedding),
		TimeRange:       q.TimeRange,
		Filters:         q.Filters,
		Boost:           q.Boost,
		Limit:           q.Limit,
		Offset:          q.Offset,
		Threshold:       q.Threshold,
		ExpandQuery:     q.ExpandQuery,
		ConceptualDepth: q.ConceptualDepth,
		Records:         recordsFingerprint(records),
		Relationships:   relationshipsFingerprint(rels),
	}
	raw, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(xxhash.Sum64(raw), 16) + ":" + strconv.Itoa(len(raw)), nil
}

// recordsFingerprint hashes the fields of every record that scoring reads.
func recordsFingerprint(records []*types.MemoryRecord) uint64 {
	d := xxhash.New()
	var buf [8]byte
	writeUint := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}

	for _, r := range records {
		if r == nil {
			writeUint(0)
			continue
		}
		_, _ = d.WriteString(r.ID)
		_, _ = d.WriteString(r.AgentID)
		_, _ = d.WriteString(string(r.Type))
		_, _ = d.WriteString(string(r.Duration))
		writeUint(xxhash.Sum64String(r.Content))
		writeUint(math.Float64bits(r.Importance))
		writeUint(uint64(r.CreatedAt.UnixNano()))
		writeUint(vectorHash(r.Embedding))
		for _, t := range r.Tags {
			_, _ = d.WriteString(t)
			writeUint(uint64(len(t)))
		}
		if len(r.Metadata) > 0 {
			if raw, err := json.Marshal(r.Metadata); err == nil {
				writeUint(xxhash.Sum64(raw))
			}
		}
		if r.ExpiresAt != nil {
			writeUint(uint64(r.ExpiresAt.UnixNano()))
		}
	}
	return d.Sum64()
}

func relationshipsFingerprint(rels []types.MemoryRelationship) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, rel := range rels {
		_, _ = d.WriteString(rel.SourceID)
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(rel.TargetID)
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(rel.Type)
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(rel.Strength))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

func vectorHash(v []float64) uint64 {
	if len(v) == 0 {
		return 0
	}
	d := xxhash.New()
	var buf [8]byte
	for _, x := range v {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
