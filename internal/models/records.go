// Package models defines the core data types of the retrieval engine:
// token matrices, embedding records, and the transient result shapes the
// retriever and ranker exchange.
package models

import (
	"fmt"
	"time"
)

// Metric selects the summary-vector similarity used by a collection's
// approximate index. Fixed per collection at creation time.
type Metric string

const (
	// MetricCosine orders candidates by cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricInnerProduct orders candidates by inner product.
	MetricInnerProduct Metric = "ip"
)

// Valid reports whether the metric is one of the supported values.
func (m Metric) Valid() bool {
	return m == MetricCosine || m == MetricInnerProduct
}

// CollectionConfig describes one named partition of the index.
type CollectionConfig struct {
	Name   string
	Dim    int
	Metric Metric
}

// Metadata is the opaque per-record key-value map carried through search
// results. Values are restricted to strings, numbers, and bools; the engine
// never interprets them.
type Metadata map[string]any

// Validate rejects values that are not strings, numbers, or bools.
func (md Metadata) Validate() error {
	for k, v := range md {
		switch v.(type) {
		case string, bool, float64, float32, int, int32, int64:
		default:
			return fmt.Errorf("metadata key %q: unsupported value type %T", k, v)
		}
	}

	return nil
}

// Clone returns a shallow copy (values are primitives, so this is enough).
func (md Metadata) Clone() Metadata {
	if md == nil {
		return nil
	}

	out := make(Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}

	return out
}

// EmbeddingRecord is the persisted unit: one object's summary vector plus
// its compressed full matrix. Immutable once written; replace is
// delete-then-insert.
type EmbeddingRecord struct {
	Collection    string
	ID            string
	SummaryVector []float32
	Blob          []byte
	Metadata      Metadata
	CreatedAt     time.Time
}

// Candidate is a Stage 1 hit: identity plus summary-level similarity, no
// embedding data.
type Candidate struct {
	ID           string
	Collection   string
	SummaryScore float64
}

// ScoredResult is a Stage 2 output: exact late-interaction score for one
// candidate. Lists of these carry no ordering contract; ranking is the
// merger's job.
type ScoredResult struct {
	ID         string
	Collection string
	Score      float64
	Metadata   Metadata
}

// CollectionResults groups one collection's Stage 2 output. The retriever
// emits these in the caller's requested collection order so downstream
// merging is deterministic.
type CollectionResults struct {
	Collection string
	Results    []ScoredResult
}

// RankedResult is the final output unit: Rank is the 0-indexed position in
// the merged list, Score the weighted score used for ordering.
type RankedResult struct {
	ID         string
	Collection string
	Score      float64
	Rank       int
	Metadata   Metadata
}
