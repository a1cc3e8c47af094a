package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameSearchQueries       = "engine_search_queries_total"
	MetricNameSearchStageDuration = "engine_search_stage_duration_seconds"
	MetricNameSearchCandidates    = "engine_search_stage2_candidates"
	MetricNameSearchDropped       = "engine_search_dropped_candidates_total"
	MetricNameIngestJobsEnqueued  = "engine_ingest_jobs_enqueued_total"
	MetricNameIngestOutcomes      = "engine_ingest_outcomes_total"
	MetricNameIngestDuration      = "engine_ingest_duration_seconds"
	MetricNameStoreCompression    = "engine_store_compression_ratio"
	MetricNameStoreRecords        = "engine_store_records_total"
	MetricNameCacheHits           = "engine_cache_hits_total"
	MetricNameCacheMisses         = "engine_cache_misses_total"
	MetricNameHTTPRequests        = "engine_http_requests_total"
	MetricNameHTTPDuration        = "engine_http_request_duration_seconds"
	MetricNameHTTPBodyTooLarge    = "engine_http_body_too_large_total"
)

// Attribute keys.
const (
	AttrCollection = "collection"
	AttrStage      = "stage"
	AttrStatus     = "status"
	AttrCache      = "cache"
	AttrOperation  = "operation"
)

// AllowedSearchStatuses for engine_search_queries_total.
var AllowedSearchStatuses = map[string]bool{
	"ok":                true,
	"partial":           true,
	"deadline_exceeded": true,
	"error":             true,
}

// AllowedIngestOutcomes for engine_ingest_outcomes_total and engine_ingest_duration_seconds.
var AllowedIngestOutcomes = map[string]bool{
	"inserted":     true,
	"retry":        true,
	"failed_final": true,
	"skipped":      true,
}

// AllowedStages for engine_search_stage_duration_seconds.
var AllowedStages = map[string]bool{
	"stage1": true,
	"stage2": true,
	"merge":  true,
}

// NormalizeLabel returns value if present in allowed, otherwise "other".
// Keeps attribute cardinality bounded no matter what callers pass.
func NormalizeLabel(value string, allowed map[string]bool) string {
	if allowed[value] {
		return value
	}

	return "other"
}
