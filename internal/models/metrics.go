package models

import "time"

// SystemMetrics is a lightweight snapshot of service instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	ScansTotal               uint64    `json:"scans_total"`
	PartialScans             uint64    `json:"partial_scans"`
	ConflictsDetected        uint64    `json:"conflicts_detected"`
	ConflictsResolved        uint64    `json:"conflicts_resolved"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
