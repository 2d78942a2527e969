package models

import "time"

// SystemMetrics is a lightweight snapshot of service health counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	EnrollmentsAccepted      uint64    `json:"enrollments_accepted"`
	EnrollmentsRejected      uint64    `json:"enrollments_rejected"`
	ExamConflicts            uint64    `json:"exam_conflicts"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
