package models

import "time"

// SystemMetrics is a point-in-time summary served next to the Prometheus endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	TransfersCommitted       uint64    `json:"transfersCommitted"`
	MirrorFailures           uint64    `json:"mirrorFailures"`
	DeliveryFailures         uint64    `json:"deliveryFailures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
