package models

import "time"

// Catalog endpoints, used to label upstream calls.
const (
	EndpointSearch = "search"
	EndpointCard   = "card"
	EndpointPrints = "prints"
	EndpointNamed  = "named"
)

// UpstreamCall records a single outbound request to the catalog provider.
type UpstreamCall struct {
	ID         string    `json:"id"`
	Endpoint   string    `json:"endpoint"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"` // 0 when the request never got a response
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// EndpointSummary aggregates upstream calls per endpoint.
type EndpointSummary struct {
	Endpoint     string  `json:"endpoint"`
	Calls        int     `json:"calls"`
	Errors       int     `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}
