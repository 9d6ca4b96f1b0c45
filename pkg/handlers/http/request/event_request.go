package request

import (
	"fmt"
	"time"
)

type TrafficEventRequest struct {
	SourceID  string  `json:"source_id"`
	Endpoint  string  `json:"endpoint"`
	LatencyMs float64 `json:"latency_ms"`
	IsError   bool    `json:"is_error"`
}

func (r *TrafficEventRequest) Validate() error {
	if r.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if r.LatencyMs < 0 {
		return fmt.Errorf("latency_ms must not be negative")
	}
	return nil
}

type BehaviorEventRequest struct {
	SourceID  string    `json:"source_id"`
	SessionID string    `json:"session_id"`
	Path      string    `json:"path"`
	Depth     int       `json:"depth"`
	UserAgent string    `json:"user_agent"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *BehaviorEventRequest) Validate() error {
	if r.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	if r.Path == "" {
		return fmt.Errorf("path is required")
	}
	if r.Depth < 0 {
		return fmt.Errorf("depth must not be negative")
	}
	return nil
}
