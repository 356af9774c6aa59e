package models

import "time"

// Query identifies a cacheable analysis request.
type Query struct {
	Subject string `json:"subject"`
	Region  string `json:"region"`
}

// CacheEntry is a stored analysis result keyed by the fingerprint of its query. UpdatedAt moves on
// every hit and store; ResultAt only when the result itself is written.
type CacheEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Query       Query     `json:"query"`
	Result      string    `json:"result"`
	AccessCount int64     `json:"access_count"`
	UpdatedAt   time.Time `json:"updated_at"`
	ResultAt    time.Time `json:"result_at"`
}
