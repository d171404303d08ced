// Package model defines the records persisted by the service.
package model

import "time"

// Run is one recorded execution: the code that was submitted, which executor
// ran it and what came back. Program errors are ordinary runs with a
// non-empty Stderr; infrastructure failures are never recorded.
type Run struct {
	ID           string    `json:"id"`
	Executor     string    `json:"executor"`
	InvocationID string    `json:"invocationId"`
	Caller       string    `json:"caller,omitempty"`
	Code         string    `json:"code"`
	Stdout       string    `json:"stdout"`
	Stderr       string    `json:"stderr"`
	ExitCode     int       `json:"exitCode"`
	TimedOut     bool      `json:"timedOut"`
	DurationMS   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}
