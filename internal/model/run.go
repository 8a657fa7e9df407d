// Package model holds the records the service shell persists: external
// process runs submitted through the API and executed on the dispatch
// runtime.
package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Run status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusKilled    = "killed"
)

// validTransitions maps each status to the set of statuses it may move to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning: true,
		StatusFailed:  true,
		StatusKilled:  true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusKilled:    true,
	},
}

// ValidTransition reports whether moving a run from one status to another is
// allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// NewID generates a new ULID string for use as an entity identifier.
func NewID() string {
	return ulid.Make().String()
}

// Run is one external process execution: what was asked for, how it was
// bounded, and what came out.
type Run struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Program    string     `json:"program"`
	Args       []string   `json:"args,omitempty"`
	Stdin      []byte     `json:"stdin,omitempty"`
	Stdout     []byte     `json:"stdout,omitempty"`
	Stderr     []byte     `json:"stderr,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Error      string     `json:"error,omitempty"`
	TimeoutMS  *int       `json:"timeout_ms,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
