// Package store persists run records for the service shell. The scheduling
// core itself keeps no state; this history exists for the operational API.
package store

import (
	"context"

	"github.com/yonglehou/DReAM/internal/model"
)

// RunStats holds aggregate execution statistics.
type RunStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for runs.
type Store interface {
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunStatus(ctx context.Context, id, status string) error
	UpdateRun(ctx context.Context, run *model.Run) error
	GetRunStats(ctx context.Context) (*RunStats, error)
	Close() error
}
