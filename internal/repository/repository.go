// Package repository declares the storage interfaces the service depends on.
package repository

import (
	"context"

	"github.com/sakif/codeexec/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
	// Executor restricts the listing to one executor name when set.
	Executor string
}

// RunRepository stores execution history. Runs are immutable once created.
type RunRepository interface {
	Create(ctx context.Context, run *model.Run) error
	GetByID(ctx context.Context, id string) (*model.Run, error)
	List(ctx context.Context, opts ListOptions) ([]model.Run, error)
}
