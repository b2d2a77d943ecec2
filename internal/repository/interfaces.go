package repository

import (
	"context"
	"errors"

	"github.com/RMahshie/smuacq/pkg/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no record exists for an ID
var ErrNotFound = errors.New("repository: not found")

// RunRepository defines the interface for run data operations
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Run, error)
	List(ctx context.Context) ([]*models.Run, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, samples int) error
	UpdateError(ctx context.Context, id uuid.UUID, status string, errorMsg string) error
	StoreResults(ctx context.Context, results *models.RunResults) error
	GetResults(ctx context.Context, runID uuid.UUID) (*models.RunResults, error)
}

// ExportRepository defines the interface for export records
// A run has at most one export per format
type ExportRepository interface {
	CreateExport(ctx context.Context, export *models.Export) error
	GetExport(ctx context.Context, runID uuid.UUID, format string) (*models.Export, error)
	ListExports(ctx context.Context, runID uuid.UUID) ([]*models.Export, error)
	DeleteExport(ctx context.Context, runID uuid.UUID, format string) error
}
