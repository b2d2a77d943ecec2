package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/smuacq/internal/repository"
	"github.com/RMahshie/smuacq/pkg/models"
)

func newRun(t *testing.T, repo *RunRepository, created time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, repo.Create(context.Background(), &models.Run{
		ID:         id.String(),
		Status:     models.RunStatusPending,
		SourceMode: "Voltage Sweep",
		Planned:    8,
		CreatedAt:  created,
		UpdatedAt:  created,
	}))
	return id
}

func TestRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository()
	id := newRun(t, repo, time.Now())

	require.NoError(t, repo.UpdateStatus(ctx, id, models.RunStatusRunning, 2))
	run, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Equal(t, 25, run.Progress)
	assert.Nil(t, run.CompletedAt)

	require.NoError(t, repo.UpdateError(ctx, id, models.RunStatusAborted, "instrument fault"))
	run, err = repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusAborted, run.Status)
	require.NotNil(t, run.ErrorMsg)
	assert.Equal(t, "instrument fault", *run.ErrorMsg)
	assert.NotNil(t, run.CompletedAt)
}

func TestRunRepository_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository()
	id := newRun(t, repo, time.Now())

	run, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	run.Status = "tampered"

	again, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, again.Status)
}

func TestRunRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository()

	_, err := repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetResults(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = repo.UpdateStatus(ctx, uuid.New(), models.RunStatusRunning, 0)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRunRepository_ListNewestFirst(t *testing.T) {
	repo := NewRunRepository()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	older := newRun(t, repo, base)
	newer := newRun(t, repo, base.Add(time.Minute))

	runs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.String(), runs[0].ID)
	assert.Equal(t, older.String(), runs[1].ID)
}

func TestRunRepository_ResultsAndExports(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository()
	id := newRun(t, repo, time.Now())

	results := &models.RunResults{
		RunID:    id.String(),
		Columns:  []string{"Voltage (V)"},
		Samples:  []map[string]float64{{"Voltage (V)": 1}},
		Complete: true,
	}
	require.NoError(t, repo.StoreResults(ctx, results))
	got, err := repo.GetResults(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, results, got)

	require.NoError(t, repo.CreateExport(ctx, &models.Export{RunID: id.String(), Format: "csv", Key: "exports/a.csv"}))
	exports, err := repo.ListExports(ctx, id)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "exports/a.csv", exports[0].Key)
	assert.ErrorIs(t, repo.CreateExport(ctx, &models.Export{RunID: uuid.NewString(), Format: "csv"}), repository.ErrNotFound)

	assert.Error(t, repo.StoreResults(ctx, &models.RunResults{RunID: uuid.NewString()}))
	assert.Error(t, repo.Create(ctx, &models.Run{ID: "not-a-uuid"}))
}

func TestRunRepository_ExportReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository()
	id := newRun(t, repo, time.Now())

	require.NoError(t, repo.CreateExport(ctx, &models.Export{RunID: id.String(), Format: "csv", Key: "exports/a.csv", Size: 10}))
	require.NoError(t, repo.CreateExport(ctx, &models.Export{RunID: id.String(), Format: "png", Key: "exports/a.png"}))
	require.NoError(t, repo.CreateExport(ctx, &models.Export{RunID: id.String(), Format: "csv", Key: "exports/a.csv", Size: 20}))

	exports, err := repo.ListExports(ctx, id)
	require.NoError(t, err)
	require.Len(t, exports, 2)
	assert.Equal(t, "csv", exports[0].Format)
	assert.Equal(t, int64(20), exports[0].Size)

	got, err := repo.GetExport(ctx, id, "png")
	require.NoError(t, err)
	assert.Equal(t, "exports/a.png", got.Key)

	require.NoError(t, repo.DeleteExport(ctx, id, "csv"))
	_, err = repo.GetExport(ctx, id, "csv")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteExport(ctx, id, "csv"), repository.ErrNotFound)

	exports, err = repo.ListExports(ctx, id)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "png", exports[0].Format)
}
