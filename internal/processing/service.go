package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/smuacq/internal/acquisition"
	"github.com/RMahshie/smuacq/internal/config"
	"github.com/RMahshie/smuacq/internal/export"
	"github.com/RMahshie/smuacq/internal/instrument"
	"github.com/RMahshie/smuacq/internal/repository"
	"github.com/RMahshie/smuacq/internal/storage"
	"github.com/RMahshie/smuacq/pkg/models"
)

var (
	// ErrRunNotFinished is returned when results or exports are requested for an active run
	ErrRunNotFinished = errors.New("processing: run not finished")
	// ErrNoSample is returned when a run has not recorded a sample yet
	ErrNoSample = errors.New("processing: no sample recorded yet")
	// ErrExportDisabled is returned when no export store is configured
	ErrExportDisabled = errors.New("processing: export upload is not configured")
	// ErrNotIdentifiable is returned when the instrument cannot report its identity
	ErrNotIdentifiable = errors.New("processing: instrument does not report an identity")
)

// Repository is the storage the run service records runs, results and exports in
type Repository interface {
	repository.RunRepository
	repository.ExportRepository
}

// RunService owns the instrument and runs one acquisition at a time in the background
type RunService interface {
	PlanSweep(options map[string]any, list string) (acquisition.SourceMode, []float64, error)
	StartRun(ctx context.Context, options map[string]any, list string) (*models.Run, error)
	CancelRun(ctx context.Context, runID uuid.UUID) error
	LatestSample(ctx context.Context, runID uuid.UUID) (int, acquisition.Sample, error)
	Results(ctx context.Context, runID uuid.UUID) (*models.RunResults, error)
	Export(ctx context.Context, runID uuid.UUID, format export.Format) (*ExportResult, error)
	ListExports(ctx context.Context, runID uuid.UUID) ([]*ExportResult, error)
	DownloadExport(ctx context.Context, runID uuid.UUID, format export.Format) (*models.Export, []byte, error)
	DeleteExport(ctx context.Context, runID uuid.UUID, format export.Format) error
	Shutdown(ctx context.Context) error
	Identify(ctx context.Context) (instrument.Identity, error)
	ActiveRun() (uuid.UUID, bool)
	State() acquisition.State
	Wait()
}

// ExportResult describes an uploaded export and a fresh download URL for it
type ExportResult struct {
	Key         string
	Format      export.Format
	ContentType string
	Size        int64
	CreatedAt   time.Time
	DownloadURL string
	ExpiresIn   time.Duration
}

type activeRun struct {
	id     uuid.UUID
	cancel context.CancelFunc

	mu     sync.Mutex
	index  int
	sample acquisition.Sample
}

type runService struct {
	engine *acquisition.Engine
	repo   Repository
	store  storage.ExportStore
	prefix string

	mu     sync.Mutex
	active *activeRun
	wg     sync.WaitGroup
}

// NewRunService creates a run service. store may be nil, which disables exports
func NewRunService(engine *acquisition.Engine, repo Repository, store storage.ExportStore, prefix string) RunService {
	return &runService{
		engine: engine,
		repo:   repo,
		store:  store,
		prefix: prefix,
	}
}

func listReader(list string) io.Reader {
	if list == "" {
		return nil
	}
	return strings.NewReader(list)
}

// PlanSweep decodes options and returns the set-points a run would drive
func (s *runService) PlanSweep(options map[string]any, list string) (acquisition.SourceMode, []float64, error) {
	settings, err := config.ParseRunOptions(options)
	if err != nil {
		return 0, nil, err
	}
	points, err := s.engine.Plan(*settings, listReader(list))
	if err != nil {
		return 0, nil, err
	}
	return settings.SourceMode, points, nil
}

// StartRun validates options, records a pending run and starts the acquisition in the background
func (s *runService) StartRun(ctx context.Context, options map[string]any, list string) (*models.Run, error) {
	settings, err := config.ParseRunOptions(options)
	if err != nil {
		return nil, err
	}
	// Validated up front so a bad request never reaches the background goroutine
	points, err := s.engine.Plan(*settings, listReader(list))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, fmt.Errorf("run %s owns the instrument: %w", s.active.id, acquisition.ErrInstrumentBusy)
	}

	now := time.Now()
	run := &models.Run{
		ID:         uuid.New().String(),
		Status:     models.RunStatusPending,
		SourceMode: settings.SourceMode.String(),
		Options:    options,
		Planned:    len(points),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	runID := uuid.MustParse(run.ID)
	runCtx, cancel := context.WithCancel(context.Background())
	active := &activeRun{id: runID, cancel: cancel, index: -1}
	s.active = active

	log.Info().
		Str("runID", run.ID).
		Str("source_mode", run.SourceMode).
		Int("planned", run.Planned).
		Msg("Starting acquisition run")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.execute(runCtx, active, *settings, list)
	}()

	return run, nil
}

func (s *runService) execute(ctx context.Context, active *activeRun, settings acquisition.Settings, list string) {
	// Status bookkeeping must outlive a cancelled run
	bg := context.WithoutCancel(ctx)
	id := active.id

	defer func() {
		s.mu.Lock()
		if s.active == active {
			s.active = nil
		}
		s.mu.Unlock()
	}()

	if err := s.repo.UpdateStatus(bg, id, models.RunStatusConfiguring, 0); err != nil {
		log.Error().Err(err).Str("runID", id.String()).Msg("Failed to update run status")
	}

	onSample := acquisition.OnSample(func(i int, sample acquisition.Sample) {
		active.mu.Lock()
		active.index = i
		active.sample = sample
		active.mu.Unlock()
		if err := s.repo.UpdateStatus(bg, id, models.RunStatusRunning, i+1); err != nil {
			log.Error().Err(err).Str("runID", id.String()).Msg("Failed to update run progress")
		}
	})

	res, err := s.engine.Run(ctx, settings, listReader(list), onSample)
	if res == nil {
		msg := fmt.Sprintf("Run failed: %v", err)
		if uerr := s.repo.UpdateError(bg, id, models.RunStatusFailed, msg); uerr != nil {
			log.Error().Err(uerr).Str("runID", id.String()).Msg("Failed to record run failure")
		}
		return
	}

	if serr := s.repo.StoreResults(bg, toModel(id, res)); serr != nil {
		log.Error().Err(serr).Str("runID", id.String()).Msg("Failed to store run results")
	}

	if res.Complete() {
		if uerr := s.repo.UpdateStatus(bg, id, models.RunStatusCompleted, len(res.Samples)); uerr != nil {
			log.Error().Err(uerr).Str("runID", id.String()).Msg("Failed to update run status")
		}
		return
	}
	if uerr := s.repo.UpdateStatus(bg, id, models.RunStatusAborted, len(res.Samples)); uerr != nil {
		log.Error().Err(uerr).Str("runID", id.String()).Msg("Failed to update run status")
	}
	if uerr := s.repo.UpdateError(bg, id, models.RunStatusAborted, res.Err.Error()); uerr != nil {
		log.Error().Err(uerr).Str("runID", id.String()).Msg("Failed to record run error")
	}
}

// CancelRun cancels the run if it is still active. Cancelling a finished run is a no-op
func (s *runService) CancelRun(ctx context.Context, runID uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, runID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.id == runID {
		log.Info().Str("runID", runID.String()).Msg("Cancelling acquisition run")
		s.active.cancel()
	}
	return nil
}

// LatestSample returns the most recent sample of the active run
func (s *runService) LatestSample(ctx context.Context, runID uuid.UUID) (int, acquisition.Sample, error) {
	if _, err := s.repo.GetByID(ctx, runID); err != nil {
		return 0, nil, err
	}

	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active != nil && active.id == runID {
		active.mu.Lock()
		defer active.mu.Unlock()
		if active.index < 0 {
			return 0, nil, ErrNoSample
		}
		return active.index, active.sample, nil
	}

	results, err := s.repo.GetResults(ctx, runID)
	if err != nil || len(results.Samples) == 0 {
		return 0, nil, ErrNoSample
	}
	last := len(results.Samples) - 1
	sample, err := toSample(results.Samples[last])
	if err != nil {
		return 0, nil, err
	}
	return last, sample, nil
}

// Results returns the measurement table of a finished run
func (s *runService) Results(ctx context.Context, runID uuid.UUID) (*models.RunResults, error) {
	run, err := s.repo.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Finished() {
		return nil, fmt.Errorf("run %s is %s: %w", runID, run.Status, ErrRunNotFinished)
	}
	return s.repo.GetResults(ctx, runID)
}

// Export renders the results of a finished run, uploads them and returns a download URL
// Exporting a run again in the same format replaces the earlier export
func (s *runService) Export(ctx context.Context, runID uuid.UUID, format export.Format) (*ExportResult, error) {
	if s.store == nil {
		return nil, ErrExportDisabled
	}
	run, err := s.repo.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	results, err := s.Results(ctx, runID)
	if err != nil {
		return nil, err
	}
	res, err := toResult(run, results)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, res, format); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s%s%s", s.prefix, runID, format.Extension())
	if err := s.store.Upload(ctx, key, format.ContentType(), buf.Bytes()); err != nil {
		return nil, err
	}

	record := &models.Export{
		RunID:       run.ID,
		Format:      string(format),
		Key:         key,
		ContentType: format.ContentType(),
		Size:        int64(buf.Len()),
		CreatedAt:   time.Now(),
	}
	if err := s.repo.CreateExport(ctx, record); err != nil {
		log.Error().Err(err).Str("runID", run.ID).Msg("Failed to record export")
	}

	log.Info().Str("runID", run.ID).Str("key", key).Int("size", buf.Len()).Msg("Export uploaded")
	return s.describe(ctx, record)
}

func (s *runService) describe(ctx context.Context, e *models.Export) (*ExportResult, error) {
	url, err := s.store.GenerateDownloadURL(ctx, e.Key)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Key:         e.Key,
		Format:      export.Format(e.Format),
		ContentType: e.ContentType,
		Size:        e.Size,
		CreatedAt:   e.CreatedAt,
		DownloadURL: url,
		ExpiresIn:   s.store.URLExpiry(),
	}, nil
}

// ListExports returns every export of a run with a fresh download URL
func (s *runService) ListExports(ctx context.Context, runID uuid.UUID) ([]*ExportResult, error) {
	if s.store == nil {
		return nil, ErrExportDisabled
	}
	if _, err := s.repo.GetByID(ctx, runID); err != nil {
		return nil, err
	}
	records, err := s.repo.ListExports(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]*ExportResult, 0, len(records))
	for _, e := range records {
		r, err := s.describe(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// DownloadExport reads an uploaded export back from the store
func (s *runService) DownloadExport(ctx context.Context, runID uuid.UUID, format export.Format) (*models.Export, []byte, error) {
	if s.store == nil {
		return nil, nil, ErrExportDisabled
	}
	record, err := s.repo.GetExport(ctx, runID, string(format))
	if err != nil {
		return nil, nil, err
	}
	data, err := s.store.Download(ctx, record.Key)
	if err != nil {
		return nil, nil, err
	}
	return record, data, nil
}

// DeleteExport removes an export from the store and forgets its record
func (s *runService) DeleteExport(ctx context.Context, runID uuid.UUID, format export.Format) error {
	if s.store == nil {
		return ErrExportDisabled
	}
	record, err := s.repo.GetExport(ctx, runID, string(format))
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, record.Key); err != nil {
		return err
	}
	if err := s.repo.DeleteExport(ctx, runID, string(format)); err != nil {
		return err
	}
	log.Info().Str("runID", runID.String()).Str("key", record.Key).Msg("Export deleted")
	return nil
}

// Shutdown puts the instrument into its safe state. It is refused while a run owns the instrument
func (s *runService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return fmt.Errorf("run %s owns the instrument: %w", s.active.id, acquisition.ErrInstrumentBusy)
	}
	if err := s.engine.Instrument().Shutdown(ctx); err != nil {
		return &acquisition.InstrumentFault{Op: "Shutdown", Err: err}
	}
	log.Info().Msg("Instrument shut down")
	return nil
}

// Identify reports the identity of the instrument
func (s *runService) Identify(ctx context.Context) (instrument.Identity, error) {
	id, ok := s.engine.Instrument().(instrument.Identifier)
	if !ok {
		return instrument.Identity{}, ErrNotIdentifiable
	}
	return id.Identify(ctx)
}

// ActiveRun returns the ID of the run that owns the instrument
func (s *runService) ActiveRun() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return uuid.Nil, false
	}
	return s.active.id, true
}

// State returns the engine state
func (s *runService) State() acquisition.State {
	return s.engine.State()
}

// Wait blocks until every background run has finished
func (s *runService) Wait() {
	s.wg.Wait()
}

func toModel(id uuid.UUID, res *acquisition.Result) *models.RunResults {
	out := &models.RunResults{
		RunID:     id.String(),
		Columns:   make([]string, len(res.Columns)),
		SetPoints: res.SetPoints,
		Samples:   make([]map[string]float64, len(res.Samples)),
		Complete:  res.Complete(),
		CreatedAt: res.FinishedAt,
	}
	for i, q := range res.Columns {
		out.Columns[i] = q.Label()
	}
	for i, sample := range res.Samples {
		row := make(map[string]float64, len(sample))
		for q, v := range sample {
			row[q.Label()] = v
		}
		out.Samples[i] = row
	}
	for _, sk := range res.Skipped {
		out.Skipped = append(out.Skipped, models.SkippedRecord{Line: sk.Line, Record: sk.Record, Reason: sk.Reason})
	}
	return out
}

func toSample(row map[string]float64) (acquisition.Sample, error) {
	sample := make(acquisition.Sample, len(row))
	for label, v := range row {
		q, err := acquisition.ParseQuantity(label)
		if err != nil {
			return nil, err
		}
		sample[q] = v
	}
	return sample, nil
}

func toResult(run *models.Run, results *models.RunResults) (*acquisition.Result, error) {
	sourceMode, err := acquisition.ParseSourceMode(run.SourceMode)
	if err != nil {
		return nil, err
	}
	res := &acquisition.Result{
		Mode:      sourceMode,
		Columns:   make([]acquisition.Quantity, len(results.Columns)),
		SetPoints: results.SetPoints,
		Samples:   make([]acquisition.Sample, len(results.Samples)),
		Status:    acquisition.StatusAborted,
	}
	if results.Complete {
		res.Status = acquisition.StatusCompleted
	} else if run.ErrorMsg != nil {
		res.Err = errors.New(*run.ErrorMsg)
	}
	for i, label := range results.Columns {
		if res.Columns[i], err = acquisition.ParseQuantity(label); err != nil {
			return nil, err
		}
	}
	for i, row := range results.Samples {
		if res.Samples[i], err = toSample(row); err != nil {
			return nil, err
		}
	}
	return res, nil
}
