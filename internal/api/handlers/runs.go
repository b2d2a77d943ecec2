package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/smuacq/internal/acquisition"
	"github.com/RMahshie/smuacq/internal/export"
	"github.com/RMahshie/smuacq/internal/listfile"
	"github.com/RMahshie/smuacq/internal/processing"
	"github.com/RMahshie/smuacq/internal/repository"
	"github.com/RMahshie/smuacq/internal/sweep"
	"github.com/RMahshie/smuacq/internal/units"
	"github.com/RMahshie/smuacq/pkg/models"
)

// RunHandler handles acquisition run HTTP requests
type RunHandler struct {
	repo repository.RunRepository
	svc  processing.RunService
}

// NewRunHandler creates a new run handler
func NewRunHandler(repo repository.RunRepository, svc processing.RunService) *RunHandler {
	return &RunHandler{
		repo: repo,
		svc:  svc,
	}
}

// PlanSweep returns the set-points a run with the given options would drive
func (h *RunHandler) PlanSweep(ctx context.Context, req *models.PlanSweepRequest) (*models.PlanSweepResponse, error) {
	mode, points, err := h.svc.PlanSweep(req.Body.Options, req.Body.List)
	if err != nil {
		return nil, apiError("Invalid run options", err)
	}

	resp := &models.PlanSweepResponse{}
	resp.Body.SourceMode = mode.String()
	resp.Body.Count = len(points)
	resp.Body.SetPoints = points
	return resp, nil
}

// CreateRun starts a new acquisition run in the background
func (h *RunHandler) CreateRun(ctx context.Context, req *models.CreateRunRequest) (*models.CreateRunResponse, error) {
	run, err := h.svc.StartRun(ctx, req.Body.Options, req.Body.List)
	if err != nil {
		log.Warn().Err(err).Msg("Run rejected")
		return nil, apiError("Failed to start run", err)
	}
	log.Info().Str("runID", run.ID).Str("source_mode", run.SourceMode).Msg("Run created")

	resp := &models.CreateRunResponse{}
	resp.Body.ID = run.ID
	resp.Body.Status = run.Status
	return resp, nil
}

// ListRuns returns every run of this session
func (h *RunHandler) ListRuns(ctx context.Context, req *struct{}) (*models.ListRunsResponse, error) {
	runs, err := h.repo.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list runs", err)
	}
	resp := &models.ListRunsResponse{}
	resp.Body.Runs = make([]models.RunStatusBody, 0, len(runs))
	for _, run := range runs {
		resp.Body.Runs = append(resp.Body.Runs, statusBody(run))
	}
	return resp, nil
}

// GetRunStatus returns the current status of a run
func (h *RunHandler) GetRunStatus(ctx context.Context, req *models.GetRunRequest) (*models.GetRunStatusResponse, error) {
	runID, err := parseRunID(req.ID)
	if err != nil {
		return nil, err
	}
	run, err := h.repo.GetByID(ctx, runID)
	if err != nil {
		return nil, apiError("Run not found", err)
	}
	return &models.GetRunStatusResponse{Body: statusBody(run)}, nil
}

// GetLatestSample returns the most recent sample of a run
func (h *RunHandler) GetLatestSample(ctx context.Context, req *models.GetRunRequest) (*models.GetLatestSampleResponse, error) {
	runID, err := parseRunID(req.ID)
	if err != nil {
		return nil, err
	}
	index, sample, err := h.svc.LatestSample(ctx, runID)
	if err != nil {
		return nil, apiError("No sample available", err)
	}

	resp := &models.GetLatestSampleResponse{}
	resp.Body.ID = runID.String()
	resp.Body.Index = index
	resp.Body.Sample = make(map[string]float64, len(sample))
	for q, v := range sample {
		resp.Body.Sample[q.Label()] = v
	}
	return resp, nil
}

// GetRunResults returns the measurement table of a finished run
func (h *RunHandler) GetRunResults(ctx context.Context, req *models.GetRunRequest) (*models.GetRunResultsResponse, error) {
	runID, err := parseRunID(req.ID)
	if err != nil {
		return nil, err
	}
	results, err := h.svc.Results(ctx, runID)
	if err != nil {
		return nil, apiError("Results not available", err)
	}
	return &models.GetRunResultsResponse{Body: *results}, nil
}

// CancelRun stops an active run
func (h *RunHandler) CancelRun(ctx context.Context, req *models.GetRunRequest) (*models.MessageResponse, error) {
	runID, err := parseRunID(req.ID)
	if err != nil {
		return nil, err
	}
	if err := h.svc.CancelRun(ctx, runID); err != nil {
		return nil, apiError("Failed to cancel run", err)
	}
	resp := &models.MessageResponse{}
	resp.Body.Message = "Cancellation requested"
	return resp, nil
}

// CreateExport renders a finished run and returns a download URL
func (h *RunHandler) CreateExport(ctx context.Context, req *models.CreateExportRequest) (*models.CreateExportResponse, error) {
	runID, err := parseRunID(req.ID)
	if err != nil {
		return nil, err
	}
	format, err := export.ParseFormat(req.Body.Format)
	if err != nil {
		return nil, apiError("Unsupported export format", err)
	}

	out, err := h.svc.Export(ctx, runID, format)
	if err != nil {
		log.Error().Err(err).Str("runID", runID.String()).Str("format", string(format)).Msg("Export failed")
		return nil, apiError("Export failed", err)
	}

	resp := &models.CreateExportResponse{}
	resp.Body.Key = out.Key
	resp.Body.DownloadURL = out.DownloadURL
	resp.Body.ExpiresIn = int(out.ExpiresIn.Seconds())
	return resp, nil
}

// ListExports returns the exports of a run with fresh download URLs
func (h *RunHandler) ListExports(ctx context.Context, req *models.GetRunRequest) (*models.ListExportsResponse, error) {
	runID, err := parseRunID(req.ID)
	if err != nil {
		return nil, err
	}
	exports, err := h.svc.ListExports(ctx, runID)
	if err != nil {
		return nil, apiError("Failed to list exports", err)
	}

	resp := &models.ListExportsResponse{}
	resp.Body.Exports = make([]models.ExportBody, 0, len(exports))
	for _, e := range exports {
		resp.Body.Exports = append(resp.Body.Exports, models.ExportBody{
			Format:      string(e.Format),
			Key:         e.Key,
			ContentType: e.ContentType,
			Size:        e.Size,
			CreatedAt:   e.CreatedAt,
			DownloadURL: e.DownloadURL,
			ExpiresIn:   int(e.ExpiresIn.Seconds()),
		})
	}
	return resp, nil
}

// DownloadExport streams an uploaded export back through the API
func (h *RunHandler) DownloadExport(ctx context.Context, req *models.ExportFormatRequest) (*models.ExportContentResponse, error) {
	runID, format, err := parseExportRequest(req)
	if err != nil {
		return nil, err
	}
	record, data, err := h.svc.DownloadExport(ctx, runID, format)
	if err != nil {
		return nil, apiError("Export not available", err)
	}
	return &models.ExportContentResponse{
		ContentType:        record.ContentType,
		ContentDisposition: fmt.Sprintf(`attachment; filename="%s%s"`, runID, format.Extension()),
		Body:               data,
	}, nil
}

// DeleteExport removes an uploaded export
func (h *RunHandler) DeleteExport(ctx context.Context, req *models.ExportFormatRequest) (*models.MessageResponse, error) {
	runID, format, err := parseExportRequest(req)
	if err != nil {
		return nil, err
	}
	if err := h.svc.DeleteExport(ctx, runID, format); err != nil {
		log.Error().Err(err).Str("runID", runID.String()).Str("format", string(format)).Msg("Export delete failed")
		return nil, apiError("Failed to delete export", err)
	}
	resp := &models.MessageResponse{}
	resp.Body.Message = "Export deleted"
	return resp, nil
}

func parseExportRequest(req *models.ExportFormatRequest) (uuid.UUID, export.Format, error) {
	runID, err := parseRunID(req.ID)
	if err != nil {
		return uuid.Nil, "", err
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return uuid.Nil, "", apiError("Unsupported export format", err)
	}
	return runID, format, nil
}

func parseRunID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, huma.Error400BadRequest("Invalid run ID", err)
	}
	return id, nil
}

// apiError maps service errors onto HTTP status codes
func apiError(msg string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, processing.ErrNoSample):
		return huma.Error404NotFound(msg, err)
	case errors.Is(err, acquisition.ErrInstrumentBusy),
		errors.Is(err, processing.ErrRunNotFinished):
		return huma.Error409Conflict(msg, err)
	case errors.Is(err, acquisition.ErrInvalidConfig),
		errors.Is(err, sweep.ErrInvalidSweep),
		errors.Is(err, listfile.ErrEmptyList),
		errors.Is(err, units.ErrRangeFormat),
		errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, export.ErrNoData):
		return huma.Error422UnprocessableEntity(msg, err)
	case errors.Is(err, processing.ErrExportDisabled),
		errors.Is(err, processing.ErrNotIdentifiable):
		return huma.Error501NotImplemented(msg, err)
	case errors.Is(err, acquisition.ErrInstrumentFault):
		return huma.Error502BadGateway(msg, err)
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}

func statusBody(run *models.Run) models.RunStatusBody {
	body := models.RunStatusBody{
		ID:          run.ID,
		Status:      run.Status,
		SourceMode:  run.SourceMode,
		Progress:    run.Progress,
		Samples:     run.Samples,
		Planned:     run.Planned,
		Message:     statusMessage(run),
		CreatedAt:   run.CreatedAt,
		CompletedAt: run.CompletedAt,
	}
	return body
}

// statusMessage creates a human-readable status message
func statusMessage(run *models.Run) string {
	if run.ErrorMsg != nil {
		return *run.ErrorMsg
	}
	switch run.Status {
	case models.RunStatusPending:
		return "Run queued..."
	case models.RunStatusConfiguring:
		return "Configuring instrument..."
	case models.RunStatusRunning:
		return fmt.Sprintf("Sampled %d of %d set-points", run.Samples, run.Planned)
	case models.RunStatusCompleted:
		return "Run complete"
	default:
		return ""
	}
}
