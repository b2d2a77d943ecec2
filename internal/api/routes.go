package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/RMahshie/smuacq/internal/api/handlers"
	"github.com/RMahshie/smuacq/internal/processing"
	"github.com/RMahshie/smuacq/internal/repository"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(api huma.API, runRepo repository.RunRepository, runSvc processing.RunService) {
	// Initialize handlers
	runHandler := handlers.NewRunHandler(runRepo, runSvc)
	instrumentHandler := handlers.NewInstrumentHandler(runSvc)

	// Instrument
	huma.Register(api, huma.Operation{
		OperationID: "getInstrument",
		Method:      http.MethodGet,
		Path:        "/api/instrument",
		Summary:     "Get instrument",
		Description: "Returns the identity of the source-measure unit and the engine state",
		Tags:        []string{"Instrument"},
	}, instrumentHandler.GetInstrument)

	huma.Register(api, huma.Operation{
		OperationID: "shutdownInstrument",
		Method:      http.MethodPost,
		Path:        "/api/instrument/shutdown",
		Summary:     "Shut down instrument",
		Description: "Zeroes the source level and disables the output. Refused while a run is active",
		Tags:        []string{"Instrument"},
	}, instrumentHandler.Shutdown)

	// Sweeps and runs
	huma.Register(api, huma.Operation{
		OperationID: "planSweep",
		Method:      http.MethodPost,
		Path:        "/api/sweeps/plan",
		Summary:     "Plan a sweep",
		Description: "Validates run options and returns the set-points without touching the instrument",
		Tags:        []string{"Runs"},
	}, runHandler.PlanSweep)

	huma.Register(api, huma.Operation{
		OperationID:   "createRun",
		Method:        http.MethodPost,
		Path:          "/api/runs",
		Summary:       "Start a run",
		Description:   "Validates run options and starts the acquisition in the background",
		Tags:          []string{"Runs"},
		DefaultStatus: http.StatusAccepted,
	}, runHandler.CreateRun)

	huma.Register(api, huma.Operation{
		OperationID: "listRuns",
		Method:      http.MethodGet,
		Path:        "/api/runs",
		Summary:     "List runs",
		Description: "Returns every run of this session, newest first",
		Tags:        []string{"Runs"},
	}, runHandler.ListRuns)

	huma.Register(api, huma.Operation{
		OperationID: "getRunStatus",
		Method:      http.MethodGet,
		Path:        "/api/runs/{id}",
		Summary:     "Get run status",
		Description: "Returns the status and progress of a run",
		Tags:        []string{"Runs"},
	}, runHandler.GetRunStatus)

	huma.Register(api, huma.Operation{
		OperationID: "getLatestSample",
		Method:      http.MethodGet,
		Path:        "/api/runs/{id}/latest",
		Summary:     "Get latest sample",
		Description: "Returns the most recent sample of a run",
		Tags:        []string{"Runs"},
	}, runHandler.GetLatestSample)

	huma.Register(api, huma.Operation{
		OperationID: "getRunResults",
		Method:      http.MethodGet,
		Path:        "/api/runs/{id}/results",
		Summary:     "Get run results",
		Description: "Returns the measurement table of a finished run",
		Tags:        []string{"Runs"},
	}, runHandler.GetRunResults)

	huma.Register(api, huma.Operation{
		OperationID: "cancelRun",
		Method:      http.MethodPost,
		Path:        "/api/runs/{id}/cancel",
		Summary:     "Cancel run",
		Description: "Stops an active run; the source is disabled and the partial table kept",
		Tags:        []string{"Runs"},
	}, runHandler.CancelRun)

	huma.Register(api, huma.Operation{
		OperationID: "createExport",
		Method:      http.MethodPost,
		Path:        "/api/runs/{id}/exports",
		Summary:     "Export run",
		Description: "Renders a finished run as CSV, a spreadsheet or a plot and returns a pre-signed download URL",
		Tags:        []string{"Runs"},
	}, runHandler.CreateExport)

	huma.Register(api, huma.Operation{
		OperationID: "listExports",
		Method:      http.MethodGet,
		Path:        "/api/runs/{id}/exports",
		Summary:     "List exports",
		Description: "Returns the exports of a run with fresh pre-signed download URLs",
		Tags:        []string{"Runs"},
	}, runHandler.ListExports)

	huma.Register(api, huma.Operation{
		OperationID: "downloadExport",
		Method:      http.MethodGet,
		Path:        "/api/runs/{id}/exports/{format}",
		Summary:     "Download export",
		Description: "Returns the stored bytes of one export of a run",
		Tags:        []string{"Runs"},
	}, runHandler.DownloadExport)

	huma.Register(api, huma.Operation{
		OperationID: "deleteExport",
		Method:      http.MethodDelete,
		Path:        "/api/runs/{id}/exports/{format}",
		Summary:     "Delete export",
		Description: "Removes one export of a run from the store",
		Tags:        []string{"Runs"},
	}, runHandler.DeleteExport)
}
