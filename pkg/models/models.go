package models

import (
	"time"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Body struct {
		Status  string    `json:"status" example:"healthy" doc:"Service health status"`
		Version string    `json:"version" example:"1.0.0" doc:"API version"`
		Time    time.Time `json:"time" doc:"Current server time"`
	}
}

// InstrumentResponse describes the connected source-measure unit
type InstrumentResponse struct {
	Body struct {
		Manufacturer string  `json:"manufacturer" doc:"Instrument manufacturer"`
		Model        string  `json:"model" doc:"Instrument model"`
		Serial       string  `json:"serial" doc:"Serial number"`
		Firmware     string  `json:"firmware" doc:"Firmware revision"`
		State        string  `json:"state" enum:"idle,configuring,running,completed,aborted" doc:"Engine state"`
		ActiveRun    *string `json:"active_run,omitempty" doc:"ID of the run that owns the instrument"`
	}
}

// MessageResponse carries a confirmation message
type MessageResponse struct {
	Body struct {
		Message string `json:"message" doc:"Confirmation message"`
	}
}

// RunOptionsBody is the flat option set of a run plus optional inline list data
type RunOptionsBody struct {
	Options map[string]any `json:"options" required:"true" doc:"Run options, e.g. source_mode, start, stop, steps, measurements"`
	List    string         `json:"list,omitempty" maxLength:"1048576" doc:"List sweep values, one per line, optional header"`
}

// PlanSweepRequest represents a request to preview the set-points of a run
type PlanSweepRequest struct {
	Body RunOptionsBody
}

// PlanSweepResponse represents the planned set-point sequence
type PlanSweepResponse struct {
	Body struct {
		SourceMode string    `json:"source_mode" doc:"Resolved source mode"`
		Count      int       `json:"count" doc:"Number of set-points"`
		SetPoints  []float64 `json:"set_points" doc:"Ordered set-points"`
	}
}

// CreateRunRequest represents a request to start an acquisition run
type CreateRunRequest struct {
	Body RunOptionsBody
}

// CreateRunResponse represents the response from starting a run
type CreateRunResponse struct {
	Body struct {
		ID     string `json:"id" doc:"Run unique identifier"`
		Status string `json:"status" doc:"Initial run status"`
	}
}

// GetRunRequest represents a request addressing a single run
type GetRunRequest struct {
	ID string `path:"id" doc:"Run ID"`
}

// RunStatusBody is the status of one run
type RunStatusBody struct {
	ID          string     `json:"id" doc:"Run ID"`
	Status      string     `json:"status" enum:"pending,configuring,running,completed,aborted,failed" doc:"Run status"`
	SourceMode  string     `json:"source_mode" doc:"Source mode"`
	Progress    int        `json:"progress" minimum:"0" maximum:"100" doc:"Share of set-points sampled, in percent"`
	Samples     int        `json:"samples" doc:"Samples recorded so far"`
	Planned     int        `json:"planned" doc:"Planned number of samples"`
	Message     string     `json:"message,omitempty" doc:"Error or status message"`
	CreatedAt   time.Time  `json:"created_at" doc:"Run creation time"`
	CompletedAt *time.Time `json:"completed_at,omitempty" doc:"Time the run finished"`
}

// GetRunStatusResponse represents the current status of a run
type GetRunStatusResponse struct {
	Body RunStatusBody
}

// ListRunsResponse lists every run of the session
type ListRunsResponse struct {
	Body struct {
		Runs []RunStatusBody `json:"runs" doc:"Runs, newest first"`
	}
}

// GetLatestSampleResponse represents the most recent sample of a run
type GetLatestSampleResponse struct {
	Body struct {
		ID     string             `json:"id" doc:"Run ID"`
		Index  int                `json:"index" doc:"Zero-based sample index"`
		Sample map[string]float64 `json:"sample" doc:"Values by column label"`
	}
}

// GetRunResultsResponse represents the measurement table of a finished run
type GetRunResultsResponse struct {
	Body RunResults
}

// CreateExportRequest represents a request to export a finished run
type CreateExportRequest struct {
	ID   string `path:"id" doc:"Run ID"`
	Body struct {
		Format string `json:"format" enum:"csv,xlsx,png,svg,pdf" required:"true" doc:"Export format"`
	}
}

// CreateExportResponse represents an uploaded export
type CreateExportResponse struct {
	Body struct {
		Key         string `json:"key" doc:"Object key of the export"`
		DownloadURL string `json:"download_url" doc:"Pre-signed download URL"`
		ExpiresIn   int    `json:"expires_in" doc:"URL expiration time in seconds"`
	}
}

// ExportBody describes one uploaded export of a run
type ExportBody struct {
	Format      string    `json:"format" doc:"Export format"`
	Key         string    `json:"key" doc:"Object key of the export"`
	ContentType string    `json:"content_type" doc:"MIME type of the export"`
	Size        int64     `json:"size" doc:"Size in bytes"`
	CreatedAt   time.Time `json:"created_at" doc:"Upload time"`
	DownloadURL string    `json:"download_url" doc:"Pre-signed download URL"`
	ExpiresIn   int       `json:"expires_in" doc:"URL expiration time in seconds"`
}

// ListExportsResponse lists the exports of a run
type ListExportsResponse struct {
	Body struct {
		Exports []ExportBody `json:"exports" doc:"Exports, one per format"`
	}
}

// ExportFormatRequest addresses the export of a run in one format
type ExportFormatRequest struct {
	ID     string `path:"id" doc:"Run ID"`
	Format string `path:"format" enum:"csv,xlsx,png,svg,pdf" doc:"Export format"`
}

// ExportContentResponse carries the raw bytes of an export
type ExportContentResponse struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}
