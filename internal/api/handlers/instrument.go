package handlers

import (
	"context"

	"github.com/RMahshie/smuacq/internal/processing"
	"github.com/RMahshie/smuacq/pkg/models"
)

// InstrumentHandler handles requests addressing the instrument itself
type InstrumentHandler struct {
	svc processing.RunService
}

// NewInstrumentHandler creates a new instrument handler
func NewInstrumentHandler(svc processing.RunService) *InstrumentHandler {
	return &InstrumentHandler{svc: svc}
}

// GetInstrument reports the instrument identity and engine state
func (h *InstrumentHandler) GetInstrument(ctx context.Context, req *struct{}) (*models.InstrumentResponse, error) {
	id, err := h.svc.Identify(ctx)
	if err != nil {
		return nil, apiError("Failed to identify instrument", err)
	}

	resp := &models.InstrumentResponse{}
	resp.Body.Manufacturer = id.Manufacturer
	resp.Body.Model = id.Model
	resp.Body.Serial = id.Serial
	resp.Body.Firmware = id.Firmware
	resp.Body.State = h.svc.State().String()
	if runID, ok := h.svc.ActiveRun(); ok {
		s := runID.String()
		resp.Body.ActiveRun = &s
	}
	return resp, nil
}

// Shutdown puts the instrument into its safe state
func (h *InstrumentHandler) Shutdown(ctx context.Context, req *struct{}) (*models.MessageResponse, error) {
	if err := h.svc.Shutdown(ctx); err != nil {
		return nil, apiError("Shutdown refused", err)
	}
	resp := &models.MessageResponse{}
	resp.Body.Message = "Instrument shut down"
	return resp, nil
}
