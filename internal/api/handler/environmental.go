// Package handler provides HTTP handlers for the SafeOut API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/safeout/safeout/internal/api/models"
	"github.com/safeout/safeout/internal/api/response"
	"github.com/safeout/safeout/internal/snapshot"
)

// Aggregator answers one point-and-radius query across all sources.
type Aggregator interface {
	Snapshot(ctx context.Context, q snapshot.Query) (*snapshot.Response, error)
}

// EnvironmentalHandler handles the environmental-data endpoint.
type EnvironmentalHandler struct {
	aggregator Aggregator
}

// NewEnvironmentalHandler creates a new EnvironmentalHandler.
func NewEnvironmentalHandler(aggregator Aggregator) *EnvironmentalHandler {
	return &EnvironmentalHandler{aggregator: aggregator}
}

// GetEnvironmentalData handles POST /api/v1/environmental-data.
// Responds 200 when every source contributed, 206 when any source was
// degraded, 400 problem+json for an invalid query.
func (h *EnvironmentalHandler) GetEnvironmentalData(w http.ResponseWriter, r *http.Request) {
	var input models.EnvironmentalDataRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if fieldErrs := input.Validate(); len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrs)
		return
	}

	resp, err := h.aggregator.Snapshot(r.Context(), input.ToQuery())
	if err != nil {
		if errors.Is(err, snapshot.ErrInvalidQuery) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		response.InternalError(w, r, "aggregation failed")
		return
	}

	status := http.StatusOK
	if resp.PartiallyServed() {
		status = http.StatusPartialContent
	}
	response.JSON(w, r, status, resp)
}
