// Package httpx serves the generation pipeline's JSON API.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
)

// Dispatcher starts or reuses generations. Implemented by service.DispatcherService.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.DispatchRequest) (*model.DispatchResult, error)
}

// ResultReader reads and cancels generations. Implemented by service.ResultService.
type ResultReader interface {
	Get(ctx context.Context, id string) (*model.GenerationResult, error)
	RequestCancel(ctx context.Context, id string) (*model.GenerationResult, error)
}

// GenerationHandlers provides the /api/generations endpoints.
type GenerationHandlers struct {
	Dispatcher Dispatcher
	Results    ResultReader
	Logger     *slog.Logger
}

// DispatchResponse is the body of a successful dispatch.
type DispatchResponse struct {
	ID     string                 `json:"id"`
	Status model.GenerationStatus `json:"status"`
	Reused bool                   `json:"reused"`
}

// Dispatch handles POST /api/generations. A new generation answers 202 and a
// reused pending or completed one answers 200.
func (h *GenerationHandlers) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req model.DispatchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	out, err := h.Dispatcher.Dispatch(r.Context(), req)
	switch {
	case errors.Is(err, model.ErrInvalidDispatchRequest):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_request", Err: err})
		return
	case errors.Is(err, model.ErrUnknownEvent):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "unknown_event", Err: err})
		return
	case err != nil:
		h.logger().ErrorContext(r.Context(), "dispatch failed",
			"event_name", req.EventName, "target", req.Target().Key(), "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "dispatch_failed", Err: err})
		return
	}

	code := http.StatusAccepted
	if out.Reused {
		code = http.StatusOK
	}
	WriteJSON(w, code, DispatchResponse{ID: out.Result.ID, Status: out.Result.Status, Reused: out.Reused})
}

// Get handles GET /api/generations/{id}.
func (h *GenerationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.Results.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeResultError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// Cancel handles POST /api/generations/{id}/cancel.
func (h *GenerationHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.Results.RequestCancel(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeResultError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, res)
}

func (h *GenerationHandlers) writeResultError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrResultNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
	case errors.Is(err, model.ErrResultTerminal):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "already_terminal", Err: err})
	default:
		h.logger().ErrorContext(r.Context(), "result lookup failed", "id", r.PathValue("id"), "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal_error", Err: err})
	}
}

func (h *GenerationHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
