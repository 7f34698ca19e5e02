package httppresentation

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Zhima-Mochi/libraryhold/internal/application"
	appreservation "github.com/Zhima-Mochi/libraryhold/internal/application/reservation"
	appstatistics "github.com/Zhima-Mochi/libraryhold/internal/application/statistics"
	domres "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
	"github.com/Zhima-Mochi/libraryhold/internal/observability/logctx"
)

type ReservationQueries interface {
	CheckAvailability(ctx context.Context, itemID int64) (bool, error)
	ListByHolder(ctx context.Context, holderID int64) ([]domres.Reservation, error)
}

type StatisticsReader interface {
	Snapshot(ctx context.Context) []appstatistics.Entry
}

// CatalogDeps groups what the request-facing router needs. Stats, Metrics and
// Health are optional.
type CatalogDeps struct {
	Reserve application.UseCase[appreservation.ReserveCommand, *domres.Reservation]
	Release application.UseCase[appreservation.ReleaseCommand, *domres.Reservation]
	Queries ReservationQueries
	Stats   StatisticsReader
	Metrics http.Handler
	Health  func(context.Context) error
}

type CatalogHandler struct {
	base
	deps CatalogDeps
}

func NewCatalogHandler(deps CatalogDeps, logger observability.Logger, tel observability.Observability) *CatalogHandler {
	return &CatalogHandler{
		base: newBase("catalog-service", logger, tel),
		deps: deps,
	}
}

func (h *CatalogHandler) Register(mux *http.ServeMux) {
	h.muxHandle(mux, http.MethodPost, "/reservations", h.handleReserve)
	h.muxHandle(mux, http.MethodDelete, "/reservations/{id}", h.handleRelease)
	h.muxHandle(mux, http.MethodGet, "/reservations", h.handleListByHolder)
	h.muxHandle(mux, http.MethodGet, "/items/{id}/availability", h.handleAvailability)
	if h.deps.Stats != nil {
		h.muxHandle(mux, http.MethodGet, "/statistics", h.handleStatistics)
	}
	if h.deps.Metrics != nil {
		mux.Handle("GET /metrics", h.deps.Metrics)
	}
	mux.Handle("GET /health", handleHealth(h.deps.Health))
}

type reserveRequest struct {
	HolderID int64 `json:"holder_id"`
	ItemID   int64 `json:"item_id"`
}

type reservationResponse struct {
	Success     bool                `json:"success"`
	Error       string              `json:"error,omitempty"`
	Reservation *domres.Reservation `json:"reservation,omitempty"`
}

func (h *CatalogHandler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.HolderID <= 0 || req.ItemID <= 0 {
		writeError(w, http.StatusBadRequest, "holder_id and item_id must be positive")
		return
	}

	res, err := h.deps.Reserve.Execute(r.Context(), appreservation.ReserveCommand{
		HolderID: req.HolderID,
		ItemID:   req.ItemID,
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservationResponse{Success: true, Reservation: res})
}

func (h *CatalogHandler) handleRelease(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing reservation id")
		return
	}
	res, err := h.deps.Release.Execute(r.Context(), appreservation.ReleaseCommand{ReservationID: id})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationResponse{Success: true, Reservation: res})
}

func (h *CatalogHandler) handleListByHolder(w http.ResponseWriter, r *http.Request) {
	holderID, err := strconv.ParseInt(r.URL.Query().Get("holder_id"), 10, 64)
	if err != nil || holderID <= 0 {
		writeError(w, http.StatusBadRequest, "holder_id query parameter must be a positive integer")
		return
	}
	list, err := h.deps.Queries.ListByHolder(r.Context(), holderID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if list == nil {
		list = []domres.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"holder_id": holderID, "reservations": list})
}

func (h *CatalogHandler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r)
	if !ok {
		return
	}
	available, err := h.deps.Queries.CheckAvailability(r.Context(), itemID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{ItemID: itemID, Available: available})
}

func (h *CatalogHandler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": h.deps.Stats.Snapshot(r.Context())})
}

// writeFailure renders a coordinator error as {success:false, error:<code>}.
func (h *CatalogHandler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	code := appreservation.Code(err)
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		fields := []observability.Field{
			observability.F("code", code),
			observability.Err(err),
		}
		if errors.Is(err, appreservation.ErrOrphanedReservation) {
			fields = append(fields, observability.F("orphaned", true))
		}
		logctx.FromOr(r.Context(), h.log).Error("reservation_request_failed", fields...)
	}
	writeJSON(w, status, reservationResponse{Success: false, Error: code})
}

func statusForCode(code string) int {
	switch code {
	case appreservation.CodeNotFound, appreservation.CodeHolderNotFound:
		return http.StatusNotFound
	case appreservation.CodeItemUnavailable, appreservation.CodeReservationDenied:
		return http.StatusConflict
	case appreservation.CodeInventoryError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
