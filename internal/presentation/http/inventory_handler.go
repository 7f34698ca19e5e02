package httppresentation

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	dominv "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
	"github.com/Zhima-Mochi/libraryhold/internal/observability"
	"github.com/Zhima-Mochi/libraryhold/internal/observability/logctx"
)

// InventoryService is the slice of the inventory coordinator the router serves.
type InventoryService interface {
	CheckAvailability(ctx context.Context, itemID int64) (bool, error)
	Reserve(ctx context.Context, itemID int64) (dominv.Outcome, error)
	Release(ctx context.Context, itemID int64) (dominv.Outcome, error)
}

type InventoryHandler struct {
	base
	svc    InventoryService
	health func(context.Context) error
}

// NewInventoryHandler serves the inventory service API. health may be nil.
func NewInventoryHandler(svc InventoryService, health func(context.Context) error, logger observability.Logger, tel observability.Observability) *InventoryHandler {
	return &InventoryHandler{
		base:   newBase("inventory-service", logger, tel),
		svc:    svc,
		health: health,
	}
}

func (h *InventoryHandler) Register(mux *http.ServeMux) {
	h.muxHandle(mux, http.MethodGet, "/inventory/items/{id}/availability", h.handleAvailability)
	h.muxHandle(mux, http.MethodPost, "/inventory/items/{id}/reserve", h.handleReserve)
	h.muxHandle(mux, http.MethodPost, "/inventory/items/{id}/release", h.handleRelease)
	mux.Handle("GET /health", handleHealth(h.health))
}

type availabilityResponse struct {
	ItemID    int64 `json:"item_id"`
	Available bool  `json:"available"`
}

func (h *InventoryHandler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r)
	if !ok {
		return
	}
	available, err := h.svc.CheckAvailability(r.Context(), itemID)
	if err != nil {
		h.storeFailure(w, r, "check_availability", err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{ItemID: itemID, Available: available})
}

func (h *InventoryHandler) handleReserve(w http.ResponseWriter, r *http.Request) {
	h.handleOutcome(w, r, "reserve", h.svc.Reserve)
}

func (h *InventoryHandler) handleRelease(w http.ResponseWriter, r *http.Request) {
	h.handleOutcome(w, r, "release", h.svc.Release)
}

// handleOutcome answers 200 for every verdict the store reached, success or
// not. Only failures to reach a verdict are 5xx.
func (h *InventoryHandler) handleOutcome(w http.ResponseWriter, r *http.Request, op string, call func(context.Context, int64) (dominv.Outcome, error)) {
	itemID, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := call(r.Context(), itemID)
	if err != nil {
		h.storeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *InventoryHandler) storeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, dominv.ErrInvalidID) {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	logctx.FromOr(r.Context(), h.log).Error("inventory_request_failed",
		observability.F("op", op),
		observability.Err(err),
	)
	writeError(w, http.StatusInternalServerError, "inventory store unavailable")
}

// pathID parses the {id} wildcard. It writes 400 and returns false when the id
// is not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return id, true
}
