package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chainraise/backend/internal/repository"
	"github.com/chainraise/backend/internal/service"
	"github.com/chainraise/backend/pkg/donor"
)

// DonationHandler exposes the donation request lifecycle.
type DonationHandler struct {
	registry  *service.Registry
	campaigns repository.CampaignRepository
	donors    repository.DonorRepository
}

func NewDonationHandler(registry *service.Registry, campaigns repository.CampaignRepository, donors repository.DonorRepository) *DonationHandler {
	return &DonationHandler{registry: registry, campaigns: campaigns, donors: donors}
}

// Create handles POST /api/donations. Returns the donor's live request
// for the campaign, creating one when needed.
func (h *DonationHandler) Create(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	donorID, ok := donor.IDFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		return
	}

	var req struct {
		CampaignAddress string `json:"campaign_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CampaignAddress == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_json"})
		return
	}

	campaign, err := h.campaigns.GetByLedgerAddress(r.Context(), req.CampaignAddress)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "campaign_not_found"})
			return
		}
		slog.Error("donation create: campaign lookup failed", "address", req.CampaignAddress, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal_error"})
		return
	}

	c := h.registry.Begin(donorID, campaign.Ref())
	_ = json.NewEncoder(w).Encode(c.Snapshot())
}

// Get handles GET /api/donations/{id}.
func (h *DonationHandler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	_ = json.NewEncoder(w).Encode(c.Snapshot())
}

// SetAmount handles POST /api/donations/{id}/amount.
func (h *DonationHandler) SetAmount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	c, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_json"})
		return
	}

	if err := c.SetAmount(req.Amount); err != nil {
		h.writeTransitionError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(c.Snapshot())
}

// Proceed handles POST /api/donations/{id}/proceed.
func (h *DonationHandler) Proceed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := c.Proceed(); err != nil {
		h.writeTransitionError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(c.Snapshot())
}

// Back handles POST /api/donations/{id}/back.
func (h *DonationHandler) Back(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := c.Back(); err != nil {
		h.writeTransitionError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(c.Snapshot())
}

// Confirm handles POST /api/donations/{id}/confirm. Blocks until the
// transaction settles or fails; the outcome is in the snapshot either way.
func (h *DonationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := c.Confirm(r.Context()); err != nil {
		h.writeTransitionError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(c.Snapshot())
}

// Retry handles POST /api/donations/{id}/retry.
func (h *DonationHandler) Retry(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := c.Retry(r.Context()); err != nil {
		h.writeTransitionError(w, err)
		return
	}
	_ = json.NewEncoder(w).Encode(c.Snapshot())
}

// Total handles GET /api/me/donations/total.
func (h *DonationHandler) Total(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	donorID, ok := donor.IDFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		return
	}

	total, err := h.donors.GetTotal(r.Context(), donorID)
	if err != nil {
		slog.Error("donor total failed", "donor_id", donorID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal_error"})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"total_donated": total.String()})
}

// lookup resolves the request id under the calling donor's identity.
func (h *DonationHandler) lookup(w http.ResponseWriter, r *http.Request) (*service.DonationCoordinator, bool) {
	donorID, ok := donor.IDFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		return nil, false
	}

	c, err := h.registry.Get(r.PathValue("id"), donorID)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not_found"})
		return nil, false
	}
	return c, true
}

func (h *DonationHandler) writeTransitionError(w http.ResponseWriter, err error) {
	var wrongState *service.WrongStateError
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_amount"})
	case errors.Is(err, service.ErrInFlight):
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "confirm_in_flight"})
	case errors.Is(err, service.ErrTerminal):
		w.WriteHeader(http.StatusGone)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "request_terminal"})
	case errors.As(err, &wrongState):
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": "wrong_state", "detail": wrongState.Error(),
		})
	default:
		slog.Error("donation transition failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal_error"})
	}
}
