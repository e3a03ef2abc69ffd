package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chainraise/backend/internal/model"
	"github.com/chainraise/backend/internal/rates"
	"github.com/chainraise/backend/internal/repository"
	"github.com/chainraise/backend/internal/service"
)

// Reconciler produces the merged milestone view for a campaign.
type Reconciler interface {
	Reconcile(ctx context.Context, ref model.CampaignRef) ([]model.ReconciledMilestone, error)
}

// CampaignHandler serves the read-only campaign views.
type CampaignHandler struct {
	campaigns  repository.CampaignRepository
	reconciler Reconciler
	rates      rates.Provider
}

func NewCampaignHandler(campaigns repository.CampaignRepository, reconciler Reconciler, rp rates.Provider) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, reconciler: reconciler, rates: rp}
}

// List handles GET /api/campaigns.
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	list, err := h.campaigns.List(r.Context())
	if err != nil {
		slog.Error("campaign list failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "list_failed"})
		return
	}
	if list == nil {
		list = []*model.Campaign{}
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"campaigns": list})
}

type milestoneResponse struct {
	Index           int    `json:"index"`
	Name            string `json:"name"`
	TargetAmount    string `json:"target_amount"`
	CurrentAmount   string `json:"current_amount"`
	Completed       bool   `json:"completed"`
	ProgressPercent int    `json:"progress_percent"`
}

// Milestones handles GET /api/campaigns/{address}/milestones.
// An unknown address still reconciles (names fall back to defaults); only
// an unreachable ledger is an error.
func (h *CampaignHandler) Milestones(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	address := r.PathValue("address")
	ref := model.CampaignRef{LedgerAddress: address}
	if c, err := h.campaigns.GetByLedgerAddress(r.Context(), address); err == nil {
		ref = c.Ref()
	} else if !errors.Is(err, repository.ErrNotFound) {
		slog.Warn("campaign lookup failed", "address", address, "error", err)
	}

	milestones, err := h.reconciler.Reconcile(r.Context(), ref)
	if err != nil {
		if errors.Is(err, service.ErrLedgerUnavailable) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "ledger_unavailable"})
			return
		}
		slog.Error("reconcile failed", "address", address, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "reconcile_failed"})
		return
	}

	out := make([]milestoneResponse, 0, len(milestones))
	for _, m := range milestones {
		out = append(out, milestoneResponse{
			Index:           m.Index,
			Name:            m.Name,
			TargetAmount:    m.TargetAmount.String(),
			CurrentAmount:   m.CurrentAmount.String(),
			Completed:       m.Completed,
			ProgressPercent: m.ProgressPercent,
		})
	}

	resp := map[string]any{
		"campaign":   ref,
		"milestones": out,
	}
	// Display conversion only; a missing rate never blocks the view.
	if rate, err := h.rates.Rate(r.Context()); err == nil {
		resp["local_rate"] = rate
	}

	_ = json.NewEncoder(w).Encode(resp)
}
