package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chainraise/backend/internal/rates"
)

// RateHandler serves the display-conversion rate.
type RateHandler struct {
	rates rates.Provider
}

func NewRateHandler(rp rates.Provider) *RateHandler {
	return &RateHandler{rates: rp}
}

// Get handles GET /api/rate. Unavailable only when no rate was ever
// fetched; a stale rate is still served by the provider.
func (h *RateHandler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	rate, err := h.rates.Rate(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate_unavailable"})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]float64{"rate": rate})
}
