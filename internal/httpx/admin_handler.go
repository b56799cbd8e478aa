package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminHandler triggers one progression sweep on demand.
type AdminHandler struct {
	Sweeper orders.Sweeper
	Log     *zap.Logger
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/admin/sweep", h.sweep)
}

func (h *AdminHandler) sweep(w http.ResponseWriter, r *http.Request) {
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}
	rep, err := h.Sweeper.Sweep(r.Context())
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
