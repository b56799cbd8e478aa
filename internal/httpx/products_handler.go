package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductLister interface {
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

// ProductsHandler exposes stock reads and manual stock corrections.
type ProductsHandler struct {
	Ledger  *inventory.Ledger
	Catalog ProductLister
	Log     *zap.Logger
}

type setStockReq struct {
	SellerID string `json:"seller_id"`
	Quantity *int   `json:"quantity" validate:"required"`
	Reason   string `json:"reason" validate:"omitempty,oneof=manual adjustment"`
}

type restockReq struct {
	SellerID string `json:"seller_id"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/{id}/stock", h.stock)
	r.Get("/products/{id}/ledger", h.ledger)
	r.Put("/products/{id}/stock", h.setStock)
	r.Post("/products/{id}/restock", h.restock)
}

func (h *ProductsHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) stock(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Ledger.Stock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *ProductsHandler) ledger(w http.ResponseWriter, r *http.Request) {
	es, err := h.Ledger.Entries(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, es)
}

func (h *ProductsHandler) setStock(w http.ResponseWriter, r *http.Request) {
	var req setStockReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	reason := inventory.Reason(req.Reason)
	if reason == "" {
		reason = inventory.ReasonManual
	}
	res, err := h.Ledger.SetAbsolute(r.Context(), chi.URLParam(r, "id"), req.SellerID, *req.Quantity, reason)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ProductsHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	res, err := h.Ledger.Restore(r.Context(), chi.URLParam(r, "id"), req.SellerID, req.Quantity, inventory.ReasonRestock, "")
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
