package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/apperr"
	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"go.uber.org/zap"
)

type errorResp struct {
	Error       string                   `json:"error"`
	Unavailable []orders.UnavailableItem `json:"unavailable,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Anything unrecognised is a 500 and is
// logged; its message is not echoed to the client.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		stock     *orders.StockUnavailableError
		insuf     *inventory.InsufficientStockError
		badQty    *inventory.InvalidQuantityError
		badTransi *orders.InvalidTransitionError
	)
	switch {
	case errors.As(err, &stock):
		writeJSON(w, http.StatusConflict, errorResp{Error: err.Error(), Unavailable: stock.Items})
	case errors.As(err, &insuf), errors.As(err, &badTransi), errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResp{Error: err.Error()})
	case errors.As(err, &badQty), errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
	case apperr.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResp{Error: err.Error()})
	default:
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: "internal error"})
	}
}
