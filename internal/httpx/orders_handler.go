package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// TrackingCache is the read-through cache in front of GetTracking.
type TrackingCache interface {
	Get(ctx context.Context, orderID string, out any) (bool, error)
	Set(ctx context.Context, orderID string, v any) error
	Invalidate(ctx context.Context, orderID string) error
}

type OrdersHandler struct {
	Processor *orders.Processor
	Lifecycle *orders.Lifecycle
	Tracker   *orders.Tracker
	Cache     TrackingCache // optional
	Log       *zap.Logger
}

type lineItemReq struct {
	ProductID      string         `json:"product_id" validate:"required"`
	SellerID       string         `json:"seller_id"`
	Name           string         `json:"name"`
	SKU            string         `json:"sku"`
	UnitPriceCents int64          `json:"unit_price_cents" validate:"gte=0"`
	Quantity       int            `json:"quantity" validate:"required,gt=0"`
	Specs          map[string]any `json:"specs"`
}

type addressReq struct {
	Name       string `json:"name" validate:"required"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

type PlaceOrderReq struct {
	ExternalID    string         `json:"external_id" validate:"max=128"`
	BuyerID       string         `json:"buyer_id" validate:"required"`
	Items         []lineItemReq  `json:"items" validate:"required,min=1,dive"`
	TotalCents    int64          `json:"total_cents" validate:"gte=0"`
	PaymentStatus string         `json:"payment_status" validate:"omitempty,oneof=pending paid"`
	Shipping      addressReq     `json:"shipping"`
	Attributes    map[string]any `json:"attributes"`
}

func (req PlaceOrderReq) cart() orders.Cart {
	items := make([]orders.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.LineItem{
			ProductID: it.ProductID, SellerID: it.SellerID, Name: it.Name, SKU: it.SKU,
			UnitPriceCents: it.UnitPriceCents, Quantity: it.Quantity, Specs: it.Specs,
		})
	}
	a := req.Shipping
	return orders.Cart{
		ExternalID:    req.ExternalID,
		BuyerID:       req.BuyerID,
		Items:         items,
		TotalCents:    req.TotalCents,
		PaymentStatus: orders.PaymentStatus(req.PaymentStatus),
		Shipping: orders.Address{
			Name: a.Name, Phone: a.Phone, Line1: a.Line1, Line2: a.Line2,
			City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country,
		},
		Attributes: req.Attributes,
	}
}

type noteReq struct {
	Note string `json:"note" validate:"max=500"`
}

type cancelReq struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type shipReq struct {
	Carrier        string `json:"carrier" validate:"max=100"`
	TrackingNumber string `json:"tracking_number" validate:"max=100"`
	Location       string `json:"location" validate:"max=200"`
	Note           string `json:"note" validate:"max=500"`
}

type deliverReq struct {
	Location string `json:"location" validate:"max=200"`
	Note     string `json:"note" validate:"max=500"`
}

type subOrderStatusReq struct {
	Status   string `json:"status" validate:"required,oneof=processing shipped delivered returned"`
	Location string `json:"location" validate:"max=200"`
	Note     string `json:"note" validate:"max=500"`
}

type orderDetailResp struct {
	Order     *orders.Order     `json:"order"`
	SubOrders []orders.SubOrder `json:"sub_orders"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/tracking", h.getTracking)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/process", h.process)
	r.Post("/orders/{id}/ship", h.ship)
	r.Post("/orders/{id}/deliver", h.deliver)
	r.Post("/orders/{id}/return", h.markReturned)
	r.Post("/orders/{id}/reconcile", h.reconcile)
	r.Post("/sub-orders/{number}/status", h.advanceSubOrder)
	r.Get("/stats/status-distribution", h.statusDistribution)
}

func (h *OrdersHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Processor.PlaceOrder(ctx, req.cart())
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	code := http.StatusCreated
	if res.Idempotent {
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, subs, err := h.Tracker.OrderDetail(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, orderDetailResp{Order: o, SubOrders: subs})
}

func (h *OrdersHandler) getTracking(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	if h.Cache != nil {
		var v orders.TrackingView
		hit, err := h.Cache.Get(ctx, orderID, &v)
		if err != nil {
			h.log().Warn("tracking cache read", zap.String("order_id", orderID), zap.Error(err))
		}
		if hit {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}

	// 2) fallback store
	v, err := h.Tracker.GetTracking(ctx, orderID)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.Set(ctx, orderID, v); err != nil {
			h.log().Warn("tracking cache write", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req cancelReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	if err := h.Lifecycle.Cancel(r.Context(), orderID, req.Reason); err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.invalidate(r.Context(), orderID)
	h.getOrder(w, r)
}

func (h *OrdersHandler) process(w http.ResponseWriter, r *http.Request) {
	var req noteReq
	if err := decodeOptional(w, r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.respondTransition(w, r, func(ctx context.Context, id string) (*orders.Order, error) {
		return h.Lifecycle.Process(ctx, id, req.Note)
	})
}

func (h *OrdersHandler) ship(w http.ResponseWriter, r *http.Request) {
	var req shipReq
	if err := decodeOptional(w, r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.respondTransition(w, r, func(ctx context.Context, id string) (*orders.Order, error) {
		return h.Lifecycle.Ship(ctx, id, orders.ShipInput{
			Carrier: req.Carrier, TrackingNumber: req.TrackingNumber, Location: req.Location, Note: req.Note,
		})
	})
}

func (h *OrdersHandler) deliver(w http.ResponseWriter, r *http.Request) {
	var req deliverReq
	if err := decodeOptional(w, r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.respondTransition(w, r, func(ctx context.Context, id string) (*orders.Order, error) {
		return h.Lifecycle.Deliver(ctx, id, req.Location, req.Note)
	})
}

func (h *OrdersHandler) markReturned(w http.ResponseWriter, r *http.Request) {
	var req noteReq
	if err := decodeOptional(w, r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.respondTransition(w, r, func(ctx context.Context, id string) (*orders.Order, error) {
		return h.Lifecycle.MarkReturned(ctx, id, req.Note)
	})
}

func (h *OrdersHandler) respondTransition(w http.ResponseWriter, r *http.Request, do func(ctx context.Context, id string) (*orders.Order, error)) {
	orderID := chi.URLParam(r, "id")
	o, err := do(r.Context(), orderID)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.invalidate(r.Context(), orderID)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) reconcile(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	res, err := h.Processor.ReconcileSubOrders(r.Context(), orderID)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.invalidate(r.Context(), orderID)
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) advanceSubOrder(w http.ResponseWriter, r *http.Request) {
	var req subOrderStatusReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	s, err := h.Lifecycle.AdvanceSubOrder(r.Context(), chi.URLParam(r, "number"),
		orders.SubOrderStatus(req.Status), req.Note, req.Location)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.invalidate(r.Context(), s.ParentID)
	writeJSON(w, http.StatusOK, s)
}

func (h *OrdersHandler) statusDistribution(w http.ResponseWriter, r *http.Request) {
	d, err := h.Tracker.StatusDistribution(r.Context())
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *OrdersHandler) invalidate(ctx context.Context, orderID string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, orderID); err != nil {
		h.log().Warn("tracking cache invalidate", zap.String("order_id", orderID), zap.Error(err))
	}
}
