package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Warning describes a line item the builder could not fully resolve.
type Warning struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id,omitempty"`
	Message   string `json:"message"`
}

type BuildInput struct {
	OrderID     string
	OrderNumber string
	Items       []LineItem
	Shipping    Address
	Tracking    Tracking
}

// Builder splits an aggregate order into one sub-order draft per seller. It never
// persists anything.
type Builder struct {
	catalog Catalog
	now     Clock
}

func NewBuilder(catalog Catalog, now Clock) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{catalog: catalog, now: now}
}

type sellerGroup struct {
	sellerID string
	items    []SubOrderItem
	total    int64
}

// Build groups in.Items by seller in first-appearance order. Items without a resolvable
// seller are skipped and reported.
func (b *Builder) Build(ctx context.Context, in BuildInput) ([]SubOrder, []Warning) {
	var warnings []Warning
	var groups []*sellerGroup
	bySeller := map[string]*sellerGroup{}

	for _, it := range in.Items {
		item, sellerID, w := b.resolve(ctx, it)
		warnings = append(warnings, w...)
		if sellerID == "" {
			warnings = append(warnings, Warning{ProductID: it.ProductID, Message: "no seller for item; skipped"})
			continue
		}
		g, ok := bySeller[sellerID]
		if !ok {
			g = &sellerGroup{sellerID: sellerID}
			bySeller[sellerID] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, item)
		g.total += item.LineTotalCents
	}

	sellerIDs := make([]string, 0, len(groups))
	for _, g := range groups {
		sellerIDs = append(sellerIDs, g.sellerID)
	}
	numbers := SubOrderNumbers(in.OrderNumber, sellerIDs)

	now := b.now().UTC()
	drafts := make([]SubOrder, 0, len(groups))
	for _, g := range groups {
		drafts = append(drafts, SubOrder{
			ID:           uuid.NewString(),
			Number:       numbers[g.sellerID],
			ParentID:     in.OrderID,
			ParentNumber: in.OrderNumber,
			SellerID:     g.sellerID,
			Items:        g.items,
			TotalCents:   g.total,
			Status:       SubStatusNew,
			Shipping:     in.Shipping,
			Tracking:     in.Tracking,
			History: []StatusEvent{{
				Status:    string(SubStatusNew),
				Timestamp: now,
				Note:      "Order received; awaiting seller processing",
			}},
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return drafts, warnings
}

// resolve refreshes a line item's snapshot from the catalog when any of name, sku or
// price is missing. A failed lookup keeps the snapshot.
func (b *Builder) resolve(ctx context.Context, it LineItem) (SubOrderItem, string, []Warning) {
	var warnings []Warning
	sellerID := it.SellerID
	name, sku, price := it.Name, it.SKU, it.UnitPriceCents

	if b.catalog != nil && (sellerID == "" || name == "" || sku == "" || price == 0) {
		p, err := b.catalog.GetProduct(ctx, it.ProductID)
		if err != nil {
			warnings = append(warnings, Warning{
				ProductID: it.ProductID, SellerID: sellerID,
				Message: fmt.Sprintf("catalog lookup failed, using snapshot: %v", err),
			})
		} else {
			if sellerID == "" {
				sellerID = p.SellerID
			}
			if name == "" {
				name = p.Name
			}
			if sku == "" {
				sku = p.SKU
			}
			if price == 0 {
				price = p.PriceCents
			}
		}
	}

	return SubOrderItem{
		ProductID:      it.ProductID,
		Name:           name,
		SKU:            sku,
		UnitPriceCents: price,
		Quantity:       it.Quantity,
		LineTotalCents: price * int64(it.Quantity),
		Specs:          it.Specs,
	}, sellerID, warnings
}

// SubOrderNumbers assigns "{orderNumber}-{last4(sellerID)}" to every seller. Sellers
// whose suffixes collide within the same order get the last 8 characters, then the full
// id. The result depends only on the inputs.
func SubOrderNumbers(orderNumber string, sellerIDs []string) map[string]string {
	out := make(map[string]string, len(sellerIDs))
	for _, width := range []int{4, 8, 0} {
		counts := map[string]int{}
		for _, id := range sellerIDs {
			if _, done := out[id]; done {
				continue
			}
			counts[suffix(id, width)]++
		}
		for _, id := range sellerIDs {
			if _, done := out[id]; done {
				continue
			}
			s := suffix(id, width)
			if counts[s] == 1 || width == 0 {
				out[id] = orderNumber + "-" + s
			}
		}
	}
	return out
}

func suffix(id string, width int) string {
	if width <= 0 || len(id) <= width {
		return id
	}
	return id[len(id)-width:]
}
