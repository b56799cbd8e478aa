package postgres

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-marketplace-orders/internal/apperr"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Catalog reads the product and seller tables maintained by the catalog service. It
// implements orders.Catalog and orders.SellerDirectory.
type Catalog struct{ DB *pgxpool.Pool }

func (c *Catalog) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	var p orders.Product
	err := c.DB.QueryRow(ctx, `SELECT id, seller_id, name, sku, price_cents, is_active FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SellerID, &p.Name, &p.SKU, &p.PriceCents, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, apperr.NotFound("product", id)
	}
	return p, err
}

func (c *Catalog) GetSeller(ctx context.Context, id string) (orders.Seller, error) {
	var s orders.Seller
	err := c.DB.QueryRow(ctx, `SELECT id, name, notify_new_orders FROM sellers WHERE id=$1`, id).
		Scan(&s.ID, &s.Name, &s.NotifyNewOrders)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, apperr.NotFound("seller", id)
	}
	return s, err
}

func (c *Catalog) ListProducts(ctx context.Context) ([]orders.Product, error) {
	rows, err := c.DB.Query(ctx, `SELECT id, seller_id, name, sku, price_cents, is_active FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		var p orders.Product
		if err := rows.Scan(&p.ID, &p.SellerID, &p.Name, &p.SKU, &p.PriceCents, &p.Active); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
