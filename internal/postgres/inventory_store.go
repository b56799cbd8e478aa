package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/apperr"
	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InventoryStore keeps stock counts in products.stock and the ledger in inventory_ledger.
type InventoryStore struct{ DB *pgxpool.Pool }

// Mutate: lock stok per product (FOR UPDATE) -> hitung -> update + catat ledger dalam 1 tx.
// Concurrent mutations of the same product queue on the row lock.
func (s *InventoryStore) Mutate(ctx context.Context, ch inventory.Change) (inventory.Entry, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return inventory.Entry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var rec inventory.Record
	err = tx.QueryRow(ctx, `SELECT id, seller_id, stock, updated_at FROM products WHERE id=$1 FOR UPDATE`, ch.ProductID).
		Scan(&rec.ProductID, &rec.SellerID, &rec.QuantityOnHand, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Entry{}, apperr.NotFound("product", ch.ProductID)
	}
	if err != nil {
		return inventory.Entry{}, err
	}

	next, err := inventory.Apply(rec, ch)
	if err != nil {
		return inventory.Entry{}, err
	}
	e := inventory.NewEntry(rec, ch, next, time.Now())

	ct, err := tx.Exec(ctx, `UPDATE products SET stock=$2, updated_at=$3 WHERE id=$1`, ch.ProductID, next, e.CreatedAt)
	if err != nil {
		return inventory.Entry{}, err
	}
	if ct.RowsAffected() != 1 {
		return inventory.Entry{}, apperr.NotFound("product", ch.ProductID)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO inventory_ledger(id, product_id, seller_id, previous_stock, delta, new_stock, reason, reference_order_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9)`,
		e.ID, e.ProductID, e.SellerID, e.PreviousStock, e.Delta, e.NewStock, string(e.Reason), e.ReferenceOrderID, e.CreatedAt,
	); err != nil {
		return inventory.Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return inventory.Entry{}, err
	}
	return e, nil
}

func (s *InventoryStore) Get(ctx context.Context, productID string) (inventory.Record, error) {
	var rec inventory.Record
	err := s.DB.QueryRow(ctx, `SELECT id, seller_id, stock, updated_at FROM products WHERE id=$1`, productID).
		Scan(&rec.ProductID, &rec.SellerID, &rec.QuantityOnHand, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, apperr.NotFound("product", productID)
	}
	return rec, err
}

func (s *InventoryStore) Entries(ctx context.Context, productID string, limit int) ([]inventory.Entry, error) {
	if _, err := s.Get(ctx, productID); err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id::text, product_id, seller_id, previous_stock, delta, new_stock, reason, COALESCE(reference_order_id, ''), created_at
		FROM inventory_ledger WHERE product_id=$1
		ORDER BY created_at DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Entry
	for rows.Next() {
		var e inventory.Entry
		var reason string
		if err := rows.Scan(&e.ID, &e.ProductID, &e.SellerID, &e.PreviousStock, &e.Delta, &e.NewStock, &reason, &e.ReferenceOrderID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reason = inventory.Reason(reason)
		out = append(out, e)
	}
	return out, rows.Err()
}
