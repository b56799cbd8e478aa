package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/apperr"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderStore persists aggregate orders and sub-orders. Line items, addresses, tracking and
// history live in JSONB columns; status columns are plain text so that transitions can be
// written as UPDATE ... WHERE status = $expected.
type OrderStore struct{ DB *pgxpool.Pool }

const orderColumns = `id::text, order_number, COALESCE(external_id, ''), buyer_id, items, total_cents,
	status, payment_status, shipping, tracking, status_history, attributes, created_at, updated_at`

const subOrderColumns = `id::text, order_number, parent_id::text, parent_number, seller_id, items, total_cents,
	order_status, shipping, tracking, status_history, created_at, updated_at`

func (s *OrderStore) CreateOrder(ctx context.Context, o *orders.Order) error {
	items, shipping, tracking, history, err := marshalCommon(o.Items, o.Shipping, o.Tracking, o.History)
	if err != nil {
		return err
	}
	attrs, err := json.Marshal(nonNilAttrs(o.Attributes))
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO orders(id, order_number, external_id, buyer_id, items, total_cents, status, payment_status,
		                   shipping, tracking, status_history, attributes, created_at, updated_at)
		VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		o.ID, o.Number, o.ExternalID, o.BuyerID, items, o.TotalCents, string(o.Status), string(o.PaymentStatus),
		shipping, tracking, history, attrs, o.CreatedAt, o.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: order %s", apperr.ErrConflict, o.Number)
	}
	return err
}

func (s *OrderStore) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound("order", id)
	}
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order", id)
	}
	return o, err
}

func (s *OrderStore) GetOrderByExternalID(ctx context.Context, externalID string) (*orders.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_id=$1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order", externalID)
	}
	return o, err
}

func (s *OrderStore) TransitionOrder(ctx context.Context, id string, t orders.Transition) (bool, error) {
	event, err := json.Marshal(t.Event)
	if err != nil {
		return false, err
	}
	var tracking []byte
	if t.Tracking != nil {
		if tracking, err = json.Marshal(t.Tracking); err != nil {
			return false, err
		}
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders
		SET status=$3,
		    payment_status=COALESCE(NULLIF($4::text, ''), payment_status),
		    tracking=COALESCE($5::jsonb, tracking),
		    status_history=status_history || jsonb_build_array($6::jsonb),
		    updated_at=$7
		WHERE id=$1 AND status=$2`,
		id, string(t.From), string(t.To), string(t.PaymentStatus), tracking, event, t.Event.Timestamp,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *OrderStore) ListOrdersByStatus(ctx context.Context, statuses []orders.Status, limit int) ([]orders.Order, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status = ANY($1) ORDER BY updated_at LIMIT $2`, names, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *OrderStore) CountOrdersByStatus(ctx context.Context) (map[orders.Status]int64, error) {
	rows, err := s.DB.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[orders.Status]int64{}
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[orders.Status(st)] = n
	}
	return out, rows.Err()
}

func (s *OrderStore) CreateSubOrder(ctx context.Context, so *orders.SubOrder) error {
	items, shipping, tracking, history, err := marshalCommon(so.Items, so.Shipping, so.Tracking, so.History)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO sub_orders(id, order_number, parent_id, parent_number, seller_id, items, total_cents,
		                       order_status, shipping, tracking, status_history, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		so.ID, so.Number, so.ParentID, so.ParentNumber, so.SellerID, items, so.TotalCents,
		string(so.Status), shipping, tracking, history, so.CreatedAt, so.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: sub-order %s", apperr.ErrConflict, so.Number)
	}
	return err
}

func (s *OrderStore) GetSubOrder(ctx context.Context, number string) (*orders.SubOrder, error) {
	so, err := scanSubOrder(s.DB.QueryRow(ctx, `SELECT `+subOrderColumns+` FROM sub_orders WHERE order_number=$1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("sub-order", number)
	}
	return so, err
}

func (s *OrderStore) ListSubOrders(ctx context.Context, parentNumber string) ([]orders.SubOrder, error) {
	return s.querySubOrders(ctx, `SELECT `+subOrderColumns+` FROM sub_orders
		WHERE parent_number=$1 ORDER BY created_at, order_number`, parentNumber)
}

func (s *OrderStore) TransitionSubOrder(ctx context.Context, number string, t orders.SubOrderTransition) (bool, error) {
	event, err := json.Marshal(t.Event)
	if err != nil {
		return false, err
	}
	var tracking []byte
	if t.Tracking != nil {
		if tracking, err = json.Marshal(t.Tracking); err != nil {
			return false, err
		}
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE sub_orders
		SET order_status=$3,
		    tracking=COALESCE($4::jsonb, tracking),
		    status_history=status_history || jsonb_build_array($5::jsonb),
		    updated_at=$6
		WHERE order_number=$1 AND order_status=$2`,
		number, string(t.From), string(t.To), tracking, event, t.Event.Timestamp,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *OrderStore) ListSubOrdersByStatus(ctx context.Context, statuses []orders.SubOrderStatus, limit int) ([]orders.SubOrder, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	return s.querySubOrders(ctx, `SELECT `+subOrderColumns+` FROM sub_orders
		WHERE order_status = ANY($1) ORDER BY updated_at LIMIT $2`, names, limit)
}

func (s *OrderStore) CountSubOrdersByStatus(ctx context.Context) (map[orders.SubOrderStatus]int64, error) {
	rows, err := s.DB.Query(ctx, `SELECT order_status, COUNT(*) FROM sub_orders GROUP BY order_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[orders.SubOrderStatus]int64{}
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[orders.SubOrderStatus(st)] = n
	}
	return out, rows.Err()
}

func (s *OrderStore) querySubOrders(ctx context.Context, sql string, args ...any) ([]orders.SubOrder, error) {
	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.SubOrder
	for rows.Next() {
		so, err := scanSubOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *so)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var o orders.Order
	var status, pay string
	var items, shipping, tracking, history, attrs []byte
	if err := row.Scan(&o.ID, &o.Number, &o.ExternalID, &o.BuyerID, &items, &o.TotalCents,
		&status, &pay, &shipping, &tracking, &history, &attrs, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = orders.Status(status)
	o.PaymentStatus = orders.PaymentStatus(pay)
	if err := unmarshalAll(
		field{items, &o.Items}, field{shipping, &o.Shipping}, field{tracking, &o.Tracking},
		field{history, &o.History}, field{attrs, &o.Attributes},
	); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", o.ID, err)
	}
	return &o, nil
}

func scanSubOrder(row pgx.Row) (*orders.SubOrder, error) {
	var so orders.SubOrder
	var status string
	var items, shipping, tracking, history []byte
	if err := row.Scan(&so.ID, &so.Number, &so.ParentID, &so.ParentNumber, &so.SellerID, &items, &so.TotalCents,
		&status, &shipping, &tracking, &history, &so.CreatedAt, &so.UpdatedAt); err != nil {
		return nil, err
	}
	so.Status = orders.SubOrderStatus(status)
	if err := unmarshalAll(
		field{items, &so.Items}, field{shipping, &so.Shipping}, field{tracking, &so.Tracking}, field{history, &so.History},
	); err != nil {
		return nil, fmt.Errorf("decode sub-order %s: %w", so.Number, err)
	}
	return &so, nil
}

type field struct {
	raw []byte
	dst any
}

func unmarshalAll(fields ...field) error {
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return err
		}
	}
	return nil
}

func marshalCommon(items any, shipping orders.Address, tracking orders.Tracking, history []orders.StatusEvent) (i, s, t, h []byte, err error) {
	if i, err = json.Marshal(items); err != nil {
		return
	}
	if s, err = json.Marshal(shipping); err != nil {
		return
	}
	if t, err = json.Marshal(tracking); err != nil {
		return
	}
	if history == nil {
		history = []orders.StatusEvent{}
	}
	h, err = json.Marshal(history)
	return
}

func nonNilAttrs(a orders.Attributes) orders.Attributes {
	if a == nil {
		return orders.Attributes{}
	}
	return a
}
