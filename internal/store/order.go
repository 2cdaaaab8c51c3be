package store

import (
	"context"
	"fmt"
	"time"

	"MarketSession/internal/model"
	"MarketSession/internal/txn"
)

// PlaceOrder inserts a pending order and returns its id.
func (s *Store) PlaceOrder(ctx context.Context, tx txn.Tx, o model.Order) (int64, error) {
	q, err := s.conn(tx)
	if err != nil {
		return 0, err
	}
	now := s.stamp()
	res, err := q.ExecContext(ctx, `INSERT INTO orders
		(user_id, stock_id, side, price, hand, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		o.UserID, o.StockID, string(o.Side), o.Price, o.Hand, string(model.OrderPending), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return res.LastInsertId()
}

// BulkCancel cancels every pending order against a stock and returns how many were cancelled.
func (s *Store) BulkCancel(ctx context.Context, tx txn.Tx, stockID int64) (int64, error) {
	q, err := s.conn(tx)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = ?
		WHERE stock_id = ? AND status = ?`,
		string(model.OrderCancelled), s.stamp(), stockID, string(model.OrderPending),
	)
	if err != nil {
		return 0, fmt.Errorf("cancel orders of stock %d: %w", stockID, err)
	}
	return res.RowsAffected()
}

// ListOrders returns the orders against a stock ordered by id.
func (s *Store) ListOrders(ctx context.Context, tx txn.Tx, stockID int64) ([]model.Order, error) {
	q, err := s.conn(tx)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `SELECT id, user_id, stock_id, side, price, hand, status, created_at, updated_at
		FROM orders WHERE stock_id = ? ORDER BY id`, stockID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var (
			o                model.Order
			side, status     string
			created, updated int64
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.StockID, &side, &o.Price, &o.Hand, &status, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Side = model.OrderSide(side)
		o.Status = model.OrderStatus(status)
		o.CreatedAt = time.Unix(created, 0)
		o.UpdatedAt = time.Unix(updated, 0)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
