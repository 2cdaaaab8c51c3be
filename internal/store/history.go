package store

import (
	"context"
	"fmt"
	"time"

	"MarketSession/internal/model"
	"MarketSession/internal/txn"
)

// CreateHistory writes one end-of-day snapshot. A second snapshot for the
// same stock and date returns model.ErrDuplicateSnapshot.
func (s *Store) CreateHistory(ctx context.Context, tx txn.Tx, h *model.StockHistory) error {
	q, err := s.conn(tx)
	if err != nil {
		return err
	}

	var exists int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM stock_history WHERE stock_id = ? AND date = ?`,
		h.StockID, h.Date).Scan(&exists); err != nil {
		return fmt.Errorf("check history %d/%s: %w", h.StockID, h.Date, err)
	}
	if exists > 0 {
		return fmt.Errorf("stock %d on %s: %w", h.StockID, h.Date, model.ErrDuplicateSnapshot)
	}

	res, err := q.ExecContext(ctx, `INSERT INTO stock_history
		(stock_id, date, market, name, current_price, start_price, end_price,
		 highest_price, lowest_price, change, total_hand, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		h.StockID, h.Date, h.Market, h.Name, h.CurrentPrice, h.StartPrice, h.EndPrice,
		h.HighestPrice, h.LowestPrice, h.Change, h.TotalHand, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("insert history %d/%s: %w", h.StockID, h.Date, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = id
	return nil
}

// ListHistory returns the snapshots of a stock ordered by date.
func (s *Store) ListHistory(ctx context.Context, tx txn.Tx, stockID int64) ([]model.StockHistory, error) {
	q, err := s.conn(tx)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `SELECT id, stock_id, date, market, name, current_price, start_price,
		end_price, highest_price, lowest_price, change, total_hand, created_at
		FROM stock_history WHERE stock_id = ? ORDER BY date`, stockID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []model.StockHistory
	for rows.Next() {
		var (
			h       model.StockHistory
			created int64
		)
		if err := rows.Scan(&h.ID, &h.StockID, &h.Date, &h.Market, &h.Name, &h.CurrentPrice, &h.StartPrice,
			&h.EndPrice, &h.HighestPrice, &h.LowestPrice, &h.Change, &h.TotalHand, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.CreatedAt = time.Unix(created, 0)
		out = append(out, h)
	}
	return out, rows.Err()
}
