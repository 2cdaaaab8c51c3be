package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"MarketSession/internal/model"
	"MarketSession/internal/txn"
)

const stockColumns = `id, market, name, current_price, start_price, end_price,
	highest_price, lowest_price, change, total_hand, status, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStock(r rowScanner) (model.Stock, error) {
	var (
		st      model.Stock
		status  string
		updated int64
	)
	err := r.Scan(&st.ID, &st.Market, &st.Name, &st.CurrentPrice, &st.StartPrice, &st.EndPrice,
		&st.HighestPrice, &st.LowestPrice, &st.Change, &st.TotalHand, &status, &updated)
	if err != nil {
		return model.Stock{}, err
	}
	st.Status = model.StockStatus(status)
	st.UpdatedAt = time.Unix(updated, 0)
	return st, nil
}

// ListStocks returns every stock ordered by id.
func (s *Store) ListStocks(ctx context.Context, tx txn.Tx) ([]model.Stock, error) {
	q, err := s.conn(tx)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `SELECT `+stockColumns+` FROM stocks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query stocks: %w", err)
	}
	defer rows.Close()

	var stocks []model.Stock
	for rows.Next() {
		st, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		stocks = append(stocks, st)
	}
	return stocks, rows.Err()
}

// GetStock returns one stock or model.ErrNotFound.
func (s *Store) GetStock(ctx context.Context, tx txn.Tx, id int64) (model.Stock, error) {
	q, err := s.conn(tx)
	if err != nil {
		return model.Stock{}, err
	}
	st, err := scanStock(q.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stocks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Stock{}, fmt.Errorf("stock %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Stock{}, fmt.Errorf("get stock %d: %w", id, err)
	}
	return st, nil
}

// CreateStock inserts a closed stock priced at st.CurrentPrice and returns its id.
func (s *Store) CreateStock(ctx context.Context, tx txn.Tx, st model.Stock) (int64, error) {
	q, err := s.conn(tx)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, `INSERT INTO stocks
		(market, name, current_price, start_price, end_price, highest_price, lowest_price, status, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		st.Market, st.Name, st.CurrentPrice, st.CurrentPrice, st.CurrentPrice,
		st.CurrentPrice, st.CurrentPrice, string(model.StockClosed), s.stamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert stock %s: %w", st.Name, err)
	}
	return res.LastInsertId()
}

// SeedStocks inserts stocks only when the table is empty and reports how many were added.
func (s *Store) SeedStocks(ctx context.Context, stocks []model.Stock) (int, error) {
	var added int
	err := txn.Run(ctx, s, func(tx txn.Tx) error {
		q, err := s.conn(tx)
		if err != nil {
			return err
		}
		var n int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM stocks`).Scan(&n); err != nil {
			return fmt.Errorf("count stocks: %w", err)
		}
		if n > 0 {
			return nil
		}
		for _, st := range stocks {
			if _, err := s.CreateStock(ctx, tx, st); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// StartQuotation marks a stock tradable and resets its per-day counters to the current price.
func (s *Store) StartQuotation(ctx context.Context, tx txn.Tx, stockID int64) error {
	q, err := s.conn(tx)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE stocks SET
			status = ?,
			start_price = current_price,
			highest_price = current_price,
			lowest_price = current_price,
			change = 0,
			total_hand = 0,
			updated_at = ?
		WHERE id = ?`,
		string(model.StockOpen), s.stamp(), stockID,
	)
	if err != nil {
		return fmt.Errorf("start quotation %d: %w", stockID, err)
	}
	return mustAffect(res, fmt.Sprintf("start quotation %d", stockID))
}

// EndQuotation marks a stock untradable and freezes its end price.
func (s *Store) EndQuotation(ctx context.Context, tx txn.Tx, stockID int64) error {
	q, err := s.conn(tx)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE stocks SET
			status = ?,
			end_price = current_price,
			updated_at = ?
		WHERE id = ?`,
		string(model.StockClosed), s.stamp(), stockID,
	)
	if err != nil {
		return fmt.Errorf("end quotation %d: %w", stockID, err)
	}
	return mustAffect(res, fmt.Sprintf("end quotation %d", stockID))
}

// SetCurrentPrice records a new quote, widening the day's high/low range.
func (s *Store) SetCurrentPrice(ctx context.Context, tx txn.Tx, stockID int64, price float64) error {
	q, err := s.conn(tx)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE stocks SET
			current_price = ?1,
			highest_price = MAX(highest_price, ?1),
			lowest_price = MIN(lowest_price, ?1),
			change = ?1 - start_price,
			updated_at = ?2
		WHERE id = ?3`,
		price, s.stamp(), stockID,
	)
	if err != nil {
		return fmt.Errorf("set price of %d: %w", stockID, err)
	}
	return mustAffect(res, fmt.Sprintf("set price of %d", stockID))
}
