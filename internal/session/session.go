// Package session moves the whole market between Open and Closed at the
// daily session boundaries. Each transition is one unit of work: every stock
// moves or none does.
package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"MarketSession/internal/model"
	"MarketSession/internal/txn"
)

// StockStore is the stock collaborator.
type StockStore interface {
	ListStocks(ctx context.Context, tx txn.Tx) ([]model.Stock, error)
	StartQuotation(ctx context.Context, tx txn.Tx, stockID int64) error
	EndQuotation(ctx context.Context, tx txn.Tx, stockID int64) error
}

// OrderStore is the order collaborator.
type OrderStore interface {
	BulkCancel(ctx context.Context, tx txn.Tx, stockID int64) (int64, error)
}

// HistoryStore is the stock history collaborator.
type HistoryStore interface {
	CreateHistory(ctx context.Context, tx txn.Tx, h *model.StockHistory) error
}

// Controller runs the Pre-Open -> Open -> Closed transitions.
type Controller struct {
	tx      txn.Beginner
	stocks  StockStore
	orders  OrderStore
	history HistoryStore
	now     func() time.Time
}

// NewController creates a Controller. now supplies the clock, already in the market timezone.
func NewController(tx txn.Beginner, stocks StockStore, orders OrderStore, history HistoryStore, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{tx: tx, stocks: stocks, orders: orders, history: history, now: now}
}

// CloseSummary describes a committed close.
type CloseSummary struct {
	Date      string
	Stocks    int
	Cancelled int64
}

// Open starts quotation of every stock.
func (c *Controller) Open(ctx context.Context) (int, error) {
	var opened int
	err := txn.Run(ctx, c.tx, func(tx txn.Tx) error {
		stocks, err := c.stocks.ListStocks(ctx, tx)
		if err != nil {
			return fmt.Errorf("list stocks: %w", err)
		}
		for _, st := range stocks {
			if err := c.stocks.StartQuotation(ctx, tx, st.ID); err != nil {
				return fmt.Errorf("start quotation of %s: %w", st.Name, err)
			}
		}
		opened = len(stocks)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("session open rolled back: %w", err)
	}
	return opened, nil
}

// Close cancels pending orders, ends quotation and writes the day's history
// snapshot, in that order, for every stock.
func (c *Controller) Close(ctx context.Context) (CloseSummary, error) {
	sum := CloseSummary{Date: c.now().Format(time.DateOnly)}
	err := txn.Run(ctx, c.tx, func(tx txn.Tx) error {
		stocks, err := c.stocks.ListStocks(ctx, tx)
		if err != nil {
			return fmt.Errorf("list stocks: %w", err)
		}
		for _, st := range stocks {
			n, err := c.orders.BulkCancel(ctx, tx, st.ID)
			if err != nil {
				return fmt.Errorf("cancel orders of %s: %w", st.Name, err)
			}
			sum.Cancelled += n
			if err := c.stocks.EndQuotation(ctx, tx, st.ID); err != nil {
				return fmt.Errorf("end quotation of %s: %w", st.Name, err)
			}
			if err := c.history.CreateHistory(ctx, tx, model.SnapshotOf(st, sum.Date)); err != nil {
				return fmt.Errorf("snapshot of %s: %w", st.Name, err)
			}
		}
		sum.Stocks = len(stocks)
		return nil
	})
	if err != nil {
		return CloseSummary{}, fmt.Errorf("session close rolled back: %w", err)
	}
	return sum, nil
}

// OpenHandler adapts Open to a scheduler handler.
func (c *Controller) OpenHandler(ctx context.Context) error {
	n, err := c.Open(ctx)
	if err != nil {
		return err
	}
	log.Printf("[INFO] session opened: %d stocks", n)
	return nil
}

// CloseHandler adapts Close to a scheduler handler.
func (c *Controller) CloseHandler(ctx context.Context) error {
	sum, err := c.Close(ctx)
	if err != nil {
		return err
	}
	log.Printf("[INFO] session closed for %s: %d stocks, %d orders cancelled", sum.Date, sum.Stocks, sum.Cancelled)
	return nil
}
