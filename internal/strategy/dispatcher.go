package strategy

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"MarketSession/internal/model"
	"MarketSession/internal/txn"
)

// Store is what a robot reads and writes while trading.
type Store interface {
	ListStocks(ctx context.Context, tx txn.Tx) ([]model.Stock, error)
	FindCapital(ctx context.Context, tx txn.Tx, userID int64) (model.Capital, error)
	PlaceOrder(ctx context.Context, tx txn.Tx, o model.Order) (int64, error)
	SetCurrentPrice(ctx context.Context, tx txn.Tx, stockID int64, price float64) error
}

// MaxStep bounds one random-walk quote move, as a fraction of the current price.
const MaxStep = 0.01

// Dispatcher places at most one limit order per robot per call, on a randomly
// chosen open stock. Each call first walks that stock's quote by up to MaxStep,
// so the tier table sees the price drift away from the day's start.
type Dispatcher struct {
	tx    txn.Beginner
	store Store

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewDispatcher creates a Dispatcher seeded with seed.
func NewDispatcher(tx txn.Beginner, store Store, seed uint64) *Dispatcher {
	return &Dispatcher{
		tx:    tx,
		store: store,
		rnd:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Dispatch runs one trading decision for a robot. A robot with no open
// stock, no ledger or not enough capital stays idle without error.
func (d *Dispatcher) Dispatch(ctx context.Context, agentID int64) error {
	return txn.Run(ctx, d.tx, func(tx txn.Tx) error {
		stocks, err := d.store.ListStocks(ctx, tx)
		if err != nil {
			return fmt.Errorf("list stocks: %w", err)
		}
		var open []model.Stock
		for _, st := range stocks {
			if st.Status == model.StockOpen {
				open = append(open, st)
			}
		}
		if len(open) == 0 {
			return nil
		}

		st, step, jitter := d.pick(open)
		price := WalkPrice(st.CurrentPrice, step)
		if err := d.store.SetCurrentPrice(ctx, tx, st.ID, price); err != nil {
			return fmt.Errorf("quote %s: %w", st.Name, err)
		}
		st.CurrentPrice = price

		action := Evaluate(st)
		if action.Side == "" {
			return nil
		}
		order := model.Order{
			UserID:  agentID,
			StockID: st.ID,
			Side:    action.Side,
			Price:   LimitPrice(st.CurrentPrice, jitter),
			Hand:    action.Hand,
		}

		if order.Side == model.SideBuy {
			c, err := d.store.FindCapital(ctx, tx, agentID)
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("find capital: %w", err)
			}
			if order.Price*float64(order.Hand*SharesPerHand) > c.Balance {
				return nil
			}
		}

		if _, err := d.store.PlaceOrder(ctx, tx, order); err != nil {
			return fmt.Errorf("place %s order on %s: %w", order.Side, st.Name, err)
		}
		return nil
	})
}

// pick returns a stock plus a walk step and an order jitter, both in [-1, 1].
func (d *Dispatcher) pick(stocks []model.Stock) (model.Stock, float64, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return stocks[d.rnd.IntN(len(stocks))], d.rnd.Float64()*2 - 1, d.rnd.Float64()*2 - 1
}
