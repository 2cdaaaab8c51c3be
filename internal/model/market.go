package model

import "time"

// StockStatus is the tradable state of a stock within the daily session.
type StockStatus string

const (
	StockOpen   StockStatus = "OPEN"
	StockClosed StockStatus = "CLOSED"
)

// Stock is the live quotation state of one listed stock.
type Stock struct {
	ID           int64
	Market       string
	Name         string
	CurrentPrice float64
	StartPrice   float64
	EndPrice     float64
	HighestPrice float64
	LowestPrice  float64
	Change       float64
	TotalHand    int64 // traded volume in hands
	Status       StockStatus
	UpdatedAt    time.Time
}

// StockHistory is the immutable end-of-day record of a stock.
type StockHistory struct {
	ID           int64
	StockID      int64
	Date         string // YYYY-MM-DD in the market timezone
	Market       string
	Name         string
	CurrentPrice float64
	StartPrice   float64
	EndPrice     float64
	HighestPrice float64
	LowestPrice  float64
	Change       float64
	TotalHand    int64
	CreatedAt    time.Time
}

// SnapshotOf derives the end-of-day record of s for date. EndPrice is the current price.
func SnapshotOf(s Stock, date string) *StockHistory {
	return &StockHistory{
		StockID:      s.ID,
		Date:         date,
		Market:       s.Market,
		Name:         s.Name,
		CurrentPrice: s.CurrentPrice,
		StartPrice:   s.StartPrice,
		EndPrice:     s.CurrentPrice,
		HighestPrice: s.HighestPrice,
		LowestPrice:  s.LowestPrice,
		Change:       s.Change,
		TotalHand:    s.TotalHand,
	}
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderFilled    OrderStatus = "FILLED"
)

// Order is a user's limit order against a stock.
type Order struct {
	ID        int64
	UserID    int64
	StockID   int64
	Side      OrderSide
	Price     float64
	Hand      int64
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
