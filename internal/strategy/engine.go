package strategy

import (
	"math"

	"MarketSession/internal/model"
)

// SharesPerHand converts hands to shares when pricing an order.
const SharesPerHand = 100

// Action is what a robot does with one stock.
type Action struct {
	Label string
	Side  model.OrderSide // empty means hold
	Hand  int64
}

// Tiers maps a stock's intraday move to an action, highest move first.
var Tiers = []struct {
	MinMove float64
	Action  Action
}{
	{0.05, Action{Label: "take profit", Side: model.SideSell, Hand: 3}},
	{0.02, Action{Label: "trim", Side: model.SideSell, Hand: 1}},
	{-0.02, Action{Label: "hold"}},
	{-0.05, Action{Label: "accumulate", Side: model.SideBuy, Hand: 1}},
}

// DefaultAction applies to moves below every tier.
var DefaultAction = Action{Label: "bottom fish", Side: model.SideBuy, Hand: 3}

// Move is the intraday change of a stock relative to its start price.
func Move(st model.Stock) float64 {
	if st.StartPrice <= 0 {
		return 0
	}
	return (st.CurrentPrice - st.StartPrice) / st.StartPrice
}

// Evaluate maps a stock to the action of the first tier its move reaches.
func Evaluate(st model.Stock) Action {
	m := Move(st)
	for _, t := range Tiers {
		if m >= t.MinMove {
			return t.Action
		}
	}
	return DefaultAction
}

// LimitPrice offsets price by jitter (a fraction in [-1, 1]) of one percent, rounded to cents.
func LimitPrice(price, jitter float64) float64 {
	p := price * (1 + 0.01*jitter)
	return math.Round(p*100) / 100
}

// WalkPrice moves price by step (a fraction in [-1, 1]) of MaxStep, rounded to
// cents and never below one cent.
func WalkPrice(price, step float64) float64 {
	p := math.Round(price*(1+MaxStep*step)*100) / 100
	return math.Max(p, 0.01)
}
