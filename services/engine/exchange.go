package engine

import "github.com/shopspring/decimal"

// CostModel applies slippage and fees multiplicatively to fill prices. Spread never moves a
// fill: half the spread rate is charged on the raw notional of every fill instead.
type CostModel struct {
	FeeRate      float64
	SlippageRate float64
	SpreadRate   float64
}

// EntryPrice is raw*(1+slippage)*(1+fee).
func (m CostModel) EntryPrice(raw float64) float64 {
	return raw * (1 + m.SlippageRate) * (1 + m.FeeRate)
}

// ExitPrice is raw*(1-slippage)*(1-fee).
func (m CostModel) ExitPrice(raw float64) float64 {
	return raw * (1 - m.SlippageRate) * (1 - m.FeeRate)
}

// FillCost is the cost breakdown of one fill.
type FillCost struct {
	Fee      decimal.Decimal
	Slippage decimal.Decimal
	Spread   decimal.Decimal
}

func (c FillCost) Add(o FillCost) FillCost {
	return FillCost{Fee: c.Fee.Add(o.Fee), Slippage: c.Slippage.Add(o.Slippage), Spread: c.Spread.Add(o.Spread)}
}

// Total is fee + slippage + spread.
func (c FillCost) Total() decimal.Decimal { return c.Fee.Add(c.Slippage).Add(c.Spread) }

// Buy returns the costs of buying qty at raw. Slippage is measured on the raw price and the
// fee on the slipped price, matching EntryPrice.
func (m CostModel) Buy(raw, qty float64) FillCost {
	return m.fill(raw, qty, 1)
}

// Sell mirrors Buy, matching ExitPrice.
func (m CostModel) Sell(raw, qty float64) FillCost {
	return m.fill(raw, qty, -1)
}

func (m CostModel) fill(raw, qty float64, dir int64) FillCost {
	price := decimal.NewFromFloat(raw)
	q := decimal.NewFromFloat(qty)
	slipRate := decimal.NewFromFloat(m.SlippageRate)
	notional := price.Mul(q)

	slipped := price.Mul(decimal.NewFromInt(1).Add(slipRate.Mul(decimal.NewFromInt(dir))))
	return FillCost{
		Slippage: notional.Mul(slipRate),
		Fee:      slipped.Mul(q).Mul(decimal.NewFromFloat(m.FeeRate)),
		Spread:   notional.Mul(decimal.NewFromFloat(m.SpreadRate)).Div(decimal.NewFromInt(2)),
	}
}
