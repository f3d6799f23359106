package binance

import (
	"github.com/bitly/go-simplejson"
	"github.com/shopspring/decimal"
)

// symbolFilters is the per-symbol slice of the exchange-info snapshot used
// for local order validation. Zero bounds mean "no constraint".
type symbolFilters struct {
	priceTick decimal.Decimal
	priceMin  decimal.Decimal
	priceMax  decimal.Decimal
	qtyStep   decimal.Decimal
	qtyMin    decimal.Decimal
	qtyMax    decimal.Decimal
}

// parseFilters extracts PRICE_FILTER and LOT_SIZE constraints for every
// symbol in the exchange-info payload.
func parseFilters(js *simplejson.Json) map[string]symbolFilters {
	out := make(map[string]symbolFilters)

	symbols := js.Get("symbols")
	for i := 0; i < len(symbols.MustArray()); i++ {
		entry := symbols.GetIndex(i)
		name := entry.Get("symbol").MustString()
		if name == "" {
			continue
		}

		var f symbolFilters
		filters := entry.Get("filters")
		for j := 0; j < len(filters.MustArray()); j++ {
			fltr := filters.GetIndex(j)
			switch fltr.Get("filterType").MustString() {
			case "PRICE_FILTER":
				f.priceTick = mustDecimal(fltr.Get("tickSize").MustString())
				f.priceMin = mustDecimal(fltr.Get("minPrice").MustString())
				f.priceMax = mustDecimal(fltr.Get("maxPrice").MustString())
			case "LOT_SIZE":
				f.qtyStep = mustDecimal(fltr.Get("stepSize").MustString())
				f.qtyMin = mustDecimal(fltr.Get("minQty").MustString())
				f.qtyMax = mustDecimal(fltr.Get("maxQty").MustString())
			}
		}
		out[name] = f
	}
	return out
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// snapPrice rounds the price down to the tick size and checks the min/max
// bounds. Snapping an already-compliant price returns it unchanged.
func (f symbolFilters) snapPrice(price float64) (float64, bool) {
	return snap(price, f.priceTick, f.priceMin, f.priceMax)
}

// snapQuantity rounds the quantity down to the step size and checks bounds.
func (f symbolFilters) snapQuantity(quantity float64) (float64, bool) {
	return snap(quantity, f.qtyStep, f.qtyMin, f.qtyMax)
}

// snap does the rounding on decimals rather than floats so tick sizes such as
// 0.001 do not accumulate binary representation error.
func snap(value float64, step, min, max decimal.Decimal) (float64, bool) {
	d := decimal.NewFromFloat(value)
	if !step.IsZero() {
		d = d.Div(step).Floor().Mul(step)
	}
	if !min.IsZero() && d.LessThan(min) {
		return d.InexactFloat64(), false
	}
	if !max.IsZero() && d.GreaterThan(max) {
		return d.InexactFloat64(), false
	}
	return d.InexactFloat64(), true
}
