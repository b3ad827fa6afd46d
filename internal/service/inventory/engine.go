package inventory

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/shift"
)

const topProductsLimit = 3

var (
	highRatio = decimal.NewFromFloat(0.6)
	lowRatio  = decimal.NewFromFloat(0.2)
)

// Status classifies the unit stock of one product.
type Status string

const (
	StatusOut    Status = "out"
	StatusLow    Status = "low"
	StatusNormal Status = "normal"
	StatusHigh   Status = "high"
)

// Classify applies the stock thresholds in order: out, high, low, normal.
func Classify(currentStockUnits, producedUnits int) Status {
	current := decimal.NewFromInt(int64(currentStockUnits))
	produced := decimal.NewFromInt(int64(producedUnits))
	switch {
	case currentStockUnits <= 0:
		return StatusOut
	case current.GreaterThan(produced.Mul(highRatio)):
		return StatusHigh
	case current.LessThan(produced.Mul(lowRatio)):
		return StatusLow
	default:
		return StatusNormal
	}
}

// ProductFigures is the reconciled snapshot of one product.
//
// CurrentStockUnits is the signed unit view (produced - sold). The monetary
// view is RemainingFromProduction, clamped at zero. Both are reported.
type ProductFigures struct {
	ProductID               string          `json:"product_id"`
	ProductName             string          `json:"product_name"`
	UnitPrice               decimal.Decimal `json:"unit_price"`
	ProducedUnits           int             `json:"produced_units"`
	SoldUnits               int             `json:"sold_units"`
	ProducedValue           decimal.Decimal `json:"produced_value"`
	SoldValue               decimal.Decimal `json:"sold_value"`
	RemainingManualValue    decimal.Decimal `json:"remaining_manual_value"`
	RemainingFromProduction decimal.Decimal `json:"remaining_from_production"`
	RemainingTarget         decimal.Decimal `json:"remaining_target"`
	SalesTarget             decimal.Decimal `json:"sales_target"`
	CurrentStockUnits       int             `json:"current_stock_units"`
	Status                  Status          `json:"status"`
}

// Totals aggregates every product of a snapshot.
type Totals struct {
	ProducedUnits   int             `json:"produced_units"`
	SoldUnits       int             `json:"sold_units"`
	ProducedValue   decimal.Decimal `json:"produced_value"`
	SoldValue       decimal.Decimal `json:"sold_value"`
	RemainingTarget decimal.Decimal `json:"remaining_target"`
	LowCount        int             `json:"low_count"`
	OutCount        int             `json:"out_count"`
}

// Figures is the output of one reconciliation.
type Figures struct {
	Shift       models.Shift     `json:"shift"`
	Day         string           `json:"day"`
	OwnerID     string           `json:"owner_id,omitempty"`
	Products    []ProductFigures `json:"products"`
	Totals      Totals           `json:"totals"`
	TopProducts []ProductFigures `json:"top_products"`
}

// Alerting returns the products in low or out status.
func (f *Figures) Alerting() []ProductFigures {
	var out []ProductFigures
	for _, p := range f.Products {
		if p.Status == StatusLow || p.Status == StatusOut {
			out = append(out, p)
		}
	}
	return out
}

// Input carries everything a reconciliation reads. Events outside the window,
// shift or owner scope are ignored, so callers may pass a superset.
type Input struct {
	Window     shift.Window
	ProductID  string
	OwnerID    string
	Products   []models.Product
	Production []models.ProductionEvent
	Sales      []models.SalesEvent
	Remaining  []models.RemainingStockEntry
}

type accumulator struct {
	figures ProductFigures
	seen    bool
}

// Reconcile merges the three streams into per-product figures.
func Reconcile(in Input) Figures {
	out := Figures{
		Shift:    in.Window.Shift,
		Day:      in.Window.Day,
		OwnerID:  in.OwnerID,
		Products: []ProductFigures{},
	}

	order := make([]string, 0, len(in.Products))
	acc := make(map[string]*accumulator, len(in.Products))
	lookup := func(id string) *accumulator {
		if a, ok := acc[id]; ok {
			return a
		}
		// Unknown products are priced at zero.
		a := &accumulator{figures: newFigures(id, "", decimal.Zero)}
		acc[id] = a
		order = append(order, id)
		return a
	}

	for _, p := range in.Products {
		if in.ProductID != "" && p.ID != in.ProductID {
			continue
		}
		if _, dup := acc[p.ID]; dup {
			continue
		}
		acc[p.ID] = &accumulator{figures: newFigures(p.ID, p.Name, decimal.NewFromFloat(p.UnitPrice)), seen: true}
		order = append(order, p.ID)
	}

	for _, e := range in.Production {
		if !inScope(in, e.ProductID, e.Shift) || !in.Window.Contains(e.OccurredAt) {
			continue
		}
		a := lookup(e.ProductID)
		a.seen = true
		qty := decimal.NewFromInt(int64(e.Quantity))
		a.figures.ProducedUnits += e.Quantity
		a.figures.ProducedValue = a.figures.ProducedValue.Add(qty.Mul(a.figures.UnitPrice))
	}

	for _, e := range in.Sales {
		if !inScope(in, e.ProductID, e.Shift) || !in.Window.Contains(e.OccurredAt) {
			continue
		}
		if in.OwnerID != "" && e.OwnerID != in.OwnerID {
			continue
		}
		a := lookup(e.ProductID)
		a.seen = true
		a.figures.SoldUnits += e.Quantity
		a.figures.SoldValue = a.figures.SoldValue.Add(LineAmount(e, a.figures.UnitPrice))
	}

	for _, e := range in.Remaining {
		if in.ProductID != "" && e.ProductID != in.ProductID {
			continue
		}
		if in.OwnerID != "" && e.OwnerID != in.OwnerID {
			continue
		}
		a := lookup(e.ProductID)
		a.seen = true
		qty := decimal.NewFromInt(int64(e.Quantity))
		a.figures.RemainingManualValue = a.figures.RemainingManualValue.Add(qty.Mul(a.figures.UnitPrice))
	}

	for _, id := range order {
		a := acc[id]
		if !a.seen {
			continue
		}
		f := finish(a.figures)
		out.Products = append(out.Products, f)

		out.Totals.ProducedUnits += f.ProducedUnits
		out.Totals.SoldUnits += f.SoldUnits
		out.Totals.ProducedValue = out.Totals.ProducedValue.Add(f.ProducedValue)
		out.Totals.SoldValue = out.Totals.SoldValue.Add(f.SoldValue)
		out.Totals.RemainingTarget = out.Totals.RemainingTarget.Add(f.RemainingTarget)
		switch f.Status {
		case StatusLow:
			out.Totals.LowCount++
		case StatusOut:
			out.Totals.OutCount++
		}
	}

	out.TopProducts = TopProducts(out.Products, topProductsLimit)
	return out
}

// LineAmount is quantity x effective price minus discount. It is not clamped.
func LineAmount(e models.SalesEvent, defaultPrice decimal.Decimal) decimal.Decimal {
	price := defaultPrice
	if e.UnitPrice != nil {
		price = decimal.NewFromFloat(*e.UnitPrice)
	}
	return decimal.NewFromInt(int64(e.Quantity)).Mul(price).Sub(decimal.NewFromFloat(e.Discount))
}

// TopProducts ranks by sold value, descending, keeping input order on ties.
func TopProducts(products []ProductFigures, limit int) []ProductFigures {
	ranked := make([]ProductFigures, len(products))
	copy(ranked, products)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].SoldValue.GreaterThan(ranked[j].SoldValue)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func inScope(in Input, productID string, s models.Shift) bool {
	if in.ProductID != "" && productID != in.ProductID {
		return false
	}
	return s == in.Window.Shift
}

func newFigures(id, name string, price decimal.Decimal) ProductFigures {
	return ProductFigures{
		ProductID:            id,
		ProductName:          name,
		UnitPrice:            price,
		ProducedValue:        decimal.Zero,
		SoldValue:            decimal.Zero,
		RemainingManualValue: decimal.Zero,
	}
}

func finish(f ProductFigures) ProductFigures {
	f.RemainingFromProduction = decimal.Max(decimal.Zero, f.ProducedValue.Sub(f.SoldValue))
	f.RemainingTarget = f.RemainingFromProduction.Add(f.RemainingManualValue)
	f.SalesTarget = f.ProducedValue
	f.CurrentStockUnits = f.ProducedUnits - f.SoldUnits
	f.Status = Classify(f.CurrentStockUnits, f.ProducedUnits)
	return f
}
