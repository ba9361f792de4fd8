package query

import (
	"math"
	"sort"
	"time"

	"github.com/OriD-19/vendly-backend/internal/domain/order"
	"github.com/OriD-19/vendly-backend/internal/readmodel"
)

// Reporting periods accepted by Dashboard. Anything else falls back to
// PeriodWeek.
const (
	PeriodWeek    = "week"
	PeriodMonth   = "month"
	PeriodQuarter = "quarter"
	PeriodYear    = "year"
)

const topProductsLimit = 10

var periodDays = map[string]int{
	PeriodWeek:    7,
	PeriodMonth:   30,
	PeriodQuarter: 90,
	PeriodYear:    365,
}

type ProductSales struct {
	ProductID    string `json:"product_id"`
	QuantitySold int    `json:"quantity_sold"`
}

// Dashboard summarises one store's orders over a trailing window. Money is
// in minor units and covers only the store's own lines of each order.
type Dashboard struct {
	StoreID string    `json:"store_id"`
	Period  string    `json:"period"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`

	Income            int     `json:"income"`
	DeliveredOrders   int     `json:"delivered_orders"`
	AverageOrderValue float64 `json:"average_order_value"`

	Orders          int            `json:"orders"`
	StatusBreakdown map[string]int `json:"status_breakdown"`

	ItemsSold   int            `json:"items_sold"`
	TopProducts []ProductSales `json:"top_products"`

	ReturnedOrders  int     `json:"returned_orders"`
	ReturnedUnits   int     `json:"returned_units"`
	LostRevenue     int     `json:"lost_revenue"`
	ReturnRate      float64 `json:"return_rate_percent"`
	FulfilledOrders int     `json:"fulfilled_orders"`
	FulfillmentRate float64 `json:"fulfillment_rate_percent"`
	AvgFulfillDays  float64 `json:"average_fulfillment_days"`

	ConversionRate float64 `json:"conversion_rate_percent"`
}

// PeriodStart returns the start of the window ending at end.
func PeriodStart(period string, end time.Time) (string, time.Time) {
	days, ok := periodDays[period]
	if !ok {
		period, days = PeriodWeek, periodDays[PeriodWeek]
	}
	return period, end.AddDate(0, 0, -days)
}

// Dashboard computes the store analytics for the window ending at now.
func (h *Handler) Dashboard(storeID, period string, now time.Time) (*Dashboard, error) {
	orders, err := h.allOrders()
	if err != nil {
		return nil, err
	}

	period, start := PeriodStart(period, now)
	d := &Dashboard{
		StoreID:         storeID,
		Period:          period,
		Start:           start,
		End:             now,
		StatusBreakdown: make(map[string]int),
		TopProducts:     []ProductSales{},
	}
	in := func(t *time.Time) bool {
		return t != nil && !t.Before(start) && !t.After(now)
	}

	sold := make(map[string]int)
	var fulfillHours float64
	for _, o := range orders {
		lines := storeLines(o, storeID)
		if len(lines) == 0 {
			continue
		}

		if in(&o.CreatedAt) {
			d.Orders++
			d.StatusBreakdown[o.Status]++
		}

		switch order.Status(o.Status) {
		case order.StatusDelivered:
			if !in(o.DeliveredAt) {
				continue
			}
			d.DeliveredOrders++
			d.FulfilledOrders++
			fulfillHours += o.DeliveredAt.Sub(o.CreatedAt).Hours()
			for _, l := range lines {
				d.Income += l.Subtotal()
				d.ItemsSold += l.Quantity
				sold[l.ProductID] += l.Quantity
			}
		case order.StatusCancelled:
			if !in(o.CancelledAt) {
				continue
			}
			d.ReturnedOrders++
			for _, l := range lines {
				d.ReturnedUnits += l.Quantity
				d.LostRevenue += l.Subtotal()
			}
		}
	}

	if d.DeliveredOrders > 0 {
		d.AverageOrderValue = round(float64(d.Income)/float64(d.DeliveredOrders), 2)
		d.AvgFulfillDays = round(fulfillHours/24/float64(d.DeliveredOrders), 1)
	}
	if d.Orders > 0 {
		d.ReturnRate = percent(d.ReturnedOrders, d.Orders)
		d.FulfillmentRate = percent(d.FulfilledOrders, d.Orders)
		d.ConversionRate = percent(d.StatusBreakdown[string(order.StatusDelivered)], d.Orders)
	}
	d.TopProducts = topProducts(sold)
	return d, nil
}

func storeLines(o *readmodel.OrderReadModel, storeID string) []readmodel.OrderItemReadModel {
	var lines []readmodel.OrderItemReadModel
	for _, item := range o.Items {
		if item.StoreID == storeID {
			lines = append(lines, item)
		}
	}
	return lines
}

func topProducts(sold map[string]int) []ProductSales {
	out := make([]ProductSales, 0, len(sold))
	for id, qty := range sold {
		out = append(out, ProductSales{ProductID: id, QuantitySold: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QuantitySold == out[j].QuantitySold {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].QuantitySold > out[j].QuantitySold
	})
	if len(out) > topProductsLimit {
		out = out[:topProductsLimit]
	}
	return out
}

func percent(part, whole int) float64 {
	return round(float64(part)/float64(whole)*100, 2)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
