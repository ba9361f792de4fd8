package command

import "github.com/OriD-19/vendly-backend/internal/domain/order"

// Order Commands
type CreateOrder struct {
	CustomerID     string           `json:"customer_id"`
	Items          []order.LineItem `json:"items"`
	Shipping       order.Shipping   `json:"shipping"`
	IdempotencyKey string           `json:"idempotency_key"`
}

type CancelOrder struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// Inventory Commands
type Restock struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
	Quantity  int    `json:"quantity"`
}
