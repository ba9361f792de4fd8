package inventory

import "time"

const EventStockAdded = "StockAdded"

// StockAdded is journaled before a restock becomes visible.
type StockAdded struct {
	ProductID string    `json:"product_id"`
	StoreID   string    `json:"store_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// orderLines decodes the line items carried by order events.
type orderLines struct {
	Items []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}
