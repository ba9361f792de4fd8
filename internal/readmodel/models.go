package readmodel

import (
	"encoding/json"
	"fmt"
	"time"
)

// Collections served by the read store
const (
	CollectionOrders    = "orders"
	CollectionInventory = "inventory"
)

// OrderItemReadModel is one line of an order as shown to clients
type OrderItemReadModel struct {
	ProductID string `json:"product_id"`
	StoreID   string `json:"store_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int    `json:"unit_price"`
}

// Subtotal returns quantity × unit price
func (i OrderItemReadModel) Subtotal() int {
	return i.Quantity * i.UnitPrice
}

// ShippingReadModel is the shipping destination of an order
type ShippingReadModel struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// OrderReadModel is the read model for orders
type OrderReadModel struct {
	ID           string               `json:"id"`
	Number       string               `json:"number"`
	CustomerID   string               `json:"customer_id"`
	Items        []OrderItemReadModel `json:"items"`
	Total        int                  `json:"total"`
	Status       string               `json:"status"`
	Shipping     ShippingReadModel    `json:"shipping"`
	CancelReason string               `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	ShippedAt    *time.Time           `json:"shipped_at,omitempty"`
	DeliveredAt  *time.Time           `json:"delivered_at,omitempty"`
	CancelledAt  *time.Time           `json:"cancelled_at,omitempty"`
	Version      int                  `json:"version"`
}

// InventoryReadModel is the read model for a product's stock entry
type InventoryReadModel struct {
	ProductID string    `json:"product_id"`
	StoreID   string    `json:"store_id"`
	Available int       `json:"available"`
	Reserved  int       `json:"reserved"`
	Version   int       `json:"version"` // last StockAdded version applied
	UpdatedAt time.Time `json:"updated_at"`
}

// Decode turns the stored JSON of a collection back into its read model.
func Decode(collection string, data []byte) (any, error) {
	switch collection {
	case CollectionOrders:
		var o OrderReadModel
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		return &o, nil
	case CollectionInventory:
		var inv InventoryReadModel
		if err := json.Unmarshal(data, &inv); err != nil {
			return nil, err
		}
		return &inv, nil
	}
	return nil, fmt.Errorf("unknown collection %q", collection)
}
