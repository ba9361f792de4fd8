package query

import (
	"errors"
	"fmt"
	"sort"

	"github.com/OriD-19/vendly-backend/internal/domain/inventory"
	"github.com/OriD-19/vendly-backend/internal/domain/order"
	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
	"github.com/OriD-19/vendly-backend/internal/readmodel"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 100
	MaxLimit     = 100
)

var ErrInvalidStatus = errors.New("invalid order status")

// Handler answers reads from the projected read models. Results lag the
// write side by the projection delay.
type Handler struct {
	readStore store.ReadStoreInterface
	logger    *zap.Logger
}

func NewHandler(readStore store.ReadStoreInterface, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{readStore: readStore, logger: logger.Named("query")}
}

// Orders
func (h *Handler) GetOrder(id string) (*readmodel.OrderReadModel, error) {
	data, ok, err := h.readStore.Get(readmodel.CollectionOrders, id)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", order.ErrOrderNotFound, id)
	}
	return data.(*readmodel.OrderReadModel), nil
}

func (h *Handler) GetOrderByNumber(number string) (*readmodel.OrderReadModel, error) {
	orders, err := h.allOrders()
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		if o.Number == number {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: number %s", order.ErrOrderNotFound, number)
}

// ListCustomerOrders returns a page of the customer's orders, newest first.
// A non-positive limit means DefaultLimit; larger limits are capped.
func (h *Handler) ListCustomerOrders(customerID string, skip, limit int) ([]*readmodel.OrderReadModel, error) {
	orders, err := h.allOrders()
	if err != nil {
		return nil, err
	}
	mine := make([]*readmodel.OrderReadModel, 0)
	for _, o := range orders {
		if o.CustomerID == customerID {
			mine = append(mine, o)
		}
	}
	sortNewestFirst(mine)
	return page(mine, skip, limit), nil
}

// ListOrders returns every order, newest first, optionally only those in
// status. An empty status lists all.
func (h *Handler) ListOrders(status string) ([]*readmodel.OrderReadModel, error) {
	if status != "" && !validStatus(order.Status(status)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	orders, err := h.allOrders()
	if err != nil {
		return nil, err
	}
	out := make([]*readmodel.OrderReadModel, 0, len(orders))
	for _, o := range orders {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// Inventory
func (h *Handler) GetInventory(productID string) (*readmodel.InventoryReadModel, error) {
	data, ok, err := h.readStore.Get(readmodel.CollectionInventory, productID)
	if err != nil {
		return nil, fmt.Errorf("get inventory %s: %w", productID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", inventory.ErrProductNotFound, productID)
	}
	return data.(*readmodel.InventoryReadModel), nil
}

// ListInventory returns every projected stock entry ordered by product id.
func (h *Handler) ListInventory() ([]*readmodel.InventoryReadModel, error) {
	items, err := h.readStore.GetAll(readmodel.CollectionInventory)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	out := make([]*readmodel.InventoryReadModel, 0, len(items))
	for _, item := range items {
		out = append(out, item.(*readmodel.InventoryReadModel))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (h *Handler) allOrders() ([]*readmodel.OrderReadModel, error) {
	items, err := h.readStore.GetAll(readmodel.CollectionOrders)
	if err != nil {
		h.logger.Error("listing orders failed", zap.Error(err))
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders := make([]*readmodel.OrderReadModel, 0, len(items))
	for _, item := range items {
		orders = append(orders, item.(*readmodel.OrderReadModel))
	}
	return orders, nil
}

func validStatus(s order.Status) bool {
	switch s {
	case order.StatusPending, order.StatusConfirmed, order.StatusShipped,
		order.StatusDelivered, order.StatusCancelled:
		return true
	}
	return false
}

func sortNewestFirst(orders []*readmodel.OrderReadModel) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func page[T any](items []T, skip, limit int) []T {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	end := skip + limit
	if end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}
