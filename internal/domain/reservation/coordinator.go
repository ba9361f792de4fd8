package reservation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/OriD-19/vendly-backend/internal/domain/inventory"
	"github.com/OriD-19/vendly-backend/internal/domain/order"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ErrEmptyOrder is order.ErrEmptyOrder so callers match one sentinel.
var ErrEmptyOrder = order.ErrEmptyOrder

// Claim asks for quantity units of one product.
type Claim struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Reservation is the set of claims one order attempt holds, sorted by
// product id with duplicates merged.
type Reservation struct {
	AttemptID string
	Claims    []Claim
}

// InsufficientStockError names the first product that could not be claimed.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return inventory.ErrInsufficientStock
}

// Ledger is the part of inventory.Ledger the coordinator drives.
type Ledger interface {
	TryReserve(productID string, qty int) error
	Release(productID string, qty int) error
	Commit(productID string, qty int) error
	Get(productID string) (inventory.Stock, error)
}

// Coordinator claims stock for all lines of an order or for none.
type Coordinator struct {
	ledger Ledger
	logger *zap.Logger
}

func NewCoordinator(ledger Ledger, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{ledger: ledger, logger: logger.Named("reservation")}
}

// Coalesce merges claims on the same product and sorts them by product id.
func Coalesce(claims []Claim) []Claim {
	merged := make(map[string]int, len(claims))
	for _, c := range claims {
		merged[c.ProductID] += c.Quantity
	}
	out := make([]Claim, 0, len(merged))
	for id, qty := range merged {
		out = append(out, Claim{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// ClaimsOf turns order lines into coalesced claims.
func ClaimsOf(items []order.LineItem) []Claim {
	claims := make([]Claim, 0, len(items))
	for _, item := range items {
		claims = append(claims, Claim{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return Coalesce(claims)
}

// Reserve claims every line in ascending product id order. On the first
// failure all claims already taken are released in reverse order.
// ctx is only used for tracing; once claiming starts it runs to the end.
func (c *Coordinator) Reserve(ctx context.Context, attemptID string, claims []Claim) (*Reservation, error) {
	if len(claims) == 0 {
		return nil, ErrEmptyOrder
	}

	_, span := otel.Tracer("reservation").Start(ctx, "Coordinator.Reserve")
	defer span.End()

	sorted := Coalesce(claims)
	span.SetAttributes(
		attribute.String("attempt.id", attemptID),
		attribute.Int("claims.count", len(sorted)),
	)

	for i, claim := range sorted {
		err := c.ledger.TryReserve(claim.ProductID, claim.Quantity)
		if err == nil {
			continue
		}

		c.unwind(attemptID, sorted[:i])
		if errors.Is(err, inventory.ErrInsufficientStock) {
			available := 0
			if stock, getErr := c.ledger.Get(claim.ProductID); getErr == nil {
				available = stock.Available
			}
			err = &InsufficientStockError{
				ProductID: claim.ProductID,
				Requested: claim.Quantity,
				Available: available,
			}
		} else {
			err = fmt.Errorf("reserve %s: %w", claim.ProductID, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &Reservation{AttemptID: attemptID, Claims: sorted}, nil
}

func (c *Coordinator) unwind(attemptID string, taken []Claim) {
	for i := len(taken) - 1; i >= 0; i-- {
		if err := c.ledger.Release(taken[i].ProductID, taken[i].Quantity); err != nil {
			// Only reachable if someone else released our claim.
			c.logger.Error("failed to unwind claim",
				zap.String("attempt_id", attemptID),
				zap.String("product_id", taken[i].ProductID),
				zap.Int("quantity", taken[i].Quantity),
				zap.Error(err))
		}
	}
}

// Release returns every claim of res to available stock.
func (c *Coordinator) Release(res *Reservation) error {
	return c.each(res, c.ledger.Release)
}

// Commit consumes every claim of res.
func (c *Coordinator) Commit(res *Reservation) error {
	return c.each(res, c.ledger.Commit)
}

func (c *Coordinator) each(res *Reservation, op func(string, int) error) error {
	var errs []error
	for _, claim := range res.Claims {
		if err := op(claim.ProductID, claim.Quantity); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", claim.ProductID, err))
		}
	}
	return errors.Join(errs...)
}
