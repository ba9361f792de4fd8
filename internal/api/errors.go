package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/OriD-19/vendly-backend/internal/command"
	"github.com/OriD-19/vendly-backend/internal/domain/inventory"
	"github.com/OriD-19/vendly-backend/internal/domain/order"
	"github.com/OriD-19/vendly-backend/internal/domain/reservation"
	"github.com/OriD-19/vendly-backend/internal/infrastructure/store"
	"github.com/OriD-19/vendly-backend/internal/query"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errForbidden  = errors.New("forbidden")
	errBadRequest = errors.New("bad request")
)

func mapErrorToStatus(err error) int {
	var stockErr *reservation.InsufficientStockError
	var transitionErr *order.TransitionError

	switch {
	case errors.As(err, &stockErr), errors.As(err, &transitionErr),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, store.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidLineItem),
		errors.Is(err, order.ErrUnknownEvent),
		errors.Is(err, command.ErrMissingCustomer),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, query.ErrInvalidStatus),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, inventory.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body. Conflicts carry the fields a client
// needs to react: the short product, or the order's status and the event.
func (s *Server) respondError(c *gin.Context, err error) {
	status := mapErrorToStatus(err)
	body := gin.H{"error": err.Error()}

	var stockErr *reservation.InsufficientStockError
	var transitionErr *order.TransitionError
	switch {
	case errors.As(err, &stockErr):
		body["product_id"] = stockErr.ProductID
		body["requested"] = stockErr.Requested
		body["available"] = stockErr.Available
	case errors.As(err, &transitionErr):
		body["status"] = transitionErr.Status
		body["event"] = transitionErr.Event
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request error", zap.String("path", c.FullPath()), zap.Error(err))
		body["error"] = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}
