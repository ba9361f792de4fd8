package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/OriD-19/vendly-backend/internal/api/middleware"
	"github.com/OriD-19/vendly-backend/internal/auth"
	"github.com/OriD-19/vendly-backend/internal/command"
	"github.com/OriD-19/vendly-backend/internal/domain/order"
	"github.com/gin-gonic/gin"
)

const idempotencyHeader = "Idempotency-Key"

type createOrderRequest struct {
	Items    []order.LineItem `json:"items"`
	Shipping order.Shipping   `json:"shipping"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type restockRequest struct {
	StoreID  string `json:"store_id"`
	Quantity int    `json:"quantity"`
}

func claimsOf(c *gin.Context) *auth.Claims {
	claims, _ := middleware.GetClaims(c)
	return claims
}

// canSee reports whether the caller may read an order owned by customerID.
func canSee(claims *auth.Claims, customerID string) bool {
	return claims.IsAdmin() || claims.UserID == customerID
}

// sellsIn reports whether the order has a line from a store the caller manages.
func sellsIn(o *order.Order, claims *auth.Claims) bool {
	for _, item := range o.Items {
		if claims.CanManageStore(item.StoreID) {
			return true
		}
	}
	return false
}

// Order Handlers

func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	o, err := s.commands.CreateOrder(c.Request.Context(), command.CreateOrder{
		CustomerID:     middleware.GetUserID(c),
		Items:          req.Items,
		Shipping:       req.Shipping,
		IdempotencyKey: c.GetHeader(idempotencyHeader),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (s *Server) getOrder(c *gin.Context) {
	o, err := s.commands.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !canSee(claimsOf(c), o.CustomerID) {
		s.respondError(c, errForbidden)
		return
	}
	c.JSON(http.StatusOK, o)
}

// transitionOrder applies confirm, ship, deliver or cancel. Customers may
// only cancel their own orders; fulfilment events need an admin or staff of
// a store with a line in the order.
func (s *Server) transitionOrder(c *gin.Context) {
	ev, err := order.ParseEvent(c.Param("event"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	orderID := c.Param("id")
	claims := claimsOf(c)

	if ev == order.EventCancel {
		current, err := s.commands.GetOrder(ctx, orderID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		if !canSee(claims, current.CustomerID) {
			s.respondError(c, errForbidden)
			return
		}

		var req cancelRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				s.respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
				return
			}
		}
		o, err := s.commands.CancelOrder(ctx, command.CancelOrder{OrderID: orderID, Reason: req.Reason})
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
		return
	}

	switch claims.Role {
	case auth.RoleAdmin:
	case auth.RoleStore:
		current, err := s.commands.GetOrder(ctx, orderID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		if !sellsIn(current, claims) {
			s.respondError(c, errForbidden)
			return
		}
	default:
		s.respondError(c, errForbidden)
		return
	}
	o, err := s.commands.Transition(ctx, orderID, ev)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) listMyOrders(c *gin.Context) {
	skip, err := intQuery(c, "skip")
	if err != nil {
		s.respondError(c, err)
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		s.respondError(c, err)
		return
	}

	orders, err := s.queries.ListCustomerOrders(middleware.GetUserID(c), skip, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) getOrderByNumber(c *gin.Context) {
	o, err := s.queries.GetOrderByNumber(c.Param("number"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !canSee(claimsOf(c), o.CustomerID) {
		s.respondError(c, errForbidden)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) listAllOrders(c *gin.Context) {
	orders, err := s.queries.ListOrders(c.Query("status"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// Inventory Handlers

func (s *Server) getStock(c *gin.Context) {
	stock, err := s.commands.GetStock(c.Param("productID"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

func (s *Server) listInventory(c *gin.Context) {
	items, err := s.queries.ListInventory()
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// restock adds stock to a product. Store staff may only restock products of
// their own store; an existing entry keeps the store it was created with.
func (s *Server) restock(c *gin.Context) {
	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	claims := claimsOf(c)
	productID := c.Param("productID")
	storeID := req.StoreID
	if existing, err := s.commands.GetStock(productID); err == nil {
		storeID = existing.StoreID
	} else if storeID == "" && claims.Role == auth.RoleStore {
		storeID = claims.StoreID
	}
	if !claims.CanManageStore(storeID) {
		s.respondError(c, errForbidden)
		return
	}

	stock, err := s.commands.Restock(c.Request.Context(), command.Restock{
		ProductID: productID,
		StoreID:   storeID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

// Analytics

func (s *Server) storeAnalytics(c *gin.Context) {
	storeID := c.Param("storeID")
	if !claimsOf(c).CanManageStore(storeID) {
		s.respondError(c, errForbidden)
		return
	}

	dashboard, err := s.queries.Dashboard(storeID, c.Query("period"), s.now().UTC())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return n, nil
}
