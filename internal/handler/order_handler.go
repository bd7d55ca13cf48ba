package handler

import (
	"context"
	"net/http"

	"snackorder/internal/middleware"
	"snackorder/internal/model"
	"snackorder/internal/service"
	"snackorder/pkg/pagination"
	"snackorder/pkg/response"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// RegisterRoutes expects router to already run middleware.Authenticate.
func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/api/orders")
	{
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("", h.CreateOrder)
		orders.POST("/instant", h.CreateInstantOrder)
		orders.POST("/buy-now", middleware.RequireAdmin(), h.BuyNow)
		orders.POST("/:id/decision", middleware.RequireAdmin(), h.Decide)
		orders.POST("/:id/cancel", h.CancelOrder)
	}
}

type createFunc func(ctx context.Context, identity model.Identity, req service.CreateOrderRequest) (*model.Order, error)

// CreateOrder raises a purchase request from selected cart lines
// @Summary      Create order request
// @Description  Snapshots the selected cart lines into a PENDING order awaiting admin approval
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateOrderRequest  true  "Cart selection"
// @Success      201      {object}  response.Response{data=model.Order}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	h.create(c, h.orderService.CreateOrder)
}

// CreateInstantOrder creates an order that will be paid online
// @Summary      Create instant order
// @Description  Snapshots the selected cart lines into a PENDING INSTANT order; confirm it with /api/payments/confirm
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateOrderRequest  true  "Cart selection"
// @Success      201      {object}  response.Response{data=model.Order}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/orders/instant [post]
func (h *OrderHandler) CreateInstantOrder(c *gin.Context) {
	h.create(c, h.orderService.CreateInstantOrder)
}

// BuyNow creates and approves an order against the company budget
// @Summary      Buy now
// @Description  Admin only. Creates an INSTANT order and approves it in one step
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateOrderRequest  true  "Cart selection"
// @Success      201      {object}  response.Response{data=model.Order}
// @Failure      422      {object}  response.Response
// @Router       /api/orders/buy-now [post]
func (h *OrderHandler) BuyNow(c *gin.Context) {
	h.create(c, h.orderService.BuyNow)
}

func (h *OrderHandler) create(c *gin.Context, fn createFunc) {
	caller, ok := identity(c)
	if !ok {
		return
	}

	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	order, err := fn(c.Request.Context(), caller, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}

// Decide approves or rejects a pending order
// @Summary      Approve or reject order
// @Description  Admin only. Approval debits the current month's company budget
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                   true  "Order ID"
// @Param        payload  body      service.DecisionRequest  true  "Decision"
// @Success      200      {object}  response.Response{data=model.Order}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/orders/{id}/decision [post]
func (h *OrderHandler) Decide(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req service.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	order, err := h.orderService.ApproveOrReject(c.Request.Context(), caller, orderID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// CancelOrder withdraws the caller's pending order
// @Summary      Cancel order
// @Description  Cancels the caller's own PENDING order and restores the cart lines it consumed
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=model.Order}
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/orders/{id}/cancel [post]
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.CancelOrder(c.Request.Context(), caller, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// GetOrder returns one order with its items
// @Summary      Get order
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=model.Order}
// @Failure      404  {object}  response.Response
// @Router       /api/orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), caller, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// ListOrders lists orders visible to the caller
// @Summary      List orders
// @Description  Admins see every order of their company, other users only their own
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "PENDING, APPROVED, REJECTED or CANCELED"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), caller, service.ListOrdersQuery{
		Status: c.Query("status"),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page{
		Items: orders,
		Total: total,
		Page:  p.Page,
		Limit: p.Limit,
	}))
}
