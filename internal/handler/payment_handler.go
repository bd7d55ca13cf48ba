package handler

import (
	"net/http"

	"snackorder/internal/service"
	"snackorder/pkg/response"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

func (h *PaymentHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/api/payments/confirm", h.ConfirmPayment)
}

// ConfirmPayment captures an online payment for an INSTANT order
// @Summary      Confirm payment
// @Description  Confirms the payment with the provider and approves the order. A failed capture removes the order and restores the cart
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ConfirmPaymentRequest  true  "Payment confirmation"
// @Success      200      {object}  response.Response{data=model.Payment}
// @Failure      400      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /api/payments/confirm [post]
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}

	var req service.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	p, err := h.paymentService.ConfirmOrderPayment(c.Request.Context(), caller, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p))
}
