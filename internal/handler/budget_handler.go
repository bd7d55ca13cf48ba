package handler

import (
	"net/http"
	"strconv"

	"snackorder/internal/apperror"
	"snackorder/internal/service"
	"snackorder/pkg/response"

	"github.com/gin-gonic/gin"
)

type BudgetHandler struct {
	budgetService service.BudgetService
}

func NewBudgetHandler(budgetService service.BudgetService) *BudgetHandler {
	return &BudgetHandler{budgetService: budgetService}
}

func (h *BudgetHandler) RegisterRoutes(router *gin.RouterGroup) {
	budgets := router.Group("/api/budgets")
	{
		budgets.GET("/current", h.GetCurrent)
		budgets.GET("/:year/:month", h.GetPeriod)
	}
}

// GetCurrent returns the company's budget for the current month
// @Summary      Current budget
// @Tags         budgets
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.BudgetResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/budgets/current [get]
func (h *BudgetHandler) GetCurrent(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}

	b, err := h.budgetService.GetCurrent(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, b))
}

// GetPeriod returns the company's budget for one month
// @Summary      Budget for a month
// @Tags         budgets
// @Security     BearerAuth
// @Produce      json
// @Param        year   path      int  true  "Year"
// @Param        month  path      int  true  "Month (1-12)"
// @Success      200    {object}  response.Response{data=service.BudgetResponse}
// @Failure      400    {object}  response.Response
// @Failure      404    {object}  response.Response
// @Router       /api/budgets/{year}/{month} [get]
func (h *BudgetHandler) GetPeriod(c *gin.Context) {
	caller, ok := identity(c)
	if !ok {
		return
	}

	year, errY := strconv.Atoi(c.Param("year"))
	month, errM := strconv.Atoi(c.Param("month"))
	if errY != nil || errM != nil || month < 1 || month > 12 {
		c.JSON(http.StatusBadRequest, response.Failure(http.StatusBadRequest, string(apperror.KindInvalidInput), "Invalid budget period"))
		return
	}

	b, err := h.budgetService.GetPeriod(c.Request.Context(), caller, year, month)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, b))
}
