package handlers

import (
	"net/http"
	"strconv"

	"golang-shop-backend/internal/repositories"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	orderRepo repositories.OrderRepository
}

func NewOrderHandler(orderRepo repositories.OrderRepository) *OrderHandler {
	return &OrderHandler{
		orderRepo: orderRepo,
	}
}

// RegisterRoutes registers the routes for order history
func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/orders")
	{
		orders.GET("", h.ListOrders)
	}
}

// ListOrders returns the session's confirmed orders, newest first.
func (h *OrderHandler) ListOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	orders, err := h.orderRepo.GetBySessionID(c.Request.Context(), sessionID(c), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list orders",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}
