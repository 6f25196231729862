package handlers

import (
	"net/http"

	"golang-shop-backend/internal/models"

	"github.com/gin-gonic/gin"
)

type CheckoutHandler struct {
	checkoutService CheckoutServiceInterface
}

func NewCheckoutHandler(checkoutService CheckoutServiceInterface) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
	}
}

// RegisterRoutes registers the routes for the checkout flow
func (h *CheckoutHandler) RegisterRoutes(router *gin.RouterGroup) {
	checkout := router.Group("/checkout")
	{
		// Open checkout (moves to the shipping step)
		checkout.POST("", h.Open)
		// Current checkout state
		checkout.GET("", h.Status)
		// Submit shipping details (moves to the payment step)
		checkout.POST("/shipping", h.SubmitShipping)
		// Start payment
		checkout.POST("/payment", h.Pay)
		// Acknowledge confirmation and clear the cart
		checkout.POST("/complete", h.Complete)
		// Cancel checkout from any step
		checkout.DELETE("", h.Cancel)
	}
}

type ShippingRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Address string `json:"address" binding:"required"`
	City    string `json:"city" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
}

type PaymentRequest struct {
	Method string `json:"method" binding:"required,oneof=mpesa card"`
}

// Open starts a checkout session for the shopper's cart.
func (h *CheckoutHandler) Open(c *gin.Context) {
	if err := h.checkoutService.Open(c.Request.Context(), sessionID(c)); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Failed to open checkout",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.checkoutService.Status(c.Request.Context(), sessionID(c)))
}

// Status returns the checkout step and payment state for the session.
func (h *CheckoutHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.checkoutService.Status(c.Request.Context(), sessionID(c)))
}

// SubmitShipping validates the shipping form and advances to payment.
func (h *CheckoutHandler) SubmitShipping(c *gin.Context) {
	var req ShippingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	info := models.ShippingInfo{
		Name:    req.Name,
		Email:   req.Email,
		Address: req.Address,
		City:    req.City,
		Phone:   req.Phone,
	}

	if err := h.checkoutService.SubmitShipping(c.Request.Context(), sessionID(c), info); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid shipping details",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.checkoutService.Status(c.Request.Context(), sessionID(c)))
}

// Pay starts the payment. The response reflects the processing state; the
// client follows up with Status while the gateway confirms.
func (h *CheckoutHandler) Pay(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	if err := h.checkoutService.Pay(c.Request.Context(), sessionID(c), req.Method); err != nil {
		c.JSON(http.StatusPaymentRequired, ErrorResponse{
			Error:   "Payment failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, h.checkoutService.Status(c.Request.Context(), sessionID(c)))
}

// Complete acknowledges the confirmation screen; the cart is cleared.
func (h *CheckoutHandler) Complete(c *gin.Context) {
	if err := h.checkoutService.Complete(c.Request.Context(), sessionID(c)); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Failed to complete checkout",
			Message: err.Error(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// Cancel closes the checkout without touching the cart contents.
func (h *CheckoutHandler) Cancel(c *gin.Context) {
	if err := h.checkoutService.Cancel(c.Request.Context(), sessionID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to cancel checkout",
			Message: err.Error(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}
