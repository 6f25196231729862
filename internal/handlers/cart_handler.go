package handlers

import (
	"net/http"

	"golang-shop-backend/internal/models"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type CartHandler struct {
	cartService CartServiceInterface
}

func NewCartHandler(cartService CartServiceInterface) *CartHandler {
	return &CartHandler{
		cartService: cartService,
	}
}

// RegisterRoutes registers the routes for cart management
func (h *CartHandler) RegisterRoutes(router *gin.RouterGroup) {
	cart := router.Group("/cart")
	{
		// Get the session's cart with totals
		cart.GET("", h.GetCart)
		// Add item to cart
		cart.POST("/items", h.AddItem)
		// Update item quantity
		cart.PUT("/items/:item_id", h.UpdateQuantity)
		// Remove item from cart
		cart.DELETE("/items/:item_id", h.RemoveItem)
		// Clear cart
		cart.DELETE("", h.ClearCart)
		// Save item for later
		cart.POST("/items/:item_id/save", h.SaveForLater)
		// Move saved item back to cart
		cart.POST("/saved-items/:item_id/move", h.MoveToCart)
		// Remove saved item
		cart.DELETE("/saved-items/:item_id", h.RemoveSavedItem)
	}
}

type AddItemRequest struct {
	ID    string  `json:"id" binding:"required"`
	Name  string  `json:"name" binding:"required"`
	Price float64 `json:"price" binding:"min=0"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	Items        []models.CartItem `json:"items"`
	SavedItems   []models.CartItem `json:"savedItems"`
	CheckoutStep int               `json:"checkoutStep"`
	Subtotal     float64           `json:"subtotal"`
	Total        float64           `json:"total"`
	ItemCount    int               `json:"itemCount"`
}

// GetCart returns the session's cart state together with derived totals.
func (h *CartHandler) GetCart(c *gin.Context) {
	c.JSON(http.StatusOK, h.cartResponse(c))
}

// AddItem adds a product to the cart, or bumps its quantity when already
// present.
func (h *CartHandler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	store := h.cartService.Store(c.Request.Context(), sessionID(c))
	item := models.CartItem{ID: req.ID, Name: req.Name, Price: req.Price}
	if err := store.AddItem(c.Request.Context(), item); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to add item to cart",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.cartResponse(c))
}

// UpdateQuantity sets an item's quantity; zero or below removes the item.
func (h *CartHandler) UpdateQuantity(c *gin.Context) {
	var req UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	store := h.cartService.Store(c.Request.Context(), sessionID(c))
	if err := store.UpdateQuantity(c.Request.Context(), c.Param("item_id"), req.Quantity); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to update cart item",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.cartResponse(c))
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	store := h.cartService.Store(c.Request.Context(), sessionID(c))
	if err := store.RemoveItem(c.Request.Context(), c.Param("item_id")); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to remove item from cart",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.cartResponse(c))
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	store := h.cartService.Store(c.Request.Context(), sessionID(c))
	if err := store.ClearCart(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to clear cart",
			Message: err.Error(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *CartHandler) SaveForLater(c *gin.Context) {
	store := h.cartService.Store(c.Request.Context(), sessionID(c))
	if err := store.SaveForLater(c.Request.Context(), c.Param("item_id")); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to save item for later",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.cartResponse(c))
}

func (h *CartHandler) MoveToCart(c *gin.Context) {
	store := h.cartService.Store(c.Request.Context(), sessionID(c))
	if err := store.MoveToCart(c.Request.Context(), c.Param("item_id")); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to move item to cart",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.cartResponse(c))
}

func (h *CartHandler) RemoveSavedItem(c *gin.Context) {
	store := h.cartService.Store(c.Request.Context(), sessionID(c))
	if err := store.RemoveSavedItem(c.Request.Context(), c.Param("item_id")); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to remove saved item",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.cartResponse(c))
}

func (h *CartHandler) cartResponse(c *gin.Context) CartResponse {
	store := h.cartService.Store(c.Request.Context(), sessionID(c))
	state := store.State()
	return CartResponse{
		Items:        state.Items,
		SavedItems:   state.SavedItems,
		CheckoutStep: state.CheckoutStep,
		Subtotal:     store.Subtotal(),
		Total:        store.Total(),
		ItemCount:    store.ItemCount(),
	}
}

// sessionID reads the shopper session set by the session middleware.
func sessionID(c *gin.Context) string {
	if id, exists := c.Get("session_id"); exists {
		return id.(string)
	}
	return ""
}
