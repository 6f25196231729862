package handlers

import (
	"context"

	"golang-shop-backend/internal/services"
)

// CartServiceInterface defines what the cart handler needs from the cart
// service.
type CartServiceInterface interface {
	Store(ctx context.Context, sessionID string) *services.CartStore
}
