package handlers

import (
	"context"

	"golang-shop-backend/internal/models"
	"golang-shop-backend/internal/services"
)

// CheckoutServiceInterface defines what the checkout handler needs from the
// checkout service.
type CheckoutServiceInterface interface {
	Open(ctx context.Context, sessionID string) error
	SubmitShipping(ctx context.Context, sessionID string, info models.ShippingInfo) error
	Pay(ctx context.Context, sessionID string, method string) error
	Cancel(ctx context.Context, sessionID string) error
	Complete(ctx context.Context, sessionID string) error
	Status(ctx context.Context, sessionID string) services.CheckoutStatus
}
