package repositories

import (
	"context"
	"golang-shop-backend/internal/models"

	"github.com/google/uuid"
)

// OrderRepository interface for PostgreSQL order operations
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]models.Order, error)
}
