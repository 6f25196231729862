package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, j)
}

// Checkout steps
const (
	StepCart         = 0
	StepShipping     = 1
	StepPayment      = 2
	StepConfirmation = 3
)

// Payment methods
const (
	PaymentMethodMpesa = "mpesa"
	PaymentMethodCard  = "card"
)

// Payment session statuses
const (
	PaymentPending    = "pending"
	PaymentProcessing = "processing"
	PaymentCompleted  = "completed"
	PaymentFailed     = "failed"
)

// CartItem is a single line in the cart. Quantity is never below 1 while
// the item remains in the cart; dropping below 1 removes it.
type CartItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// CartState is the full persisted cart record. Item IDs are unique within
// Items and SavedItems, and the two lists never share an ID.
type CartState struct {
	Items        []CartItem `json:"items"`
	SavedItems   []CartItem `json:"savedItems"`
	CheckoutStep int        `json:"checkoutStep"`
}

// ShippingInfo lives only for the duration of one checkout session and is
// never persisted with the cart.
type ShippingInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	City    string `json:"city"`
	Phone   string `json:"phone"`
}

// PaymentSession tracks the in-flight payment of one checkout session.
type PaymentSession struct {
	Method            string `json:"method"`
	Status            string `json:"status"`
	CheckoutRequestID string `json:"checkout_request_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Order model - PostgreSQL record of a confirmed checkout
type Order struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SessionID     string    `gorm:"not null;index" json:"session_id"`
	CustomerName  string    `gorm:"not null" json:"customer_name"`
	CustomerEmail string    `gorm:"not null" json:"customer_email"`
	Address       string    `json:"address"`
	City          string    `json:"city"`
	Phone         string    `json:"phone"`
	Items         JSONB     `gorm:"type:jsonb" json:"items"`
	Subtotal      float64   `json:"subtotal"`
	ShippingFee   float64   `json:"shipping_fee"`
	TotalAmount   float64   `json:"total_amount"`
	PaymentMethod string    `json:"payment_method"`
	PaymentRef    string    `json:"payment_ref"` // gateway checkout request ID, empty for card
	Status        string    `gorm:"default:confirmed" json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}
