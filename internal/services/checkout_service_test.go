package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang-shop-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock implementations

type mockGateway struct {
	mu              sync.Mutex
	InitiateFunc    func(ctx context.Context, phone string, amount float64) (*STKPushResponse, error)
	CheckStatusFunc func(ctx context.Context, checkoutRequestID string) (*PaymentStatusResponse, error)
	initiateCalls   int
	statusCalls     int
}

func (m *mockGateway) InitiateSTKPush(ctx context.Context, phone string, amount float64) (*STKPushResponse, error) {
	m.mu.Lock()
	m.initiateCalls++
	m.mu.Unlock()
	return m.InitiateFunc(ctx, phone, amount)
}

func (m *mockGateway) CheckStatus(ctx context.Context, checkoutRequestID string) (*PaymentStatusResponse, error) {
	m.mu.Lock()
	m.statusCalls++
	m.mu.Unlock()
	return m.CheckStatusFunc(ctx, checkoutRequestID)
}

func (m *mockGateway) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}

type mockEmailSender struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (m *mockEmailSender) SendOrderConfirmation(ctx context.Context, orderDetails interface{}, userEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "order:"+userEmail)
	if m.fail {
		return errors.New("email API unavailable")
	}
	return nil
}

func (m *mockEmailSender) SendPaymentConfirmation(ctx context.Context, paymentDetails interface{}, userEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "payment:"+userEmail)
	if m.fail {
		return errors.New("email API unavailable")
	}
	return nil
}

func (m *mockEmailSender) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]string, len(m.calls))
	copy(calls, m.calls)
	return calls
}

type mockOrderRepo struct {
	mu     sync.Mutex
	orders []*models.Order
}

func (m *mockOrderRepo) Create(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, order)
	return nil
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return nil, errors.New("not found")
}

func (m *mockOrderRepo) GetBySessionID(ctx context.Context, sessionID string, limit, offset int) ([]models.Order, error) {
	return nil, nil
}

func (m *mockOrderRepo) Orders() []*models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make([]*models.Order, len(m.orders))
	copy(orders, m.orders)
	return orders
}

type mockPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (m *mockPublisher) SendMessage(topic string, brokers []string, key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
	return nil
}

func (m *mockPublisher) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, len(m.topics))
	copy(topics, m.topics)
	return topics
}

// newTestCheckoutService builds a CheckoutService with fast timings: 10ms
// poll interval, 2s poll budget, 20ms card delay.
func newTestCheckoutService(
	cartService *CartService,
	gateway *mockGateway,
	emails *mockEmailSender,
	orderRepo *mockOrderRepo,
	publisher *mockPublisher,
) *CheckoutService {
	return NewCheckoutService(
		cartService,
		gateway,
		emails,
		orderRepo,
		publisher,
		[]string{"localhost:9092"},
		10*time.Millisecond,
		2*time.Second,
		20*time.Millisecond,
	)
}

func validShipping() models.ShippingInfo {
	return models.ShippingInfo{
		Name:    "Jane Wanjiku",
		Email:   "jane@example.com",
		Address: "Moi Avenue 12",
		City:    "Nairobi",
		Phone:   "0712345678",
	}
}

func seedCart(t *testing.T, cartService *CartService, sessionID string) *CartStore {
	t.Helper()
	ctx := context.Background()
	store := cartService.Store(ctx, sessionID)
	require.NoError(t, store.AddItem(ctx, models.CartItem{ID: "p1", Name: "Phone", Price: 1000}))
	require.NoError(t, store.UpdateQuantity(ctx, "p1", 2))
	return store
}

func pendingThenCompleted() func(ctx context.Context, checkoutRequestID string) (*PaymentStatusResponse, error) {
	var mu sync.Mutex
	calls := 0
	return func(ctx context.Context, checkoutRequestID string) (*PaymentStatusResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return &PaymentStatusResponse{Status: MpesaStatusPending}, nil
		}
		return &PaymentStatusResponse{Status: MpesaStatusCompleted, Message: "Paid"}, nil
	}
}

func TestCheckout_MpesaHappyPath(t *testing.T) {
	ctx := context.Background()
	cartService := NewCartService(newMemoryStorage())
	store := seedCart(t, cartService, "session-1")

	var gotPhone string
	var gotAmount float64
	gateway := &mockGateway{
		InitiateFunc: func(ctx context.Context, phone string, amount float64) (*STKPushResponse, error) {
			gotPhone = phone
			gotAmount = amount
			return &STKPushResponse{CheckoutRequestID: "X", MerchantRequestID: "M"}, nil
		},
		CheckStatusFunc: pendingThenCompleted(),
	}
	emails := &mockEmailSender{}
	orderRepo := &mockOrderRepo{}
	publisher := &mockPublisher{}
	checkout := newTestCheckoutService(cartService, gateway, emails, orderRepo, publisher)

	assert.Equal(t, 2000.0, store.Subtotal())
	assert.Equal(t, 2500.0, store.Total())

	require.NoError(t, checkout.Open(ctx, "session-1"))
	assert.Equal(t, models.StepShipping, store.CheckoutStep())

	require.NoError(t, checkout.SubmitShipping(ctx, "session-1", validShipping()))
	assert.Equal(t, models.StepPayment, store.CheckoutStep())

	status := checkout.Status(ctx, "session-1")
	require.NotNil(t, status.Payment)
	assert.Equal(t, models.PaymentPending, status.Payment.Status)

	require.NoError(t, checkout.Pay(ctx, "session-1", models.PaymentMethodMpesa))
	assert.Equal(t, "0712345678", gotPhone)
	assert.Equal(t, 2500.0, gotAmount)

	require.Eventually(t, func() bool {
		return store.CheckoutStep() == models.StepConfirmation
	}, time.Second, 5*time.Millisecond)

	status = checkout.Status(ctx, "session-1")
	require.NotNil(t, status.Payment)
	assert.Equal(t, models.PaymentCompleted, status.Payment.Status)
	assert.Equal(t, "X", status.Payment.CheckoutRequestID)

	// Order confirmation before payment confirmation, each exactly once.
	assert.Equal(t, []string{"order:jane@example.com", "payment:jane@example.com"}, emails.Calls())

	orders := orderRepo.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "session-1", orders[0].SessionID)
	assert.Equal(t, 2500.0, orders[0].TotalAmount)
	assert.Equal(t, ShippingFee, orders[0].ShippingFee)
	assert.Equal(t, models.PaymentMethodMpesa, orders[0].PaymentMethod)
	assert.Equal(t, "X", orders[0].PaymentRef)

	assert.Equal(t, []string{"order_events", "payment_events"}, publisher.Topics())

	// Acknowledging the confirmation clears the cart and closes checkout.
	require.NoError(t, checkout.Complete(ctx, "session-1"))
	assert.Empty(t, store.State().Items)
	assert.Equal(t, models.StepCart, store.CheckoutStep())
	assert.False(t, checkout.Status(ctx, "session-1").Open)
}

func TestCheckout_OpenRequiresItems(t *testing.T) {
	ctx := context.Background()
	cartService := NewCartService(newMemoryStorage())
	checkout := newTestCheckoutService(cartService, &mockGateway{}, &mockEmailSender{}, &mockOrderRepo{}, &mockPublisher{})

	err := checkout.Open(ctx, "session-1")
	require.Error(t, err)
	assert.Equal(t, "cart is empty", err.Error())
}

func TestCheckout_ShippingValidation(t *testing.T) {
	ctx := context.Background()
	cartService := NewCartService(newMemoryStorage())
	store := seedCart(t, cartService, "session-1")
	checkout := newTestCheckoutService(cartService, &mockGateway{}, &mockEmailSender{}, &mockOrderRepo{}, &mockPublisher{})

	require.NoError(t, checkout.Open(ctx, "session-1"))

	missing := validShipping()
	missing.City = "  "
	require.Error(t, checkout.SubmitShipping(ctx, "session-1", missing))

	badPhone := validShipping()
	badPhone.Phone = "254712345678"
	require.Error(t, checkout.SubmitShipping(ctx, "session-1", badPhone))

	// Rejected submissions leave the checkout at the shipping step.
	assert.Equal(t, models.StepShipping, store.CheckoutStep())

	require.NoError(t, checkout.SubmitShipping(ctx, "session-1", validShipping()))
	assert.Equal(t, models.StepPayment, store.CheckoutStep())
}

func TestCheckout_InitiateFailureAllowsRetry(t *testing.T) {
	ctx := context.Background()
	cartService := NewCartService(newMemoryStorage())
	store := seedCart(t, cartService, "session-1")

	gateway := &mockGateway{
		InitiateFunc: func(ctx context.Context, phone string, amount float64) (*STKPushResponse, error) {
			return nil, errors.New("gateway unreachable")
		},
	}
	emails := &mockEmailSender{}
	checkout := newTestCheckoutService(cartService, gateway, emails, &mockOrderRepo{}, &mockPublisher{})

	require.NoError(t, checkout.Open(ctx, "session-1"))
	require.NoError(t, checkout.SubmitShipping(ctx, "session-1", validShipping()))

	require.Error(t, checkout.Pay(ctx, "session-1", models.PaymentMethodMpesa))

	status := checkout.Status(ctx, "session-1")
	require.NotNil(t, status.Payment)
	assert.Equal(t, models.PaymentFailed, status.Payment.Status)
	assert.NotEmpty(t, status.Payment.Error)
	assert.Equal(t, models.StepPayment, store.CheckoutStep(), "failure keeps the user at the payment step")

	// The gateway recovers; the same session can retry.
	gateway.InitiateFunc = func(ctx context.Context, phone string, amount float64) (*STKPushResponse, error) {
		return &STKPushResponse{CheckoutRequestID: "X2"}, nil
	}
	gateway.CheckStatusFunc = func(ctx context.Context, checkoutRequestID string) (*PaymentStatusResponse, error) {
		return &PaymentStatusResponse{Status: MpesaStatusCompleted}, nil
	}

	require.NoError(t, checkout.Pay(ctx, "session-1", models.PaymentMethodMpesa))
	require.Eventually(t, func() bool {
		return store.CheckoutStep() == models.StepConfirmation
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"order:jane@example.com", "payment:jane@example.com"}, emails.Calls())
}

func TestCheckout_GatewayFailureStopsPolling(t *testing.T) {
	ctx := context.Background()
	cartService := NewCartService(newMemoryStorage())
	store := seedCart(t, cartService, "session-1")

	gateway := &mockGateway{
		InitiateFunc: func(ctx context.Context, phone string, amount float64) (*STKPushResponse, error) {
			return &STKPushResponse{CheckoutRequestID: "X"}, nil
		},
		CheckStatusFunc: func(ctx context.Context, checkoutRequestID string) (*PaymentStatusResponse, error) {
			return &PaymentStatusResponse{Status: MpesaStatusFailed, Message: "Cancelled by user"}, nil
		},
	}
	emails := &mockEmailSender{}
	orderRepo := &mockOrderRepo{}
	checkout := newTestCheckoutService(cartService, gateway, emails, orderRepo, &mockPublisher{})

	require.NoError(t, checkout.Open(ctx, "session-1"))
	require.NoError(t, checkout.SubmitShipping(ctx, "session-1", validShipping()))
	require.NoError(t, checkout.Pay(ctx, "session-1", models.PaymentMethodMpesa))

	require.Eventually(t, func() bool {
		status := checkout.Status(ctx, "session-1")
		return status.Payment != nil && status.Payment.Status == models.PaymentFailed
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, models.StepPayment, store.CheckoutStep())
	assert.Empty(t, emails.Calls())
	assert.Empty(t, orderRepo.Orders())
}

func TestCheckout_CancelMidPollSuppressesLateResult(t *testing.T) {
	ctx := context.Background()
	cartService := NewCartService(newMemoryStorage())
	store := seedCart(t, cartService, "session-1")

	gateway := &mockGateway{
		InitiateFunc: func(ctx context.Context, phone string, amount float64) (*STKPushResponse, error) {
			return &STKPushResponse{CheckoutRequestID: "X"}, nil
		},
		CheckStatusFunc: func(ctx context.Context, checkoutRequestID string) (*PaymentStatusResponse, error) {
			return &PaymentStatusResponse{Status: MpesaStatusPending}, nil
		},
	}
	emails := &mockEmailSender{}
	orderRepo := &mockOrderRepo{}
	checkout := newTestCheckoutService(cartService, gateway, emails, orderRepo, &mockPublisher{})

	require.NoError(t, checkout.Open(ctx, "session-1"))
	require.NoError(t, checkout.SubmitShipping(ctx, "session-1", validShipping()))
	require.NoError(t, checkout.Pay(ctx, "session-1", models.PaymentMethodMpesa))

	// Let the poll loop run at least once, then close the dialog.
	require.Eventually(t, func() bool {
		return gateway.StatusCalls() >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, checkout.Cancel(ctx, "session-1"))
	assert.Equal(t, models.StepCart, store.CheckoutStep())
	assert.NotEmpty(t, store.State().Items, "cancel keeps the cart contents")

	// Nothing that resolves after the cancel may move the step again.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, models.StepCart, store.CheckoutStep())
	assert.Empty(t, emails.Calls())
	assert.Empty(t, orderRepo.Orders())
	assert.False(t, checkout.Status(ctx, "session-1").Open)
}

func TestCheckout_PollTimeoutFailsPayment(t *testing.T) {
	ctx := context.Background()
	cartService := NewCartService(newMemoryStorage())
	store := seedCart(t, cartService, "session-1")

	gateway := &mockGateway{
		InitiateFunc: func(ctx context.Context, phone string, amount float64) (*STKPushResponse, error) {
			return &STKPushResponse{CheckoutRequestID: "X"}, nil
		},
		CheckStatusFunc: func(ctx context.Context, checkoutRequestID string) (*PaymentStatusResponse, error) {
			return &PaymentStatusResponse{Status: MpesaStatusPending}, nil
		},
	}
	checkout := NewCheckoutService(
		cartService, gateway, &mockEmailSender{}, &mockOrderRepo{}, &mockPublisher{},
		[]string{"localhost:9092"},
		10*time.Millisecond,
		60*time.Millisecond, // poll budget runs out quickly
		20*time.Millisecond,
	)

	require.NoError(t, checkout.Open(ctx, "session-1"))
	require.NoError(t, checkout.SubmitShipping(ctx, "session-1", validShipping()))
	require.NoError(t, checkout.Pay(ctx, "session-1", models.PaymentMethodMpesa))

	require.Eventually(t, func() bool {
		status := checkout.Status(ctx, "session-1")
		return status.Payment != nil && status.Payment.Status == models.PaymentFailed
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, models.StepPayment, store.CheckoutStep())
}

func TestCheckout_CardPayment(t *testing.T) {
	ctx := context.Background()
	cartService := NewCartService(newMemoryStorage())
	store := seedCart(t, cartService, "session-1")

	emails := &mockEmailSender{}
	orderRepo := &mockOrderRepo{}
	checkout := newTestCheckoutService(cartService, &mockGateway{}, emails, orderRepo, &mockPublisher{})

	require.NoError(t, checkout.Open(ctx, "session-1"))
	require.NoError(t, checkout.SubmitShipping(ctx, "session-1", validShipping()))
	require.NoError(t, checkout.Pay(ctx, "session-1", models.PaymentMethodCard))

	require.Eventually(t, func() bool {
		return store.CheckoutStep() == models.StepConfirmation
	}, time.Second, 5*time.Millisecond)

	orders := orderRepo.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, models.PaymentMethodCard, orders[0].PaymentMethod)
	assert.Empty(t, orders[0].PaymentRef)
	assert.Equal(t, []string{"order:jane@example.com", "payment:jane@example.com"}, emails.Calls())
}

func TestCheckout_EmailFailureDoesNotRollBackConfirmation(t *testing.T) {
	ctx := context.Background()
	cartService := NewCartService(newMemoryStorage())
	store := seedCart(t, cartService, "session-1")

	emails := &mockEmailSender{fail: true}
	orderRepo := &mockOrderRepo{}
	checkout := newTestCheckoutService(cartService, &mockGateway{}, emails, orderRepo, &mockPublisher{})

	require.NoError(t, checkout.Open(ctx, "session-1"))
	require.NoError(t, checkout.SubmitShipping(ctx, "session-1", validShipping()))
	require.NoError(t, checkout.Pay(ctx, "session-1", models.PaymentMethodCard))

	require.Eventually(t, func() bool {
		return store.CheckoutStep() == models.StepConfirmation
	}, time.Second, 5*time.Millisecond)

	status := checkout.Status(ctx, "session-1")
	require.NotNil(t, status.Payment)
	assert.Equal(t, models.PaymentCompleted, status.Payment.Status)
	assert.Len(t, orderRepo.Orders(), 1)
}

func TestCheckout_ReopenCancelsPreviousPollLoop(t *testing.T) {
	ctx := context.Background()
	cartService := NewCartService(newMemoryStorage())
	store := seedCart(t, cartService, "session-1")

	gateway := &mockGateway{
		InitiateFunc: func(ctx context.Context, phone string, amount float64) (*STKPushResponse, error) {
			return &STKPushResponse{CheckoutRequestID: "X"}, nil
		},
		CheckStatusFunc: func(ctx context.Context, checkoutRequestID string) (*PaymentStatusResponse, error) {
			return &PaymentStatusResponse{Status: MpesaStatusPending}, nil
		},
	}
	emails := &mockEmailSender{}
	checkout := newTestCheckoutService(cartService, gateway, emails, &mockOrderRepo{}, &mockPublisher{})

	require.NoError(t, checkout.Open(ctx, "session-1"))
	require.NoError(t, checkout.SubmitShipping(ctx, "session-1", validShipping()))
	require.NoError(t, checkout.Pay(ctx, "session-1", models.PaymentMethodMpesa))

	require.Eventually(t, func() bool {
		return gateway.StatusCalls() >= 1
	}, time.Second, 5*time.Millisecond)

	// Reopening replaces the session; the old loop must wind down and its
	// results must never touch the new one.
	require.NoError(t, checkout.Open(ctx, "session-1"))
	assert.Equal(t, models.StepShipping, store.CheckoutStep())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, models.StepShipping, store.CheckoutStep())
	assert.Empty(t, emails.Calls())
}
