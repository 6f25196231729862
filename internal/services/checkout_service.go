package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang-shop-backend/internal/models"
	"golang-shop-backend/internal/repositories"
	"golang-shop-backend/pkg/messaging"

	"github.com/google/uuid"
)

// Local-format Kenyan mobile number, e.g. 0712345678.
var phonePattern = regexp.MustCompile(`^0[17][0-9]{8}$`)

// PaymentGateway is the payment initiation/status contract, satisfied by
// *MpesaService.
type PaymentGateway interface {
	InitiateSTKPush(ctx context.Context, phone string, amount float64) (*STKPushResponse, error)
	CheckStatus(ctx context.Context, checkoutRequestID string) (*PaymentStatusResponse, error)
}

// EmailSender sends confirmation emails, satisfied by *email.EmailService.
type EmailSender interface {
	SendOrderConfirmation(ctx context.Context, orderDetails interface{}, userEmail string) error
	SendPaymentConfirmation(ctx context.Context, paymentDetails interface{}, userEmail string) error
}

// EventPublisher publishes order events, satisfied by
// *messaging.KafkaProducer.
type EventPublisher interface {
	SendMessage(topic string, brokers []string, key string, value interface{}) error
}

// OrderDetails is the order snapshot sent in the confirmation email and
// persisted with the order record.
type OrderDetails struct {
	Items    []models.CartItem   `json:"items"`
	Total    float64             `json:"total"`
	Shipping models.ShippingInfo `json:"shipping"`
}

// PaymentDetails is the receipt snapshot sent in the payment email.
type PaymentDetails struct {
	Amount float64 `json:"amount"`
	Method string  `json:"method"`
	Date   string  `json:"date"`
}

// CheckoutStatus is the session view returned to the client.
type CheckoutStatus struct {
	Open     bool                   `json:"open"`
	Step     int                    `json:"step"`
	Shipping *models.ShippingInfo   `json:"shipping,omitempty"`
	Payment  *models.PaymentSession `json:"payment,omitempty"`
}

// checkoutSession holds the transient state of one open checkout: shipping
// details, the payment session, and the cancel hook for the poll loop. It
// is discarded on close, cancel, or completion.
type checkoutSession struct {
	shipping   models.ShippingInfo
	payment    *models.PaymentSession
	cancelPoll context.CancelFunc
}

// CheckoutService drives the cart -> shipping -> payment -> confirmation
// state machine. The step itself lives in the cart store; this service owns
// the transition rules and the payment polling loop.
type CheckoutService struct {
	cartService     *CartService
	gateway         PaymentGateway
	emailService    EmailSender
	orderRepo       repositories.OrderRepository
	producer        EventPublisher
	kafkaBrokers    []string
	pollInterval    time.Duration
	maxPollDuration time.Duration
	cardDelay       time.Duration

	mu       sync.Mutex
	sessions map[string]*checkoutSession
}

func NewCheckoutService(
	cartService *CartService,
	gateway PaymentGateway,
	emailService EmailSender,
	orderRepo repositories.OrderRepository,
	producer EventPublisher,
	kafkaBrokers []string,
	pollInterval time.Duration,
	maxPollDuration time.Duration,
	cardDelay time.Duration,
) *CheckoutService {
	return &CheckoutService{
		cartService:     cartService,
		gateway:         gateway,
		emailService:    emailService,
		orderRepo:       orderRepo,
		producer:        producer,
		kafkaBrokers:    kafkaBrokers,
		pollInterval:    pollInterval,
		maxPollDuration: maxPollDuration,
		cardDelay:       cardDelay,
		sessions:        make(map[string]*checkoutSession),
	}
}

// Open starts a checkout for the session's cart: step moves to Shipping and
// a blank shipping form is allocated. An already open checkout is replaced,
// cancelling any poll loop it left behind.
func (s *CheckoutService) Open(ctx context.Context, sessionID string) error {
	store := s.cartService.Store(ctx, sessionID)
	if len(store.State().Items) == 0 {
		return errors.New("cart is empty")
	}

	s.mu.Lock()
	if existing, exists := s.sessions[sessionID]; exists {
		existing.stopPolling()
	}
	s.sessions[sessionID] = &checkoutSession{}
	s.mu.Unlock()

	return store.SetCheckoutStep(ctx, models.StepShipping)
}

// SubmitShipping validates the shipping form and advances to the Payment
// step, allocating a pending payment session.
func (s *CheckoutService) SubmitShipping(ctx context.Context, sessionID string, info models.ShippingInfo) error {
	if err := validateShippingInfo(info); err != nil {
		return err
	}

	store := s.cartService.Store(ctx, sessionID)
	if store.CheckoutStep() != models.StepShipping {
		return errors.New("checkout is not at the shipping step")
	}

	s.mu.Lock()
	session, exists := s.sessions[sessionID]
	if !exists {
		s.mu.Unlock()
		return errors.New("no open checkout session")
	}
	session.shipping = info
	session.payment = &models.PaymentSession{Status: models.PaymentPending}
	s.mu.Unlock()

	return store.SetCheckoutStep(ctx, models.StepPayment)
}

// Pay starts the payment for the open checkout. For mpesa it initiates an
// STK push and spawns the status poll loop; for card it runs the
// placeholder delay and resolves successfully. A failed payment leaves the
// checkout at the Payment step so the user can retry.
func (s *CheckoutService) Pay(ctx context.Context, sessionID string, method string) error {
	store := s.cartService.Store(ctx, sessionID)
	if store.CheckoutStep() != models.StepPayment {
		return errors.New("checkout is not at the payment step")
	}

	s.mu.Lock()
	session, exists := s.sessions[sessionID]
	if !exists || session.payment == nil {
		s.mu.Unlock()
		return errors.New("no open checkout session")
	}
	if session.payment.Status == models.PaymentProcessing {
		s.mu.Unlock()
		return errors.New("payment is already processing")
	}

	session.payment.Method = method
	session.payment.Error = ""
	shipping := session.shipping
	s.mu.Unlock()

	amount := store.Total()

	switch method {
	case models.PaymentMethodMpesa:
		resp, err := s.gateway.InitiateSTKPush(ctx, shipping.Phone, amount)
		if err != nil {
			s.failPayment(sessionID, session, "Payment failed. Please try again.")
			return fmt.Errorf("payment initiation failed: %v", err)
		}

		var pollCtx context.Context
		var cancel context.CancelFunc
		if s.maxPollDuration > 0 {
			pollCtx, cancel = context.WithTimeout(context.Background(), s.maxPollDuration)
		} else {
			pollCtx, cancel = context.WithCancel(context.Background())
		}

		s.mu.Lock()
		if !s.sessionActive(sessionID, session) {
			// Checkout closed while the initiation call was in flight.
			s.mu.Unlock()
			cancel()
			return errors.New("checkout session closed")
		}
		session.payment.Status = models.PaymentProcessing
		session.payment.CheckoutRequestID = resp.CheckoutRequestID
		session.cancelPoll = cancel
		s.mu.Unlock()

		go s.pollPaymentStatus(pollCtx, sessionID, session, resp.CheckoutRequestID)
		return nil

	case models.PaymentMethodCard:
		// Placeholder card integration: fixed delay, always succeeds.
		cardCtx, cancel := context.WithCancel(context.Background())

		s.mu.Lock()
		session.payment.Status = models.PaymentProcessing
		session.cancelPoll = cancel
		s.mu.Unlock()

		go func() {
			select {
			case <-cardCtx.Done():
			case <-time.After(s.cardDelay):
				s.handlePaymentSuccess(sessionID, session)
			}
		}()
		return nil

	default:
		return errors.New("unsupported payment method")
	}
}

// pollPaymentStatus checks the gateway on a fixed interval until the
// payment resolves, the checkout is closed, or the poll budget runs out.
// Transient status-check errors keep the loop going.
func (s *CheckoutService) pollPaymentStatus(ctx context.Context, sessionID string, session *checkoutSession, checkoutRequestID string) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				s.failPayment(sessionID, session, "Payment confirmation timed out. Please try again.")
			}
			return
		case <-ticker.C:
			resp, err := s.gateway.CheckStatus(ctx, checkoutRequestID)
			if err != nil {
				log.Printf("Payment status check failed for session %s: %v", sessionID, err)
				continue
			}

			switch resp.Status {
			case MpesaStatusCompleted:
				s.handlePaymentSuccess(sessionID, session)
				return
			case MpesaStatusFailed:
				s.failPayment(sessionID, session, "Payment failed. Please try again.")
				return
			}
		}
	}
}

// handlePaymentSuccess runs the confirmation side effects in order: the two
// confirmation emails, the order record, the order event, then the step
// transition. Email and record failures are logged but never roll back the
// confirmed payment.
func (s *CheckoutService) handlePaymentSuccess(sessionID string, session *checkoutSession) {
	ctx := context.Background()

	s.mu.Lock()
	if !s.sessionActive(sessionID, session) {
		// The checkout closed while the response was in flight.
		s.mu.Unlock()
		return
	}
	shipping := session.shipping
	method := session.payment.Method
	paymentRef := session.payment.CheckoutRequestID
	s.mu.Unlock()

	store := s.cartService.Store(ctx, sessionID)
	state := store.State()

	orderDetails := OrderDetails{
		Items:    state.Items,
		Total:    store.Total(),
		Shipping: shipping,
	}
	if err := s.emailService.SendOrderConfirmation(ctx, orderDetails, shipping.Email); err != nil {
		log.Printf("Failed to send order confirmation email: %v", err)
	}

	paymentDetails := PaymentDetails{
		Amount: store.Total(),
		Method: method,
		Date:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.emailService.SendPaymentConfirmation(ctx, paymentDetails, shipping.Email); err != nil {
		log.Printf("Failed to send payment confirmation email: %v", err)
	}

	order := s.recordOrder(ctx, sessionID, store, shipping, method, paymentRef)

	s.mu.Lock()
	if !s.sessionActive(sessionID, session) {
		s.mu.Unlock()
		return
	}
	session.payment.Status = models.PaymentCompleted
	session.cancelPoll = nil
	s.mu.Unlock()

	if err := store.SetCheckoutStep(ctx, models.StepConfirmation); err != nil {
		log.Printf("Failed to persist confirmation step for session %s: %v", sessionID, err)
	}

	if order != nil {
		event := messaging.OrderEvent{
			Type:      "order_confirmed",
			OrderID:   order.ID.String(),
			SessionID: sessionID,
			Data:      order,
		}
		if err := s.producer.SendMessage("order_events", s.kafkaBrokers, order.ID.String(), event); err != nil {
			log.Printf("Failed to publish order event: %v", err)
		}
	}

	paymentEvent := messaging.PaymentEvent{
		Type:              "payment_completed",
		SessionID:         sessionID,
		Method:            method,
		Amount:            store.Total(),
		CheckoutRequestID: paymentRef,
	}
	if err := s.producer.SendMessage("payment_events", s.kafkaBrokers, sessionID, paymentEvent); err != nil {
		log.Printf("Failed to publish payment event: %v", err)
	}
}

// recordOrder persists the confirmed order. Best-effort like the emails:
// payment success is authoritative, so failures only log.
func (s *CheckoutService) recordOrder(ctx context.Context, sessionID string, store *CartStore, shipping models.ShippingInfo, method, paymentRef string) *models.Order {
	state := store.State()
	items := make([]map[string]interface{}, 0, len(state.Items))
	for _, item := range state.Items {
		items = append(items, map[string]interface{}{
			"id":       item.ID,
			"name":     item.Name,
			"price":    item.Price,
			"quantity": item.Quantity,
		})
	}

	order := &models.Order{
		ID:            uuid.New(),
		SessionID:     sessionID,
		CustomerName:  shipping.Name,
		CustomerEmail: shipping.Email,
		Address:       shipping.Address,
		City:          shipping.City,
		Phone:         shipping.Phone,
		Items:         models.JSONB{"items": items},
		Subtotal:      store.Subtotal(),
		ShippingFee:   ShippingFee,
		TotalAmount:   store.Total(),
		PaymentMethod: method,
		PaymentRef:    paymentRef,
		Status:        "confirmed",
		CreatedAt:     time.Now(),
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		log.Printf("Failed to record order for session %s: %v", sessionID, err)
		return nil
	}
	return order
}

// failPayment marks the payment failed and keeps the checkout at the
// Payment step. Ignored when the session already closed.
func (s *CheckoutService) failPayment(sessionID string, session *checkoutSession, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sessionActive(sessionID, session) {
		return
	}
	session.payment.Status = models.PaymentFailed
	session.payment.Error = message
	session.cancelPoll = nil
}

// Cancel closes the checkout from any step: the poll timer stops, shipping
// and payment state are discarded, and the step returns to Cart. The cart
// contents are untouched.
func (s *CheckoutService) Cancel(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	if session, exists := s.sessions[sessionID]; exists {
		session.stopPolling()
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	store := s.cartService.Store(ctx, sessionID)
	return store.SetCheckoutStep(ctx, models.StepCart)
}

// Complete acknowledges the confirmation screen: the cart is cleared and
// the checkout closes.
func (s *CheckoutService) Complete(ctx context.Context, sessionID string) error {
	store := s.cartService.Store(ctx, sessionID)
	if store.CheckoutStep() != models.StepConfirmation {
		return errors.New("checkout is not at the confirmation step")
	}

	if err := store.ClearCart(ctx); err != nil {
		return err
	}
	return s.Cancel(ctx, sessionID)
}

// Status reports the current checkout view for a session.
func (s *CheckoutService) Status(ctx context.Context, sessionID string) CheckoutStatus {
	store := s.cartService.Store(ctx, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	status := CheckoutStatus{
		Open: exists,
		Step: store.CheckoutStep(),
	}
	if exists {
		shipping := session.shipping
		status.Shipping = &shipping
		if session.payment != nil {
			payment := *session.payment
			status.Payment = &payment
		}
	}
	return status
}

// sessionActive reports whether this exact session object is still the live
// one; late poll responses for a replaced or closed session are dropped.
// Caller holds s.mu.
func (s *CheckoutService) sessionActive(sessionID string, session *checkoutSession) bool {
	current, exists := s.sessions[sessionID]
	return exists && current == session && session.payment != nil
}

func (cs *checkoutSession) stopPolling() {
	if cs.cancelPoll != nil {
		cs.cancelPoll()
		cs.cancelPoll = nil
	}
}

func validateShippingInfo(info models.ShippingInfo) error {
	if strings.TrimSpace(info.Name) == "" ||
		strings.TrimSpace(info.Email) == "" ||
		strings.TrimSpace(info.Address) == "" ||
		strings.TrimSpace(info.City) == "" ||
		strings.TrimSpace(info.Phone) == "" {
		return errors.New("all shipping fields are required")
	}
	if !phonePattern.MatchString(info.Phone) {
		return errors.New("phone number must be in the format 07XXXXXXXX")
	}
	return nil
}
