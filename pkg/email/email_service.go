package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmailService is a thin client for the external email delivery API.
// Sends are best-effort: callers log failures and move on.
type EmailService struct {
	baseURL    string
	httpClient *http.Client
}

func NewEmailService(baseURL string) *EmailService {
	return &EmailService{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type orderConfirmationRequest struct {
	OrderDetails interface{} `json:"orderDetails"`
	UserEmail    string      `json:"userEmail"`
}

type paymentConfirmationRequest struct {
	PaymentDetails interface{} `json:"paymentDetails"`
	UserEmail      string      `json:"userEmail"`
}

// SendOrderConfirmation emails the order summary to the customer.
func (s *EmailService) SendOrderConfirmation(ctx context.Context, orderDetails interface{}, userEmail string) error {
	req := orderConfirmationRequest{
		OrderDetails: orderDetails,
		UserEmail:    userEmail,
	}
	return s.post(ctx, "/api/email/order-confirmation", req)
}

// SendPaymentConfirmation emails the payment receipt to the customer.
func (s *EmailService) SendPaymentConfirmation(ctx context.Context, paymentDetails interface{}, userEmail string) error {
	req := paymentConfirmationRequest{
		PaymentDetails: paymentDetails,
		UserEmail:      userEmail,
	}
	return s.post(ctx, "/api/email/payment-confirmation", req)
}

func (s *EmailService) post(ctx context.Context, path string, body interface{}) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+path, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create email request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send email request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("email API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
