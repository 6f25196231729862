package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Gateway-side payment statuses
const (
	MpesaStatusPending   = "PENDING"
	MpesaStatusCompleted = "COMPLETED"
	MpesaStatusFailed    = "FAILED"
)

// MpesaService is a thin client for the mobile-money payment API. It issues
// single request/response calls; polling is driven by the checkout service.
type MpesaService struct {
	baseURL    string
	httpClient *http.Client
}

func NewMpesaService(baseURL string) *MpesaService {
	return &MpesaService{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// M-Pesa API Request/Response Structures

type STKPushRequest struct {
	PhoneNumber string  `json:"phoneNumber"`
	Amount      float64 `json:"amount"`
}

type STKPushResponse struct {
	CheckoutRequestID string `json:"CheckoutRequestID"`
	MerchantRequestID string `json:"MerchantRequestID"`
}

type PaymentStatusRequest struct {
	CheckoutRequestID string `json:"checkoutRequestId"`
}

type PaymentStatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// InitiateSTKPush asks the gateway to push a payment prompt to the
// customer's phone. The phone number is normalized to international format
// before submission. No retries happen here.
func (s *MpesaService) InitiateSTKPush(ctx context.Context, phone string, amount float64) (*STKPushResponse, error) {
	req := &STKPushRequest{
		PhoneNumber: NormalizePhoneNumber(phone),
		Amount:      amount,
	}

	respBody, err := s.makeMpesaRequest(ctx, "/api/mpesa/stkpush", req)
	if err != nil {
		return nil, err
	}

	var result STKPushResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal STK push response: %v", err)
	}

	return &result, nil
}

// CheckStatus fetches the current state of a pending STK push.
func (s *MpesaService) CheckStatus(ctx context.Context, checkoutRequestID string) (*PaymentStatusResponse, error) {
	req := &PaymentStatusRequest{
		CheckoutRequestID: checkoutRequestID,
	}

	respBody, err := s.makeMpesaRequest(ctx, "/api/mpesa/status", req)
	if err != nil {
		return nil, err
	}

	var result PaymentStatusResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment status response: %v", err)
	}

	return &result, nil
}

// NormalizePhoneNumber rewrites a local-format number (07XXXXXXXX) to the
// Kenyan country code form (2547XXXXXXXX).
func NormalizePhoneNumber(phone string) string {
	if strings.HasPrefix(phone, "0") {
		return "254" + phone[1:]
	}
	return phone
}

// Helper method to make M-Pesa API requests
func (s *MpesaService) makeMpesaRequest(ctx context.Context, path string, body interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("M-Pesa API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
