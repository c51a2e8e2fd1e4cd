package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDeclined   = errors.New("card declined")
	ErrValidation = errors.New("validation error")
)

type Card struct {
	Number   string `json:"number"`
	ExpMonth int    `json:"expMonth"`
	ExpYear  int    `json:"expYear"`
	CVC      string `json:"cvc"`
}

func (c Card) Validate() error {
	n := strings.ReplaceAll(c.Number, " ", "")
	if len(n) < 12 || len(n) > 19 {
		return fmt.Errorf("card number: %w", ErrValidation)
	}
	if c.ExpMonth < 1 || c.ExpMonth > 12 || c.ExpYear < 2000 {
		return fmt.Errorf("card expiry: %w", ErrValidation)
	}
	if len(c.CVC) < 3 {
		return fmt.Errorf("card cvc: %w", ErrValidation)
	}
	return nil
}

func (c Card) last4() string {
	n := strings.ReplaceAll(c.Number, " ", "")
	if len(n) < 4 {
		return n
	}
	return n[len(n)-4:]
}

type Billing struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Confirmation struct {
	TransactionID string `json:"id"`
	Status        string `json:"status"`
}

// Processor confirms a card charge against a client secret issued by the
// backend's payment intent.
type Processor interface {
	ConfirmCard(ctx context.Context, clientSecret string, card Card, billing Billing) (Confirmation, error)
}

type HTTPProcessor struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPProcessor(baseURL, apiKey string) *HTTPProcessor {
	return &HTTPProcessor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (p *HTTPProcessor) ConfirmCard(ctx context.Context, clientSecret string, card Card, billing Billing) (Confirmation, error) {
	if clientSecret == "" {
		return Confirmation{}, fmt.Errorf("client secret: %w", ErrValidation)
	}
	if err := card.Validate(); err != nil {
		return Confirmation{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"clientSecret": clientSecret,
		"paymentMethod": map[string]any{
			"type":    "card",
			"card":    card,
			"billing": billing,
		},
	})
	if err != nil {
		return Confirmation{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/payment_intents/confirm", bytes.NewReader(payload))
	if err != nil {
		return Confirmation{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Confirmation{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode == http.StatusPaymentRequired {
		return Confirmation{}, fmt.Errorf("%w: %s", ErrDeclined, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		return Confirmation{}, fmt.Errorf("processor error (%d): %s", resp.StatusCode, string(body))
	}

	var out Confirmation
	if err := json.Unmarshal(body, &out); err != nil {
		return Confirmation{}, fmt.Errorf("decode response: %w", err)
	}
	if out.Status != "succeeded" {
		return out, fmt.Errorf("%w: status %q", ErrDeclined, out.Status)
	}
	return out, nil
}

// Sandbox approves every well-formed card except numbers ending in 0002,
// the conventional decline test card. Used when no processor is configured.
type Sandbox struct{}

func (Sandbox) ConfirmCard(_ context.Context, clientSecret string, card Card, _ Billing) (Confirmation, error) {
	if clientSecret == "" {
		return Confirmation{}, fmt.Errorf("client secret: %w", ErrValidation)
	}
	if err := card.Validate(); err != nil {
		return Confirmation{}, err
	}
	if card.last4() == "0002" {
		return Confirmation{}, ErrDeclined
	}
	return Confirmation{TransactionID: "sbx_" + uuid.NewString(), Status: "succeeded"}, nil
}
