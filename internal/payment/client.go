package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a thin HTTP client for the gateway's payment-intent API.
// Authentication is the secret key as basic-auth username, in the usual
// gateway style.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// NewClient builds a Client. timeout bounds every call; a gateway that does
// not answer in time surfaces as ErrGatewayUnavailable instead of hanging a
// checkout.
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}
}

type intentPayload struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
}

type createIntentRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type gatewayError struct {
	Error string `json:"error"`
}

// CreateIntent registers a new charge with the gateway.
func (c *Client) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error) {
	body, err := json.Marshal(createIntentRequest{
		Amount:   amount,
		Currency: currency,
		Metadata: metadata,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("encode intent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment_intents", bytes.NewReader(body))
	if err != nil {
		return Intent{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// RetrieveIntent fetches the current gateway state of an intent.
func (c *Client) RetrieveIntent(ctx context.Context, reference string) (Intent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payment_intents/"+reference, nil)
	if err != nil {
		return Intent{}, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (Intent, error) {
	req.SetBasicAuth(c.secretKey, "")

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts, refused connections, DNS failures. The caller cannot
		// tell these apart and should not try.
		return Intent{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Intent{}, fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return Intent{}, fmt.Errorf("%w: gateway returned %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var ge gatewayError
		if json.Unmarshal(raw, &ge) == nil && ge.Error != "" {
			return Intent{}, fmt.Errorf("gateway rejected request: %s", ge.Error)
		}
		return Intent{}, fmt.Errorf("gateway rejected request: status %d", resp.StatusCode)
	}

	var p intentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Intent{}, fmt.Errorf("decode intent: %w", err)
	}
	return Intent{
		Reference:    p.ID,
		ClientSecret: p.ClientSecret,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Status:       p.Status,
		Metadata:     p.Metadata,
	}, nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 the gateway puts on webhook
// deliveries. Constant-time compare; the hex signature is case-insensitive.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}
