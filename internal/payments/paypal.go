package payments

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Provider is the external payment collaborator consumed by the pledge
// engine for the cash leg of a pledge. A failure here must abort the whole
// pledge.
type Provider interface {
	Charge(ctx context.Context, amount int64, reference string) (string, error)
}

// PayPalClient wraps the PayPal REST API for one-time payments. Only
// net/http is used; the checkout SDK is deliberately avoided for tighter
// control over retries and logging.
type PayPalClient struct {
	clientID     string
	clientSecret string
	webhookID    string
	apiBase      string
	httpClient   *http.Client

	mu           sync.Mutex
	bearer       string
	bearerExpiry time.Time
}

type Order struct {
	OrderID    string `json:"orderId"`
	ApproveURL string `json:"approveUrl"`
}

type Capture struct {
	CaptureID string `json:"captureId"`
	Status    string `json:"status"`
	Currency  string `json:"currency"`
	Value     string `json:"value"`
}

func NewPayPalClient() *PayPalClient {
	viper.SetDefault("paypal.mode", "sandbox")

	apiBase := "https://api-m.sandbox.paypal.com"
	if viper.GetString("paypal.mode") == "live" {
		apiBase = "https://api-m.paypal.com"
	}

	clientID := viper.GetString("paypal.client_id")
	clientSecret := viper.GetString("paypal.client_secret")
	if clientID == "" || clientSecret == "" {
		log.Printf("[PAYPAL] Missing client_id or client_secret, PayPal calls will fail until configured")
	}

	return &PayPalClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		webhookID:    viper.GetString("paypal.webhook_id"),
		apiBase:      apiBase,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// getAccessToken returns a cached bearer token, refreshing when less than a
// minute of validity remains.
func (c *PayPalClient) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bearer != "" && time.Until(c.bearerExpiry) > time.Minute {
		return c.bearer, nil
	}

	basicAuth := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	form := url.Values{"grant_type": {"client_credentials"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Basic "+basicAuth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("paypal: failed to fetch access token: %d %s", resp.StatusCode, string(body))
	}

	var data struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}

	c.bearer = data.AccessToken
	// refresh 5 min before expiration
	c.bearerExpiry = time.Now().Add(time.Duration(data.ExpiresIn-300) * time.Second)

	return c.bearer, nil
}

// CreateOrder creates a PayPal order for the given amount in cents.
func (c *PayPalClient) CreateOrder(ctx context.Context, amount int64, reference string) (*Order, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("paypal: amount must be positive")
	}

	appURL := viper.GetString("app.url")
	if appURL == "" {
		appURL = "https://bidcast.app"
	}

	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": reference,
				"amount": map[string]string{
					"currency_code": "USD",
					"value":         formatAmount(amount),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": appURL + "/paypal/return",
			"cancel_url": appURL + "/paypal/cancel",
		},
	}

	var data struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := c.post(ctx, "/v2/checkout/orders", body, &data); err != nil {
		return nil, fmt.Errorf("paypal: createOrder failed: %w", err)
	}

	for _, l := range data.Links {
		if l.Rel == "approve" {
			return &Order{OrderID: data.ID, ApproveURL: l.Href}, nil
		}
	}

	return nil, fmt.Errorf("paypal: createOrder approve link missing")
}

// CaptureOrder captures a previously approved order.
func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	if orderID == "" {
		return nil, fmt.Errorf("paypal: orderID required")
	}

	var data struct {
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
					Amount struct {
						CurrencyCode string `json:"currency_code"`
						Value        string `json:"value"`
					} `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := c.post(ctx, "/v2/checkout/orders/"+orderID+"/capture", nil, &data); err != nil {
		return nil, fmt.Errorf("paypal: captureOrder failed: %w", err)
	}

	if len(data.PurchaseUnits) == 0 || len(data.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil, fmt.Errorf("paypal: capture object missing in response")
	}

	capture := data.PurchaseUnits[0].Payments.Captures[0]
	return &Capture{
		CaptureID: capture.ID,
		Status:    capture.Status,
		Currency:  capture.Amount.CurrencyCode,
		Value:     capture.Amount.Value,
	}, nil
}

// Charge runs the order-and-capture flow for a server-initiated charge. The
// pledge engine relies on the returned capture ID as the payment reference.
func (c *PayPalClient) Charge(ctx context.Context, amount int64, reference string) (string, error) {
	order, err := c.CreateOrder(ctx, amount, reference)
	if err != nil {
		return "", err
	}

	capture, err := c.CaptureOrder(ctx, order.OrderID)
	if err != nil {
		return "", err
	}

	if capture.Status != "COMPLETED" {
		return "", fmt.Errorf("paypal: capture not completed, status %s", capture.Status)
	}

	log.Printf("[PAYPAL] Charged %s for reference %s, capture %s", capture.Value, reference, capture.CaptureID)
	return capture.CaptureID, nil
}

// VerifyWebhookSignature validates a webhook delivery against the PayPal
// verification endpoint. Fails open when no webhook ID is configured (dev).
func (c *PayPalClient) VerifyWebhookSignature(ctx context.Context, headers http.Header, event json.RawMessage) (bool, error) {
	if c.webhookID == "" {
		log.Printf("[PAYPAL] webhook_id not set, skipping signature verify")
		return true, nil
	}

	required := []string{
		"Paypal-Transmission-Id",
		"Paypal-Transmission-Time",
		"Paypal-Transmission-Sig",
		"Paypal-Cert-Url",
		"Paypal-Auth-Algo",
	}
	for _, h := range required {
		if headers.Get(h) == "" {
			log.Printf("[PAYPAL] Missing webhook header %s", h)
			return false, nil
		}
	}

	body := map[string]interface{}{
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"webhook_id":        c.webhookID,
		"webhook_event":     event,
	}

	var data struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.post(ctx, "/v1/notifications/verify-webhook-signature", body, &data); err != nil {
		return false, err
	}

	return data.VerificationStatus == "SUCCESS", nil
}

func (c *PayPalClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	bearer, err := c.getAccessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(payload))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PayPal-Request-Id", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(text))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
