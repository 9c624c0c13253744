// Package banking talks to the open-banking aggregator that links institutions and
// reports their accounts and transactions.
package banking

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

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNotConfigured is returned by a client built without an aggregator URL
var ErrNotConfigured = errors.New("bank aggregator not configured")

const dateLayout = "2006-01-02"

// Link is the result of exchanging a public link token
type Link struct {
	AccessToken     string `json:"access_token"`
	InstitutionName string `json:"institution_name"`
}

// Account is an account as reported by the aggregator
type Account struct {
	ID       string          `json:"account_id"`
	Name     string          `json:"name"`
	Mask     string          `json:"mask"`
	Type     string          `json:"type"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// Transaction is a posted transaction as reported by the aggregator. Positive amounts
// are money leaving the account.
type Transaction struct {
	ID        string          `json:"transaction_id"`
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date"`
	Name      string          `json:"name"`
}

// ParsedDate returns the transaction date at UTC midnight
func (t Transaction) ParsedDate() (time.Time, error) {
	return time.Parse(dateLayout, t.Date)
}

// Client is the subset of the aggregator API the service uses
type Client interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (*Link, error)
	Accounts(ctx context.Context, accessToken string) ([]Account, error)
	Transactions(ctx context.Context, accessToken string, start, end time.Time) ([]Transaction, error)
}

// Config holds aggregator credentials
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Enabled reports whether an aggregator is configured
func (c Config) Enabled() bool {
	return c.BaseURL != ""
}

// HTTPClient calls the aggregator's JSON API. Requests are authenticated with an
// OAuth2 client-credentials token that the transport obtains and refreshes.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates an aggregator client
func NewHTTPClient(ctx context.Context, cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = cc.Client(ctx)
		httpClient.Timeout = timeout
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
	}
}

// ExchangePublicToken turns the token returned by the link flow into an access token
func (c *HTTPClient) ExchangePublicToken(ctx context.Context, publicToken string) (*Link, error) {
	var link Link
	if err := c.post(ctx, "/link/token/exchange", map[string]string{"public_token": publicToken}, &link); err != nil {
		return nil, err
	}
	if link.AccessToken == "" {
		return nil, fmt.Errorf("aggregator returned no access token")
	}
	return &link, nil
}

// Accounts lists the accounts of a linked institution
func (c *HTTPClient) Accounts(ctx context.Context, accessToken string) ([]Account, error) {
	var resp struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.post(ctx, "/accounts/get", map[string]string{"access_token": accessToken}, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// Transactions lists transactions dated in [start, end]
func (c *HTTPClient) Transactions(ctx context.Context, accessToken string, start, end time.Time) ([]Transaction, error) {
	req := map[string]string{
		"access_token": accessToken,
		"start_date":   start.Format(dateLayout),
		"end_date":     end.Format(dateLayout),
	}
	var resp struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.post(ctx, "/transactions/get", req, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("aggregator request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read aggregator response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"error_message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("aggregator %s returned %d: %s", path, resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("aggregator %s returned %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode aggregator response: %w", err)
	}
	return nil
}
