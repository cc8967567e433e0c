// Package client is a thin Go wrapper over the splitpay JSON-RPC surface for
// merchant backends and operator tooling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const jsonRPCVersion = "2.0"

// Client wraps a JSON-RPC endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	authToken  string
	nextID     int
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for RPC calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithAuthToken sets the bearer token attached to privileged RPC requests.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = strings.TrimSpace(token)
	}
}

// New initialises a client bound to the provided JSON-RPC endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("client: endpoint required")
	}
	c := &Client{
		endpoint:   trimmed,
		httpClient: http.DefaultClient,
		nextID:     1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RPCError is a JSON-RPC error returned by the server.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := c.nextID
	c.nextID++
	request := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      id,
		"method":  method,
	}
	if params != nil {
		request["params"] = []interface{}{params}
	}
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("client: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var envelope rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("client: decode result: %w", err)
		}
	}
	return nil
}

// Split is one deposit instruction within a session.
type Split struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// Merchant mirrors the registry record returned by the server.
type Merchant struct {
	Merchant       string   `json:"merchant"`
	AcceptedTokens []string `json:"acceptedTokens"`
	FallbackToken  string   `json:"fallbackToken"`
	UpdatedAt      int64    `json:"updatedAt"`
}

// Session mirrors the session view returned by the server.
type Session struct {
	SessionID      string            `json:"sessionId"`
	Payer          string            `json:"payer"`
	Merchant       string            `json:"merchant"`
	PreferredToken string            `json:"preferredToken"`
	Splits         []Split           `json:"splits"`
	TotalRequested string            `json:"totalRequested"`
	Status         string            `json:"status"`
	CreatedAt      int64             `json:"createdAt"`
	EscrowBalances map[string]string `json:"escrowBalances,omitempty"`
}

// Receipt mirrors the settlement receipt returned by the server.
type Receipt struct {
	ReceiptID string `json:"receiptId"`
	SessionID string `json:"sessionId"`
	Gross     string `json:"gross"`
	Fee       string `json:"fee"`
	Net       string `json:"net"`
}

// Route carries one swap instruction for a non-preferred split entry,
// positional with the session's splits.
type Route struct {
	Token        string `json:"token,omitempty"`
	Payload      string `json:"payload,omitempty"`
	AccountCount int    `json:"accountCount,omitempty"`
}

// RegisterMerchant creates or replaces a merchant configuration.
func (c *Client) RegisterMerchant(ctx context.Context, merchant string, acceptedTokens []string, fallbackToken string) (*Merchant, error) {
	out := &Merchant{}
	err := c.call(ctx, "registry_register", map[string]interface{}{
		"merchant":       merchant,
		"acceptedTokens": acceptedTokens,
		"fallbackToken":  fallbackToken,
	}, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetMerchant loads a merchant configuration.
func (c *Client) GetMerchant(ctx context.Context, merchant string) (*Merchant, error) {
	out := &Merchant{}
	if err := c.call(ctx, "registry_get", map[string]interface{}{"merchant": merchant}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSession opens a pending payment session.
func (c *Client) CreateSession(ctx context.Context, payer, merchant, preferredToken string, splits []Split, totalRequested string, nonce uint64) (*Session, error) {
	out := &Session{}
	err := c.call(ctx, "payments_createSession", map[string]interface{}{
		"payer":          payer,
		"merchant":       merchant,
		"preferredToken": preferredToken,
		"splits":         splits,
		"totalRequested": totalRequested,
		"nonce":          nonce,
	}, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Deposit moves payer funds into the session escrow.
func (c *Client) Deposit(ctx context.Context, sessionID, caller, token, amount string) error {
	return c.call(ctx, "payments_deposit", map[string]interface{}{
		"sessionId": sessionID,
		"caller":    caller,
		"token":     token,
		"amount":    amount,
	}, nil)
}

// Finalize settles a pending session and returns the receipt.
func (c *Client) Finalize(ctx context.Context, sessionID, caller, merchant, settlementToken string, routes []Route, venueAccounts []string) (*Receipt, error) {
	out := &Receipt{}
	err := c.call(ctx, "payments_finalize", map[string]interface{}{
		"sessionId":       sessionID,
		"caller":          caller,
		"merchant":        merchant,
		"settlementToken": settlementToken,
		"routes":          routes,
		"venueAccounts":   venueAccounts,
	}, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel refunds a pending session to the payer.
func (c *Client) Cancel(ctx context.Context, sessionID, caller string) error {
	return c.call(ctx, "payments_cancel", map[string]interface{}{
		"sessionId": sessionID,
		"caller":    caller,
	}, nil)
}

// GetSession loads a session with its current escrow balances.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	out := &Session{}
	if err := c.call(ctx, "payments_getSession", map[string]interface{}{"sessionId": sessionID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetReceipt loads a settlement receipt by id.
func (c *Client) GetReceipt(ctx context.Context, receiptID string) (*Receipt, error) {
	out := &Receipt{}
	if err := c.call(ctx, "payments_getReceipt", map[string]interface{}{"receiptId": receiptID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FeeBalance reports the accumulated protocol fees for a token.
func (c *Client) FeeBalance(ctx context.Context, token string) (string, error) {
	out := map[string]string{}
	if err := c.call(ctx, "fees_balance", map[string]interface{}{"token": token}, &out); err != nil {
		return "", err
	}
	return out["balance"], nil
}

// WithdrawFees sweeps fees to the admin account. Requires an admin bearer
// token (see WithAuthToken).
func (c *Client) WithdrawFees(ctx context.Context, admin, token, amount string) error {
	return c.call(ctx, "fees_withdraw", map[string]interface{}{
		"admin":  admin,
		"token":  token,
		"amount": amount,
	}, nil)
}

// Fund credits an account via the dev-only faucet method.
func (c *Client) Fund(ctx context.Context, address, token, amount string) error {
	return c.call(ctx, "dev_fund", map[string]interface{}{
		"address": address,
		"token":   token,
		"amount":  amount,
	}, nil)
}
