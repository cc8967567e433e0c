package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"splitpay/core"
	"splitpay/crypto"
	"splitpay/native/swap"
	"splitpay/storage"
)

var adminSecret = []byte("test-admin-secret")

type rpcFixture struct {
	server *Server
	node   *core.Node
	venue  *swap.StaticVenue

	payer    string
	merchant string
	admin    string
}

func addrString(fill byte) string {
	b := make([]byte, 20)
	for i := range b {
		b[i] = fill
	}
	return crypto.NewAddress(crypto.PayPrefix, b).String()
}

func newFixture(t *testing.T) *rpcFixture {
	t.Helper()
	venue := swap.NewStaticVenue()
	venue.SetRate("SOL", "USDC", swap.Rate{Numerator: 1, Denominator: 2})
	node := core.NewNode(storage.NewMemDB())
	node.SetVenue(venue)
	server := NewServer(node, Options{
		AdminSecret:  adminSecret,
		EnableFaucet: true,
	})
	return &rpcFixture{
		server:   server,
		node:     node,
		venue:    venue,
		payer:    addrString(0x11),
		merchant: addrString(0x33),
		admin:    addrString(0x44),
	}
}

func (f *rpcFixture) call(t *testing.T, method string, params interface{}, headers map[string]string) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(encoded))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	f.server.Router().ServeHTTP(recorder, req)

	var resp RPCResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, recorder.Body.String())
	}
	return recorder, resp
}

func (f *rpcFixture) mustCall(t *testing.T, method string, params interface{}) map[string]interface{} {
	t.Helper()
	recorder, resp := f.call(t, method, params, nil)
	if resp.Error != nil {
		t.Fatalf("%s failed: %+v (http %d)", method, resp.Error, recorder.Code)
	}
	result, _ := resp.Result.(map[string]interface{})
	return result
}

func (f *rpcFixture) registerMerchant(t *testing.T) {
	t.Helper()
	f.mustCall(t, "registry_register", map[string]interface{}{
		"merchant":       f.merchant,
		"acceptedTokens": []string{"USDC", "USDT"},
		"fallbackToken":  "USDC",
	})
}

func (f *rpcFixture) fund(t *testing.T, address, token, amount string) {
	t.Helper()
	f.mustCall(t, "dev_fund", map[string]interface{}{
		"address": address,
		"token":   token,
		"amount":  amount,
	})
}

func routeHex(t *testing.T) string {
	t.Helper()
	payload, err := swap.EncodeInstruction([]byte{0xaa})
	if err != nil {
		t.Fatalf("encode route payload: %v", err)
	}
	return fmt.Sprintf("0x%x", payload)
}

func TestPaymentLifecycleOverRPC(t *testing.T) {
	f := newFixture(t)
	f.registerMerchant(t)
	f.fund(t, f.payer, "USDC", "500000")
	f.fund(t, f.payer, "SOL", "1000000")

	created := f.mustCall(t, "payments_createSession", map[string]interface{}{
		"payer":          f.payer,
		"merchant":       f.merchant,
		"preferredToken": "USDC",
		"splits": []map[string]string{
			{"token": "USDC", "amount": "500000"},
			{"token": "SOL", "amount": "1000000"},
		},
		"totalRequested": "1000000",
		"nonce":          1,
	})
	sessionID, _ := created["sessionId"].(string)
	if sessionID == "" {
		t.Fatalf("no session id in %v", created)
	}
	if created["status"] != "pending" {
		t.Fatalf("unexpected status %v", created["status"])
	}

	f.mustCall(t, "payments_deposit", map[string]interface{}{
		"sessionId": sessionID,
		"caller":    f.payer,
		"token":     "USDC",
		"amount":    "500000",
	})
	deposit := f.mustCall(t, "payments_deposit", map[string]interface{}{
		"sessionId": sessionID,
		"caller":    f.payer,
		"token":     "SOL",
		"amount":    "1000000",
	})
	if deposit["escrowBalance"] != "1000000" {
		t.Fatalf("unexpected escrow balance %v", deposit["escrowBalance"])
	}

	receipt := f.mustCall(t, "payments_finalize", map[string]interface{}{
		"sessionId":       sessionID,
		"caller":          f.payer,
		"merchant":        f.merchant,
		"settlementToken": "USDC",
		"routes": []map[string]interface{}{
			{},
			{"token": "SOL", "payload": routeHex(t), "accountCount": 1},
		},
		"venueAccounts": []string{"pool-sol-usdc"},
	})
	if receipt["gross"] != "1000000" || receipt["fee"] != "1000" || receipt["net"] != "999000" {
		t.Fatalf("unexpected receipt %v", receipt)
	}
	receiptID, _ := receipt["receiptId"].(string)
	if receiptID == "" {
		t.Fatal("missing receipt id")
	}

	session := f.mustCall(t, "payments_getSession", map[string]interface{}{"sessionId": sessionID})
	if session["status"] != "completed" {
		t.Fatalf("unexpected status %v", session["status"])
	}

	stored := f.mustCall(t, "payments_getReceipt", map[string]interface{}{"receiptId": receiptID})
	if stored["net"] != "999000" {
		t.Fatalf("unexpected stored receipt %v", stored)
	}

	fees := f.mustCall(t, "fees_balance", map[string]interface{}{"token": "USDC"})
	if fees["balance"] != "1000" {
		t.Fatalf("unexpected fee balance %v", fees)
	}
}

func TestCancelOverRPC(t *testing.T) {
	f := newFixture(t)
	f.registerMerchant(t)
	f.fund(t, f.payer, "USDC", "100000")

	created := f.mustCall(t, "payments_createSession", map[string]interface{}{
		"payer":          f.payer,
		"merchant":       f.merchant,
		"preferredToken": "USDC",
		"splits":         []map[string]string{{"token": "USDC", "amount": "100000"}},
		"totalRequested": "100000",
		"nonce":          2,
	})
	sessionID := created["sessionId"].(string)
	f.mustCall(t, "payments_deposit", map[string]interface{}{
		"sessionId": sessionID,
		"caller":    f.payer,
		"token":     "USDC",
		"amount":    "60000",
	})
	cancelled := f.mustCall(t, "payments_cancel", map[string]interface{}{
		"sessionId": sessionID,
		"caller":    f.payer,
	})
	if cancelled["status"] != "cancelled" {
		t.Fatalf("unexpected cancel result %v", cancelled)
	}
	// Double cancel conflicts.
	recorder, resp := f.call(t, "payments_cancel", map[string]interface{}{
		"sessionId": sessionID,
		"caller":    f.payer,
	}, nil)
	if resp.Error == nil || resp.Error.Code != codeConflict || recorder.Code != http.StatusConflict {
		t.Fatalf("expected conflict, got %+v (http %d)", resp.Error, recorder.Code)
	}
}

func TestWithdrawFeesRequiresAdminToken(t *testing.T) {
	f := newFixture(t)
	params := map[string]interface{}{
		"admin":  f.admin,
		"token":  "USDC",
		"amount": "100",
	}

	recorder, resp := f.call(t, "fees_withdraw", params, nil)
	if resp.Error == nil || resp.Error.Code != codeUnauthorized || recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %+v (http %d)", resp.Error, recorder.Code)
	}

	recorder, resp = f.call(t, "fees_withdraw", params, map[string]string{
		"Authorization": "Bearer not-a-jwt",
	})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized for garbage token, got %+v", resp.Error)
	}

	wrongSecret, err := NewAdminToken([]byte("other-secret"), "ops", time.Minute)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	_, resp = f.call(t, "fees_withdraw", params, map[string]string{
		"Authorization": "Bearer " + wrongSecret,
	})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized for wrong secret, got %+v", resp.Error)
	}

	// With a valid token the request reaches the engine; an empty fee sink
	// yields a conflict rather than an auth failure.
	token, err := NewAdminToken(adminSecret, "ops", time.Minute)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	recorder, resp = f.call(t, "fees_withdraw", params, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if resp.Error == nil || resp.Error.Code != codeConflict {
		t.Fatalf("expected conflict on empty fee sink, got %+v (http %d)", resp.Error, recorder.Code)
	}
}

func TestFaucetCanBeDisabled(t *testing.T) {
	f := newFixture(t)
	f.server.enableFaucet = false
	_, resp := f.call(t, "dev_fund", map[string]interface{}{
		"address": f.payer,
		"token":   "USDC",
		"amount":  "1",
	}, nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	f := newFixture(t)
	recorder, resp := f.call(t, "payments_teleport", nil, nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound || recorder.Code != http.StatusNotFound {
		t.Fatalf("expected method not found, got %+v (http %d)", resp.Error, recorder.Code)
	}
}

func TestMalformedRequests(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	recorder := httptest.NewRecorder()
	f.server.Router().ServeHTTP(recorder, req)
	var resp RPCResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", resp.Error)
	}

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(nil))
	recorder = httptest.NewRecorder()
	f.server.Router().ServeHTTP(recorder, req)
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", resp.Error)
	}

	_, resp = f.call(t, "payments_getSession", map[string]interface{}{"sessionId": "0x1234"}, nil)
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params for short session id, got %+v", resp.Error)
	}
}

func TestRateLimiting(t *testing.T) {
	f := newFixture(t)
	f.server.limiter = nil
	server := NewServer(f.node, Options{RateLimitPerSecond: 1, RateBurst: 1})
	f.server = server

	if recorder, resp := f.call(t, "fees_balance", map[string]interface{}{"token": "USDC"}, nil); resp.Error != nil {
		t.Fatalf("first request throttled: %+v (http %d)", resp.Error, recorder.Code)
	}
	recorder, resp := f.call(t, "fees_balance", map[string]interface{}{"token": "USDC"}, nil)
	if resp.Error == nil || resp.Error.Code != codeRateLimited || recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit, got %+v (http %d)", resp.Error, recorder.Code)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	f.server.Router().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", recorder.Code)
	}
}
