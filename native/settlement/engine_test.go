package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"splitpay/core/events"
	"splitpay/native/registry"
	"splitpay/native/swap"
)

type mockState struct {
	sessions  map[[32]byte]*PaymentSession
	merchants map[[20]byte]*registry.Merchant
	balances  map[[20]byte]map[string]uint64
}

func newMockState() *mockState {
	return &mockState{
		sessions:  make(map[[32]byte]*PaymentSession),
		merchants: make(map[[20]byte]*registry.Merchant),
		balances:  make(map[[20]byte]map[string]uint64),
	}
}

func (m *mockState) SessionPut(s *PaymentSession) error {
	sanitized, err := SanitizeSession(s)
	if err != nil {
		return err
	}
	m.sessions[sanitized.ID] = sanitized.Clone()
	return nil
}

func (m *mockState) SessionGet(id [32]byte) (*PaymentSession, bool, error) {
	session, ok := m.sessions[id]
	if !ok {
		return nil, false, nil
	}
	return session.Clone(), true, nil
}

func (m *mockState) MerchantPut(record *registry.Merchant) error {
	sanitized, err := registry.SanitizeMerchant(record)
	if err != nil {
		return err
	}
	m.merchants[sanitized.Address] = sanitized.Clone()
	return nil
}

func (m *mockState) MerchantGet(addr [20]byte) (*registry.Merchant, bool, error) {
	record, ok := m.merchants[addr]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) BalanceOf(addr [20]byte, token string) (uint64, error) {
	return m.balances[addr][token], nil
}

func (m *mockState) Credit(addr [20]byte, token string, amount uint64) error {
	if m.balances[addr] == nil {
		m.balances[addr] = make(map[string]uint64)
	}
	m.balances[addr][token] += amount
	return nil
}

func (m *mockState) Debit(addr [20]byte, token string, amount uint64) error {
	if m.balances[addr][token] < amount {
		return fmt.Errorf("insufficient balance")
	}
	m.balances[addr][token] -= amount
	return nil
}

func (m *mockState) Transfer(from, to [20]byte, token string, amount uint64) error {
	if err := m.Debit(from, token, amount); err != nil {
		return err
	}
	return m.Credit(to, token, amount)
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *captureEmitter) lastType() string {
	if len(c.events) == 0 {
		return ""
	}
	return c.events[len(c.events)-1].EventType()
}

type testHarness struct {
	state   *mockState
	engine  *Engine
	venue   *swap.StaticVenue
	emitter *captureEmitter
	payer   [20]byte
	other   [20]byte
	mrchnt  [20]byte
	admin   [20]byte
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		state:   newMockState(),
		engine:  NewEngine(),
		venue:   swap.NewStaticVenue(),
		emitter: &captureEmitter{},
		payer:   addr(0x11),
		other:   addr(0x22),
		mrchnt:  addr(0x33),
		admin:   addr(0x44),
	}
	h.engine.SetState(h.state)
	h.engine.SetVenue(h.venue)
	h.engine.SetEmitter(h.emitter)
	h.engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	if err := h.state.MerchantPut(&registry.Merchant{
		Address:        h.mrchnt,
		AcceptedTokens: []string{"USDC", "USDT"},
		FallbackToken:  "USDC",
	}); err != nil {
		t.Fatalf("register merchant: %v", err)
	}
	h.venue.SetRate("SOL", "USDC", swap.Rate{Numerator: 1, Denominator: 2})
	return h
}

func (h *testHarness) createSession(t *testing.T, totalRequested uint64) *PaymentSession {
	t.Helper()
	session, err := h.engine.CreateSession(h.payer, h.mrchnt, "USDC", []SplitToken{
		{Token: "USDC", Amount: 500_000},
		{Token: "SOL", Amount: 1_000_000},
	}, totalRequested, 1)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func (h *testHarness) fundAndDeposit(t *testing.T, session *PaymentSession) {
	t.Helper()
	if err := h.state.Credit(h.payer, "USDC", 500_000); err != nil {
		t.Fatalf("fund payer: %v", err)
	}
	if err := h.state.Credit(h.payer, "SOL", 1_000_000); err != nil {
		t.Fatalf("fund payer: %v", err)
	}
	if err := h.engine.Deposit(session.ID, h.payer, "USDC", 500_000); err != nil {
		t.Fatalf("deposit usdc: %v", err)
	}
	if err := h.engine.Deposit(session.ID, h.payer, "SOL", 1_000_000); err != nil {
		t.Fatalf("deposit sol: %v", err)
	}
}

func (h *testHarness) finalizeRequest(session *PaymentSession) FinalizeRequest {
	payload, _ := swap.EncodeInstruction([]byte{0x01, 0x02})
	return FinalizeRequest{
		SessionID:          session.ID,
		Caller:             h.payer,
		Merchant:           h.mrchnt,
		SettlementToken:    "USDC",
		RouteTokens:        []string{"", "SOL"},
		RoutePayloads:      [][]byte{nil, payload},
		RouteAccountCounts: []int{0, 2},
		VenueAccounts:      []string{"venue-a", "venue-b"},
	}
}

func TestFinalizeHappyPath(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 1_000_000)
	h.fundAndDeposit(t, session)

	receipt, err := h.engine.Finalize(context.Background(), h.finalizeRequest(session))
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// 500k pass-through + 1M SOL at 1/2 = 500k -> gross 1M.
	if receipt.Gross != 1_000_000 {
		t.Fatalf("expected gross 1000000, got %d", receipt.Gross)
	}
	if receipt.Fee != 1_000 {
		t.Fatalf("expected fee 1000, got %d", receipt.Fee)
	}
	if receipt.Net != 999_000 {
		t.Fatalf("expected net 999000, got %d", receipt.Net)
	}
	if receipt.Fee+receipt.Net != receipt.Gross {
		t.Fatal("fee + net must equal gross")
	}
	if receipt.ReceiptID == "" {
		t.Fatal("receipt id must be set")
	}

	merchantBal, _ := h.state.BalanceOf(h.mrchnt, "USDC")
	if merchantBal != 999_000 {
		t.Fatalf("merchant balance %d, want 999000", merchantBal)
	}
	sinkBal, _ := h.state.BalanceOf(FeeSinkAddress(), "USDC")
	if sinkBal != 1_000 {
		t.Fatalf("fee sink balance %d, want 1000", sinkBal)
	}
	escrowBal, _ := h.state.BalanceOf(EscrowAuthority(session.ID), "USDC")
	if escrowBal != 0 {
		t.Fatalf("escrow not drained: %d", escrowBal)
	}
	stored, _, _ := h.state.SessionGet(session.ID)
	if stored.Status != StatusCompleted {
		t.Fatalf("expected Completed, got %s", stored.Status)
	}
	if h.emitter.lastType() != events.TypePaymentFinalized {
		t.Fatalf("expected finalized event, got %s", h.emitter.lastType())
	}
}

func TestFinalizePreconditionOrder(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 1_000_000)
	h.fundAndDeposit(t, session)

	// Wrong caller AND wrong merchant: unauthorized wins after status.
	req := h.finalizeRequest(session)
	req.Caller = h.other
	req.Merchant = h.other
	if _, err := h.engine.Finalize(context.Background(), req); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	req = h.finalizeRequest(session)
	req.Merchant = h.other
	if _, err := h.engine.Finalize(context.Background(), req); !errors.Is(err, ErrMerchantMismatch) {
		t.Fatalf("expected ErrMerchantMismatch, got %v", err)
	}

	req = h.finalizeRequest(session)
	req.SettlementToken = "USDT"
	if _, err := h.engine.Finalize(context.Background(), req); !errors.Is(err, ErrPreferredMismatch) {
		t.Fatalf("expected ErrPreferredMismatch, got %v", err)
	}

	// Complete it, then verify status has precedence over everything else.
	if _, err := h.engine.Finalize(context.Background(), h.finalizeRequest(session)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	req = h.finalizeRequest(session)
	req.Caller = h.other
	if _, err := h.engine.Finalize(context.Background(), req); !errors.Is(err, ErrWrongStatus) {
		t.Fatalf("expected ErrWrongStatus, got %v", err)
	}
}

func TestFinalizeMissingSwapInstruction(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 1_000_000)
	h.fundAndDeposit(t, session)

	req := h.finalizeRequest(session)
	req.RoutePayloads = [][]byte{nil, nil}
	if _, err := h.engine.Finalize(context.Background(), req); !errors.Is(err, ErrMissingSwapInstruction) {
		t.Fatalf("expected ErrMissingSwapInstruction, got %v", err)
	}
	stored, _, _ := h.state.SessionGet(session.ID)
	if stored.Status != StatusPending {
		t.Fatalf("session must stay pending, got %s", stored.Status)
	}
}

func TestFinalizeInsufficientOutput(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 2_000_000)
	h.fundAndDeposit(t, session)

	// 500k + 500k settled < 2M requested.
	if _, err := h.engine.Finalize(context.Background(), h.finalizeRequest(session)); !errors.Is(err, ErrInsufficientOutput) {
		t.Fatalf("expected ErrInsufficientOutput, got %v", err)
	}
	stored, _, _ := h.state.SessionGet(session.ID)
	if stored.Status != StatusPending {
		t.Fatalf("session must stay pending, got %s", stored.Status)
	}
}

func TestFinalizeSwapFailureLeavesPending(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 1_000_000)
	h.fundAndDeposit(t, session)
	h.venue.FailPair("SOL", "USDC", fmt.Errorf("venue offline"))

	if _, err := h.engine.Finalize(context.Background(), h.finalizeRequest(session)); !errors.Is(err, swap.ErrSwapFailed) {
		t.Fatalf("expected ErrSwapFailed, got %v", err)
	}
	stored, _, _ := h.state.SessionGet(session.ID)
	if stored.Status != StatusPending {
		t.Fatalf("session must stay pending after venue failure, got %s", stored.Status)
	}

	// Retry succeeds once the venue recovers; the engine performed no
	// implicit retry of its own.
	h.venue.FailPair("SOL", "USDC", nil)
	if _, err := h.engine.Finalize(context.Background(), h.finalizeRequest(session)); err != nil {
		t.Fatalf("retry finalize: %v", err)
	}
}

func TestFinalizeRouteTokenMismatch(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 1_000_000)
	h.fundAndDeposit(t, session)

	req := h.finalizeRequest(session)
	req.RouteTokens = []string{"", "USDT"}
	if _, err := h.engine.Finalize(context.Background(), req); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
}

func TestFinalizeRouteAccountExhaustion(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 1_000_000)
	h.fundAndDeposit(t, session)

	req := h.finalizeRequest(session)
	req.VenueAccounts = []string{"venue-a"}
	if _, err := h.engine.Finalize(context.Background(), req); !errors.Is(err, swap.ErrBadRouteAccounts) {
		t.Fatalf("expected ErrBadRouteAccounts, got %v", err)
	}
}

func TestFinalizeTokenNotAccepted(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 1_000_000)
	h.fundAndDeposit(t, session)

	// Merchant re-registers without USDC; the in-flight session keeps its
	// preferred token but finalize now refuses settlement.
	if err := h.state.MerchantPut(&registry.Merchant{
		Address:        h.mrchnt,
		AcceptedTokens: []string{"USDT"},
		FallbackToken:  "USDT",
	}); err != nil {
		t.Fatalf("re-register merchant: %v", err)
	}
	if _, err := h.engine.Finalize(context.Background(), h.finalizeRequest(session)); !errors.Is(err, ErrTokenNotAccepted) {
		t.Fatalf("expected ErrTokenNotAccepted, got %v", err)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.CreateSession(h.payer, h.mrchnt, "USDC", nil, 1, 1); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for empty splits, got %v", err)
	}
	if _, err := h.engine.CreateSession(h.payer, h.mrchnt, "USDC", []SplitToken{{Token: "USDC", Amount: 1}}, 0, 1); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for zero total, got %v", err)
	}
	if _, err := h.engine.CreateSession(h.payer, h.other, "USDC", []SplitToken{{Token: "USDC", Amount: 1}}, 1, 1); !errors.Is(err, registry.ErrMerchantNotFound) {
		t.Fatalf("expected ErrMerchantNotFound, got %v", err)
	}
	if _, err := h.engine.CreateSession(h.payer, h.mrchnt, "USDC", []SplitToken{{Token: "USDC", Amount: 1}}, 1, 9); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.engine.CreateSession(h.payer, h.mrchnt, "USDC", []SplitToken{{Token: "USDC", Amount: 1}}, 1, 9); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func TestDepositValidation(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 1_000_000)
	h.state.Credit(h.payer, "USDT", 10)
	h.state.Credit(h.other, "USDC", 10)

	if err := h.engine.Deposit(session.ID, h.payer, "USDT", 10); !errors.Is(err, ErrUnexpectedToken) {
		t.Fatalf("expected ErrUnexpectedToken, got %v", err)
	}
	if err := h.engine.Deposit(session.ID, h.payer, "USDC", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := h.engine.Deposit(session.ID, h.other, "USDC", 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.Deposit(session.ID, h.payer, "USDC", 1_000_000); err == nil {
		t.Fatal("expected insufficient balance error")
	}
	var missing [32]byte
	if err := h.engine.Deposit(missing, h.payer, "USDC", 10); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDepositRepeatable(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 1_000_000)
	h.state.Credit(h.payer, "USDC", 300)
	for i := 0; i < 3; i++ {
		if err := h.engine.Deposit(session.ID, h.payer, "USDC", 100); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}
	bal, err := h.engine.EscrowBalance(session.ID, "USDC")
	if err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	if bal != 300 {
		t.Fatalf("expected escrow 300, got %d", bal)
	}
}

func TestCancelRefundsPartialDeposits(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 1_000_000)
	h.state.Credit(h.payer, "SOL", 400_000)
	if err := h.engine.Deposit(session.ID, h.payer, "SOL", 400_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := h.engine.Cancel(session.ID, h.payer); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	payerBal, _ := h.state.BalanceOf(h.payer, "SOL")
	if payerBal != 400_000 {
		t.Fatalf("expected full refund, payer has %d", payerBal)
	}
	for _, token := range []string{"USDC", "SOL"} {
		bal, _ := h.state.BalanceOf(EscrowAuthority(session.ID), token)
		if bal != 0 {
			t.Fatalf("escrow %s balance %d after cancel", token, bal)
		}
	}
	stored, _, _ := h.state.SessionGet(session.ID)
	if stored.Status != StatusCancelled {
		t.Fatalf("expected Cancelled, got %s", stored.Status)
	}

	if err := h.engine.Cancel(session.ID, h.payer); !errors.Is(err, ErrSessionNotPending) {
		t.Fatalf("expected ErrSessionNotPending on second cancel, got %v", err)
	}
	payerBal, _ = h.state.BalanceOf(h.payer, "SOL")
	if payerBal != 400_000 {
		t.Fatalf("second cancel changed refund: %d", payerBal)
	}
}

func TestCancelUnauthorized(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 1_000_000)
	if err := h.engine.Cancel(session.ID, h.other); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCancelAfterFinalizeFails(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 1_000_000)
	h.fundAndDeposit(t, session)
	if _, err := h.engine.Finalize(context.Background(), h.finalizeRequest(session)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := h.engine.Cancel(session.ID, h.payer); !errors.Is(err, ErrSessionNotPending) {
		t.Fatalf("expected ErrSessionNotPending, got %v", err)
	}
}

func TestWithdrawFees(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t, 1_000_000)
	h.fundAndDeposit(t, session)
	if _, err := h.engine.Finalize(context.Background(), h.finalizeRequest(session)); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if err := h.engine.WithdrawFees(h.admin, "USDC", 2_000); err == nil {
		t.Fatal("expected withdrawal above sink balance to fail")
	}
	if err := h.engine.WithdrawFees(h.admin, "USDC", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := h.engine.WithdrawFees(h.admin, "USDC", 600); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	adminBal, _ := h.state.BalanceOf(h.admin, "USDC")
	if adminBal != 600 {
		t.Fatalf("admin balance %d, want 600", adminBal)
	}
	remaining, err := h.engine.FeeSinkBalance("USDC")
	if err != nil {
		t.Fatalf("fee sink balance: %v", err)
	}
	if remaining != 400 {
		t.Fatalf("fee sink remaining %d, want 400", remaining)
	}
}

func TestFinalizeWithOnlyPreferredDeposits(t *testing.T) {
	h := newHarness(t)
	session, err := h.engine.CreateSession(h.payer, h.mrchnt, "USDC", []SplitToken{
		{Token: "USDC", Amount: 1_000_000},
	}, 1_000_000, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.state.Credit(h.payer, "USDC", 1_000_000)
	if err := h.engine.Deposit(session.ID, h.payer, "USDC", 1_000_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	receipt, err := h.engine.Finalize(context.Background(), FinalizeRequest{
		SessionID:       session.ID,
		Caller:          h.payer,
		Merchant:        h.mrchnt,
		SettlementToken: "usdc",
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if receipt.Gross != 1_000_000 || receipt.Fee != 1_000 || receipt.Net != 999_000 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}
