package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"splitpay/core/events"
	"splitpay/native/common"
	"splitpay/native/registry"
	"splitpay/native/swap"
)

var (
	errNilState = errors.New("settlement engine: state not configured")
	errNilVenue = errors.New("settlement engine: swap venue not configured")
)

type engineState interface {
	SessionPut(*PaymentSession) error
	SessionGet(id [32]byte) (*PaymentSession, bool, error)
	MerchantGet(addr [20]byte) (*registry.Merchant, bool, error)
	BalanceOf(addr [20]byte, token string) (uint64, error)
	Transfer(from, to [20]byte, token string, amount uint64) error
	Credit(addr [20]byte, token string, amount uint64) error
	Debit(addr [20]byte, token string, amount uint64) error
}

// Engine orchestrates the payment session lifecycle: creation, escrow
// deposits, settlement via the swap venue, and cancellation refunds. Every
// fund movement out of a session's escrow is authorized by the session's
// derived custody authority, which only the engine can exercise.
//
// The engine performs no locking and no rollback of its own. The caller is
// expected to run each operation against a transactional state (see
// storage.Overlay) and commit only on success, which yields the
// all-or-nothing finalize contract.
type Engine struct {
	state   engineState
	venue   swap.Venue
	emitter events.Emitter
	fees    FeePolicy
	nowFn   func() int64
}

// NewEngine creates a settlement engine with the default fee policy and a
// no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		fees:    DefaultFeePolicy(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetVenue configures the external swap venue.
func (e *Engine) SetVenue(venue swap.Venue) { e.venue = venue }

// SetFeePolicy overrides the protocol fee constants. Must be called before
// the engine serves traffic; the policy is not synchronised.
func (e *Engine) SetFeePolicy(policy FeePolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	e.fees = policy
	return nil
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) loadSession(id [32]byte) (*PaymentSession, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	session, ok, err := e.state.SessionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// CreateSession validates and persists a new payment session in Pending
// status. No funds move. The merchant must already be registered; the
// preferred token's membership in the merchant's accepted set is checked at
// finalize, not here, so a later re-registration cannot strand the session.
func (e *Engine) CreateSession(payer, merchant [20]byte, preferredToken string, splits []SplitToken, totalRequested uint64, nonce uint64) (*PaymentSession, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	session := &PaymentSession{
		Payer:          payer,
		Merchant:       merchant,
		PreferredToken: preferredToken,
		SplitTokens:    splits,
		TotalRequested: totalRequested,
		Status:         StatusPending,
		Nonce:          nonce,
		CreatedAt:      e.nowFn(),
	}
	sanitized, err := SanitizeSession(session)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	if _, ok, err := e.state.MerchantGet(merchant); err != nil {
		return nil, err
	} else if !ok {
		return nil, registry.ErrMerchantNotFound
	}
	sanitized.ID = SessionID(payer, merchant, nonce)
	if _, ok, err := e.state.SessionGet(sanitized.ID); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrSessionExists
	}
	if err := e.state.SessionPut(sanitized); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.SessionCreated{
		Session:        sanitized.ID,
		Payer:          sanitized.Payer,
		Merchant:       sanitized.Merchant,
		PreferredToken: sanitized.PreferredToken,
		SplitCount:     len(sanitized.SplitTokens),
		TotalRequested: sanitized.TotalRequested,
	})
	return sanitized.Clone(), nil
}

// Deposit moves amount of token from the payer's balance into the session's
// escrow custody. The payer authorizes each deposit explicitly; there is no
// implicit pull. Deposits may arrive in any order and any number of calls
// while the session is pending.
func (e *Engine) Deposit(id [32]byte, caller [20]byte, token string, amount uint64) error {
	session, err := e.loadSession(id)
	if err != nil {
		return err
	}
	if session.Status != StatusPending {
		return ErrSessionNotPending
	}
	if caller != session.Payer {
		return ErrUnauthorized
	}
	normalized, err := common.NormalizeToken(token)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnexpectedToken, err)
	}
	part := false
	for _, split := range session.SplitTokens {
		if split.Token == normalized {
			part = true
			break
		}
	}
	if !part {
		return ErrUnexpectedToken
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if err := e.state.Transfer(session.Payer, EscrowAuthority(session.ID), normalized, amount); err != nil {
		return err
	}
	e.emitter.Emit(events.Deposited{
		Session: session.ID,
		Payer:   session.Payer,
		Token:   normalized,
		Amount:  amount,
	})
	return nil
}

// FinalizeRequest carries the caller-supplied settlement inputs. Route
// payloads, tokens and account counts are positional with the session's split
// entries; VenueAccounts is the flat account list routes consume from.
type FinalizeRequest struct {
	SessionID          [32]byte
	Caller             [20]byte
	Merchant           [20]byte
	SettlementToken    string
	RouteTokens        []string
	RoutePayloads      [][]byte
	RouteAccountCounts []int
	VenueAccounts      []string
}

// SettlementReceipt reports the outcome of a successful finalize.
type SettlementReceipt struct {
	ReceiptID string
	Session   [32]byte
	Gross     uint64
	Fee       uint64
	Net       uint64
}

// splitResolver converts one split entry's escrow holdings into the preferred
// settlement token.
type splitResolver interface {
	resolve(ctx context.Context, engine *Engine, session *PaymentSession, split SplitToken) error
}

// passThroughResolver handles splits already denominated in the preferred
// token: the deposit sits in the escrow's preferred balance and simply counts
// toward the settled total.
type passThroughResolver struct{}

func (passThroughResolver) resolve(context.Context, *Engine, *PaymentSession, SplitToken) error {
	return nil
}

// venueResolver swaps the full escrow balance of the split token into the
// preferred token through the external venue.
type venueResolver struct {
	instruction *swap.RouteInstruction
	accounts    []string
}

func (r venueResolver) resolve(ctx context.Context, e *Engine, session *PaymentSession, split SplitToken) error {
	escrow := EscrowAuthority(session.ID)
	balance, err := e.state.BalanceOf(escrow, split.Token)
	if err != nil {
		return err
	}
	if balance == 0 {
		// Nothing deposited for this split; the slippage floor decides
		// whether the settlement can still proceed.
		return nil
	}
	result, err := e.venue.Swap(ctx, swap.Request{
		SourceToken:      split.Token,
		SourceAmount:     balance,
		DestinationToken: session.PreferredToken,
		EscrowAuthority:  escrow,
		RouteAccounts:    r.accounts,
		Payload:          r.instruction.Payload,
	})
	if err != nil {
		return err
	}
	if err := e.state.Debit(escrow, split.Token, balance); err != nil {
		return err
	}
	return e.state.Credit(escrow, session.PreferredToken, result.DestinationAmount)
}

func (e *Engine) buildResolvers(session *PaymentSession, req FinalizeRequest) ([]splitResolver, error) {
	cursor := swap.NewAccountCursor(req.VenueAccounts)
	resolvers := make([]splitResolver, len(session.SplitTokens))
	for i, split := range session.SplitTokens {
		if split.Token == session.PreferredToken {
			resolvers[i] = passThroughResolver{}
			continue
		}
		if i >= len(req.RoutePayloads) || len(req.RoutePayloads[i]) == 0 {
			return nil, ErrMissingSwapInstruction
		}
		if i < len(req.RouteTokens) && req.RouteTokens[i] != "" {
			routeToken, err := common.NormalizeToken(req.RouteTokens[i])
			if err != nil {
				return nil, fmt.Errorf("%w: %s", ErrTokenMismatch, err)
			}
			if routeToken != split.Token {
				return nil, ErrTokenMismatch
			}
		}
		accountCount := 0
		if i < len(req.RouteAccountCounts) {
			accountCount = req.RouteAccountCounts[i]
		}
		instruction, err := swap.ParseInstruction(split.Token, accountCount, req.RoutePayloads[i])
		if err != nil {
			return nil, err
		}
		accounts, err := cursor.Take(instruction.AccountCount)
		if err != nil {
			return nil, err
		}
		resolvers[i] = venueResolver{instruction: instruction, accounts: accounts}
	}
	return resolvers, nil
}

// Finalize settles a pending session: it resolves every split entry into the
// preferred token, enforces the slippage floor, deducts the protocol fee into
// the fee sink, and pays the net amount to the merchant. On success the
// session transitions to Completed. On any failure the session stays Pending
// and the caller's transactional state must discard all intermediate writes.
func (e *Engine) Finalize(ctx context.Context, req FinalizeRequest) (*SettlementReceipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.venue == nil {
		return nil, errNilVenue
	}
	session, err := e.loadSession(req.SessionID)
	if err != nil {
		return nil, err
	}
	// Precondition order is part of the contract: status, payer identity,
	// merchant identity, settlement token.
	if session.Status != StatusPending {
		return nil, ErrWrongStatus
	}
	if req.Caller != session.Payer {
		return nil, ErrUnauthorized
	}
	if req.Merchant != session.Merchant {
		return nil, ErrMerchantMismatch
	}
	settlementToken, err := common.NormalizeToken(req.SettlementToken)
	if err != nil || settlementToken != session.PreferredToken {
		return nil, ErrPreferredMismatch
	}
	merchant, ok, err := e.state.MerchantGet(session.Merchant)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, registry.ErrMerchantNotFound
	}
	if !merchant.Accepts(session.PreferredToken) {
		return nil, ErrTokenNotAccepted
	}

	resolvers, err := e.buildResolvers(session, req)
	if err != nil {
		return nil, err
	}
	for i, split := range session.SplitTokens {
		if err := resolvers[i].resolve(ctx, e, session, split); err != nil {
			return nil, err
		}
	}

	escrow := EscrowAuthority(session.ID)
	gross, err := e.state.BalanceOf(escrow, session.PreferredToken)
	if err != nil {
		return nil, err
	}
	if gross < session.TotalRequested {
		return nil, ErrInsufficientOutput
	}
	fee, net, err := e.fees.Apply(gross)
	if err != nil {
		return nil, err
	}
	if fee > 0 {
		if err := e.state.Transfer(escrow, FeeSinkAddress(), session.PreferredToken, fee); err != nil {
			return nil, err
		}
	}
	if net > 0 {
		if err := e.state.Transfer(escrow, session.Merchant, session.PreferredToken, net); err != nil {
			return nil, err
		}
	}
	session.Status = StatusCompleted
	if err := e.state.SessionPut(session); err != nil {
		return nil, err
	}
	receipt := &SettlementReceipt{
		ReceiptID: uuid.NewString(),
		Session:   session.ID,
		Gross:     gross,
		Fee:       fee,
		Net:       net,
	}
	e.emitter.Emit(events.PaymentFinalized{
		Session:        session.ID,
		Payer:          session.Payer,
		Merchant:       session.Merchant,
		PreferredToken: session.PreferredToken,
		Gross:          gross,
		Fee:            fee,
		Net:            net,
		ReceiptID:      receipt.ReceiptID,
	})
	return receipt, nil
}

// Cancel refunds whatever escrow balances the session currently holds back to
// the payer and transitions the session to Cancelled. Partial deposits are
// refunded as-is; the requested split amounts play no role here.
func (e *Engine) Cancel(id [32]byte, caller [20]byte) error {
	session, err := e.loadSession(id)
	if err != nil {
		return err
	}
	if session.Status != StatusPending {
		return ErrSessionNotPending
	}
	if caller != session.Payer {
		return ErrUnauthorized
	}
	escrow := EscrowAuthority(session.ID)
	refunds := make(map[string]uint64)
	for _, token := range session.EscrowTokens() {
		balance, err := e.state.BalanceOf(escrow, token)
		if err != nil {
			return err
		}
		if balance == 0 {
			continue
		}
		if err := e.state.Transfer(escrow, session.Payer, token, balance); err != nil {
			return err
		}
		refunds[token] = balance
	}
	session.Status = StatusCancelled
	if err := e.state.SessionPut(session); err != nil {
		return err
	}
	e.emitter.Emit(events.PaymentCancelled{
		Session: session.ID,
		Payer:   session.Payer,
		Refunds: refunds,
	})
	return nil
}

// WithdrawFees sweeps amount of token from the fee sink to the admin account.
// Caller authentication happens at the RPC surface; the engine only enforces
// the balance and amount invariants.
func (e *Engine) WithdrawFees(admin [20]byte, token string, amount uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	normalized, err := common.NormalizeToken(token)
	if err != nil {
		return fmt.Errorf("settlement: %w", err)
	}
	if err := e.state.Transfer(FeeSinkAddress(), admin, normalized, amount); err != nil {
		return err
	}
	e.emitter.Emit(events.FeesWithdrawn{
		Admin:  admin,
		Token:  normalized,
		Amount: amount,
	})
	return nil
}

// Session loads a session record by id.
func (e *Engine) Session(id [32]byte) (*PaymentSession, error) {
	return e.loadSession(id)
}

// EscrowBalance reports the amount of token currently held in a session's
// escrow custody.
func (e *Engine) EscrowBalance(id [32]byte, token string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	normalized, err := common.NormalizeToken(token)
	if err != nil {
		return 0, fmt.Errorf("settlement: %w", err)
	}
	return e.state.BalanceOf(EscrowAuthority(id), normalized)
}

// FeeSinkBalance reports the accumulated protocol fees for a token.
func (e *Engine) FeeSinkBalance(token string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	normalized, err := common.NormalizeToken(token)
	if err != nil {
		return 0, fmt.Errorf("settlement: %w", err)
	}
	return e.state.BalanceOf(FeeSinkAddress(), normalized)
}
