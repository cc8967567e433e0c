package events

import (
	"encoding/hex"
	"strconv"
	"strings"

	"splitpay/core/types"
)

const (
	// TypeMerchantRegistered is emitted when a merchant registers or replaces
	// its accepted token configuration.
	TypeMerchantRegistered = "registry.merchant_registered"
	// TypeSessionCreated is emitted when a payment session enters Pending.
	TypeSessionCreated = "payments.session_created"
	// TypeDeposited is emitted for every escrow deposit credited to a session.
	TypeDeposited = "payments.deposited"
	// TypePaymentFinalized is emitted once after a successful settlement.
	TypePaymentFinalized = "payments.finalized"
	// TypePaymentCancelled is emitted when a pending session is refunded.
	TypePaymentCancelled = "payments.cancelled"
	// TypeFeesWithdrawn is emitted when the protocol admin sweeps the fee sink.
	TypeFeesWithdrawn = "fees.withdrawn"
)

// MerchantRegistered records a merchant configuration write.
type MerchantRegistered struct {
	Merchant       [20]byte
	AcceptedTokens []string
	FallbackToken  string
}

// EventType satisfies the events.Event interface.
func (MerchantRegistered) EventType() string { return TypeMerchantRegistered }

// Event converts the payload into its wire representation.
func (e MerchantRegistered) Event() *types.Event {
	return &types.Event{Type: TypeMerchantRegistered, Attributes: map[string]string{
		"merchant":       hex.EncodeToString(e.Merchant[:]),
		"acceptedTokens": strings.Join(e.AcceptedTokens, ","),
		"fallbackToken":  e.FallbackToken,
	}}
}

// SessionCreated records the immutable parameters of a new payment session.
type SessionCreated struct {
	Session        [32]byte
	Payer          [20]byte
	Merchant       [20]byte
	PreferredToken string
	SplitCount     int
	TotalRequested uint64
}

// EventType satisfies the events.Event interface.
func (SessionCreated) EventType() string { return TypeSessionCreated }

// Event converts the payload into its wire representation.
func (e SessionCreated) Event() *types.Event {
	return &types.Event{Type: TypeSessionCreated, Attributes: map[string]string{
		"session":        hex.EncodeToString(e.Session[:]),
		"payer":          hex.EncodeToString(e.Payer[:]),
		"merchant":       hex.EncodeToString(e.Merchant[:]),
		"preferredToken": e.PreferredToken,
		"splitCount":     strconv.Itoa(e.SplitCount),
		"totalRequested": strconv.FormatUint(e.TotalRequested, 10),
	}}
}

// Deposited records an escrow credit for one split token.
type Deposited struct {
	Session [32]byte
	Payer   [20]byte
	Token   string
	Amount  uint64
}

// EventType satisfies the events.Event interface.
func (Deposited) EventType() string { return TypeDeposited }

// Event converts the payload into its wire representation.
func (e Deposited) Event() *types.Event {
	return &types.Event{Type: TypeDeposited, Attributes: map[string]string{
		"session": hex.EncodeToString(e.Session[:]),
		"payer":   hex.EncodeToString(e.Payer[:]),
		"token":   e.Token,
		"amount":  strconv.FormatUint(e.Amount, 10),
	}}
}

// PaymentFinalized is the audit record for a completed settlement.
type PaymentFinalized struct {
	Session        [32]byte
	Payer          [20]byte
	Merchant       [20]byte
	PreferredToken string
	Gross          uint64
	Fee            uint64
	Net            uint64
	ReceiptID      string
}

// EventType satisfies the events.Event interface.
func (PaymentFinalized) EventType() string { return TypePaymentFinalized }

// Event converts the payload into its wire representation.
func (e PaymentFinalized) Event() *types.Event {
	attrs := map[string]string{
		"session":        hex.EncodeToString(e.Session[:]),
		"payer":          hex.EncodeToString(e.Payer[:]),
		"merchant":       hex.EncodeToString(e.Merchant[:]),
		"preferredToken": e.PreferredToken,
		"gross":          strconv.FormatUint(e.Gross, 10),
		"fee":            strconv.FormatUint(e.Fee, 10),
		"net":            strconv.FormatUint(e.Net, 10),
	}
	if receipt := strings.TrimSpace(e.ReceiptID); receipt != "" {
		attrs["receiptId"] = receipt
	}
	return &types.Event{Type: TypePaymentFinalized, Attributes: attrs}
}

// PaymentCancelled records the refunds issued when a session is abandoned.
type PaymentCancelled struct {
	Session [32]byte
	Payer   [20]byte
	Refunds map[string]uint64
}

// EventType satisfies the events.Event interface.
func (PaymentCancelled) EventType() string { return TypePaymentCancelled }

// Event converts the payload into its wire representation.
func (e PaymentCancelled) Event() *types.Event {
	attrs := map[string]string{
		"session": hex.EncodeToString(e.Session[:]),
		"payer":   hex.EncodeToString(e.Payer[:]),
	}
	for token, amount := range e.Refunds {
		attrs["refund."+token] = strconv.FormatUint(amount, 10)
	}
	return &types.Event{Type: TypePaymentCancelled, Attributes: attrs}
}

// FeesWithdrawn records an admin sweep of accumulated protocol fees.
type FeesWithdrawn struct {
	Admin  [20]byte
	Token  string
	Amount uint64
}

// EventType satisfies the events.Event interface.
func (FeesWithdrawn) EventType() string { return TypeFeesWithdrawn }

// Event converts the payload into its wire representation.
func (e FeesWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeFeesWithdrawn, Attributes: map[string]string{
		"admin":  hex.EncodeToString(e.Admin[:]),
		"token":  e.Token,
		"amount": strconv.FormatUint(e.Amount, 10),
	}}
}
