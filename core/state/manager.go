package state

import (
	"errors"
	"fmt"
	"math/bits"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"splitpay/native/registry"
	"splitpay/native/settlement"
	"splitpay/storage"
)

// ErrInsufficientBalance is returned when a debit or transfer exceeds the
// source account's balance for the token.
var ErrInsufficientBalance = errors.New("state: insufficient balance")

// Manager persists sessions, merchant records, receipts and token balances in
// a key-value database. It implements the state interfaces the settlement and
// registry engines operate against. Callers that need transactional semantics
// hand the manager a storage.Overlay and commit it themselves.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager backed by the given database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	sessionPrefix  = []byte("payments/session/")
	receiptPrefix  = []byte("payments/receipt/")
	merchantPrefix = []byte("registry/merchant/")
	balancePrefix  = []byte("balance/")
)

func sessionKey(id [32]byte) []byte {
	return ethcrypto.Keccak256(sessionPrefix, id[:])
}

func receiptKey(id string) []byte {
	return ethcrypto.Keccak256(receiptPrefix, []byte(id))
}

func merchantKey(addr [20]byte) []byte {
	return ethcrypto.Keccak256(merchantPrefix, addr[:])
}

func balanceKey(addr [20]byte, token string) []byte {
	return ethcrypto.Keccak256(balancePrefix, []byte(token), []byte(":"), addr[:])
}

// storedSession mirrors settlement.PaymentSession with RLP-friendly field
// types. Timestamps are stored as unsigned seconds.
type storedSession struct {
	ID             [32]byte
	Payer          [20]byte
	Merchant       [20]byte
	PreferredToken string
	SplitTokens    []storedSplit
	TotalRequested uint64
	Status         uint8
	Nonce          uint64
	CreatedAt      uint64
}

type storedSplit struct {
	Token  string
	Amount uint64
}

type storedMerchant struct {
	Address        [20]byte
	AcceptedTokens []string
	FallbackToken  string
	UpdatedAt      uint64
}

type storedReceipt struct {
	ReceiptID string
	Session   [32]byte
	Gross     uint64
	Fee       uint64
	Net       uint64
}

// SessionPut writes a payment session record.
func (m *Manager) SessionPut(session *settlement.PaymentSession) error {
	if session == nil {
		return fmt.Errorf("state: nil session")
	}
	stored := storedSession{
		ID:             session.ID,
		Payer:          session.Payer,
		Merchant:       session.Merchant,
		PreferredToken: session.PreferredToken,
		SplitTokens:    make([]storedSplit, len(session.SplitTokens)),
		TotalRequested: session.TotalRequested,
		Status:         uint8(session.Status),
		Nonce:          session.Nonce,
		CreatedAt:      uint64(session.CreatedAt),
	}
	for i, split := range session.SplitTokens {
		stored.SplitTokens[i] = storedSplit{Token: split.Token, Amount: split.Amount}
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode session: %w", err)
	}
	return m.db.Put(sessionKey(session.ID), encoded)
}

// SessionGet loads a payment session record by id.
func (m *Manager) SessionGet(id [32]byte) (*settlement.PaymentSession, bool, error) {
	data, err := m.db.Get(sessionKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored storedSession
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, fmt.Errorf("state: decode session: %w", err)
	}
	session := &settlement.PaymentSession{
		ID:             stored.ID,
		Payer:          stored.Payer,
		Merchant:       stored.Merchant,
		PreferredToken: stored.PreferredToken,
		SplitTokens:    make([]settlement.SplitToken, len(stored.SplitTokens)),
		TotalRequested: stored.TotalRequested,
		Status:         settlement.SessionStatus(stored.Status),
		Nonce:          stored.Nonce,
		CreatedAt:      int64(stored.CreatedAt),
	}
	for i, split := range stored.SplitTokens {
		session.SplitTokens[i] = settlement.SplitToken{Token: split.Token, Amount: split.Amount}
	}
	return session, true, nil
}

// MerchantPut writes a merchant registry record.
func (m *Manager) MerchantPut(record *registry.Merchant) error {
	if record == nil {
		return fmt.Errorf("state: nil merchant")
	}
	stored := storedMerchant{
		Address:        record.Address,
		AcceptedTokens: append([]string(nil), record.AcceptedTokens...),
		FallbackToken:  record.FallbackToken,
		UpdatedAt:      uint64(record.UpdatedAt),
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode merchant: %w", err)
	}
	return m.db.Put(merchantKey(record.Address), encoded)
}

// MerchantGet loads a merchant registry record.
func (m *Manager) MerchantGet(addr [20]byte) (*registry.Merchant, bool, error) {
	data, err := m.db.Get(merchantKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored storedMerchant
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, fmt.Errorf("state: decode merchant: %w", err)
	}
	return &registry.Merchant{
		Address:        stored.Address,
		AcceptedTokens: stored.AcceptedTokens,
		FallbackToken:  stored.FallbackToken,
		UpdatedAt:      int64(stored.UpdatedAt),
	}, true, nil
}

// ReceiptPut writes a settlement receipt keyed by its identifier.
func (m *Manager) ReceiptPut(receipt *settlement.SettlementReceipt) error {
	if receipt == nil {
		return fmt.Errorf("state: nil receipt")
	}
	stored := storedReceipt{
		ReceiptID: receipt.ReceiptID,
		Session:   receipt.Session,
		Gross:     receipt.Gross,
		Fee:       receipt.Fee,
		Net:       receipt.Net,
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode receipt: %w", err)
	}
	return m.db.Put(receiptKey(receipt.ReceiptID), encoded)
}

// ReceiptGet loads a settlement receipt by identifier.
func (m *Manager) ReceiptGet(id string) (*settlement.SettlementReceipt, bool, error) {
	data, err := m.db.Get(receiptKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored storedReceipt
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, fmt.Errorf("state: decode receipt: %w", err)
	}
	return &settlement.SettlementReceipt{
		ReceiptID: stored.ReceiptID,
		Session:   stored.Session,
		Gross:     stored.Gross,
		Fee:       stored.Fee,
		Net:       stored.Net,
	}, true, nil
}

// BalanceOf reports the balance of token held by addr. A missing record reads
// as zero.
func (m *Manager) BalanceOf(addr [20]byte, token string) (uint64, error) {
	data, err := m.db.Get(balanceKey(addr, token))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var balance uint64
	if err := rlp.DecodeBytes(data, &balance); err != nil {
		return 0, fmt.Errorf("state: decode balance: %w", err)
	}
	return balance, nil
}

func (m *Manager) writeBalance(addr [20]byte, token string, balance uint64) error {
	if balance == 0 {
		err := m.db.Delete(balanceKey(addr, token))
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	encoded, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return fmt.Errorf("state: encode balance: %w", err)
	}
	return m.db.Put(balanceKey(addr, token), encoded)
}

// Credit increases addr's balance of token by amount.
func (m *Manager) Credit(addr [20]byte, token string, amount uint64) error {
	balance, err := m.BalanceOf(addr, token)
	if err != nil {
		return err
	}
	sum, carry := bits.Add64(balance, amount, 0)
	if carry != 0 {
		return settlement.ErrMathOverflow
	}
	return m.writeBalance(addr, token, sum)
}

// Debit decreases addr's balance of token by amount.
func (m *Manager) Debit(addr [20]byte, token string, amount uint64) error {
	balance, err := m.BalanceOf(addr, token)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientBalance, token, balance, amount)
	}
	return m.writeBalance(addr, token, balance-amount)
}

// Transfer moves amount of token from one account to another.
func (m *Manager) Transfer(from, to [20]byte, token string, amount uint64) error {
	if from == to {
		return nil
	}
	if err := m.Debit(from, token, amount); err != nil {
		return err
	}
	return m.Credit(to, token, amount)
}
