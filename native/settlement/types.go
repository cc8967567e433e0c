package settlement

import (
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"splitpay/native/common"
)

// MaxSplitTokens bounds the number of deposit instructions a session may
// carry.
const MaxSplitTokens = 5

// SessionStatus represents the lifecycle states of a payment session. The
// machine only moves forward: Pending is the sole non-terminal state.
type SessionStatus uint8

const (
	StatusPending SessionStatus = iota
	StatusCompleted
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition may leave the status.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s SessionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// SplitToken is one deposit instruction: the token the payer intends to
// deposit and the amount requested for it. Both are fixed at creation.
type SplitToken struct {
	Token  string
	Amount uint64
}

// PaymentSession captures the immutable parameters and runtime status of a
// single payer-to-merchant payment. The identifier is the keccak256 hash of
// the payer, merchant and a caller-supplied nonce, ensuring deterministic IDs.
type PaymentSession struct {
	ID             [32]byte
	Payer          [20]byte
	Merchant       [20]byte
	PreferredToken string
	SplitTokens    []SplitToken
	TotalRequested uint64
	Status         SessionStatus
	Nonce          uint64
	CreatedAt      int64
}

// Clone returns a deep copy of the session so callers can safely mutate the
// copy without affecting the stored instance.
func (s *PaymentSession) Clone() *PaymentSession {
	if s == nil {
		return nil
	}
	clone := *s
	clone.SplitTokens = append([]SplitToken(nil), s.SplitTokens...)
	return &clone
}

// EscrowTokens returns the distinct token set a session may hold in escrow:
// every split token plus the preferred settlement token.
func (s *PaymentSession) EscrowTokens() []string {
	seen := make(map[string]struct{}, len(s.SplitTokens)+1)
	tokens := make([]string, 0, len(s.SplitTokens)+1)
	for _, split := range s.SplitTokens {
		if _, ok := seen[split.Token]; ok {
			continue
		}
		seen[split.Token] = struct{}{}
		tokens = append(tokens, split.Token)
	}
	if _, ok := seen[s.PreferredToken]; !ok {
		tokens = append(tokens, s.PreferredToken)
	}
	return tokens
}

// SanitizeSession validates and canonicalises a session record, returning a
// cloned instance with normalised token symbols. The original is not mutated.
func SanitizeSession(s *PaymentSession) (*PaymentSession, error) {
	if s == nil {
		return nil, fmt.Errorf("settlement: nil session")
	}
	if s.Payer == ([20]byte{}) {
		return nil, fmt.Errorf("settlement: payer address required")
	}
	if s.Merchant == ([20]byte{}) {
		return nil, fmt.Errorf("settlement: merchant address required")
	}
	if len(s.SplitTokens) == 0 {
		return nil, fmt.Errorf("settlement: split token list must not be empty")
	}
	if len(s.SplitTokens) > MaxSplitTokens {
		return nil, fmt.Errorf("settlement: split token list exceeds %d entries", MaxSplitTokens)
	}
	if s.TotalRequested == 0 {
		return nil, fmt.Errorf("settlement: total requested must be positive")
	}
	if !s.Status.Valid() {
		return nil, fmt.Errorf("settlement: invalid status %d", s.Status)
	}
	clone := s.Clone()
	preferred, err := common.NormalizeToken(clone.PreferredToken)
	if err != nil {
		return nil, fmt.Errorf("settlement: %w", err)
	}
	clone.PreferredToken = preferred
	for i, split := range clone.SplitTokens {
		token, err := common.NormalizeToken(split.Token)
		if err != nil {
			return nil, fmt.Errorf("settlement: %w", err)
		}
		if split.Amount == 0 {
			return nil, fmt.Errorf("settlement: split amount for %s must be positive", token)
		}
		clone.SplitTokens[i].Token = token
	}
	return clone, nil
}

// SessionID derives the deterministic identifier for a (payer, merchant,
// nonce) triple.
func SessionID(payer, merchant [20]byte, nonce uint64) [32]byte {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(payer[:], merchant[:], nonceBytes[:]))
	return id
}

// EscrowAuthority derives the custody account bound to a session. Funds held
// under this address move only through the settlement engine; no private key
// exists for it.
func EscrowAuthority(sessionID [32]byte) [20]byte {
	hash := ethcrypto.Keccak256([]byte("escrow-authority"), sessionID[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// FeeSinkAddress derives the protocol-level custody account that accumulates
// settlement fees. Its lifecycle is independent of any session.
func FeeSinkAddress() [20]byte {
	hash := ethcrypto.Keccak256([]byte("fee-sink"))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}
