package registry

import (
	"fmt"

	"splitpay/native/common"
)

// MaxAcceptedTokens bounds the accepted token set a merchant may register.
const MaxAcceptedTokens = 5

// Merchant captures the settlement preferences registered for a merchant
// account: the token set it accepts and the fallback token used when a payer
// does not state a preference. Records are immutable except through
// re-registration, which overwrites the stored record wholesale.
type Merchant struct {
	Address        [20]byte
	AcceptedTokens []string
	FallbackToken  string
	UpdatedAt      int64
}

// Clone returns a deep copy of the merchant record so callers can safely
// mutate the copy without affecting the stored instance.
func (m *Merchant) Clone() *Merchant {
	if m == nil {
		return nil
	}
	clone := *m
	clone.AcceptedTokens = append([]string(nil), m.AcceptedTokens...)
	return &clone
}

// Accepts reports whether the merchant accepts settlement in the given token.
// The token must already be in canonical form.
func (m *Merchant) Accepts(token string) bool {
	if m == nil {
		return false
	}
	for _, accepted := range m.AcceptedTokens {
		if accepted == token {
			return true
		}
	}
	return false
}

// SanitizeMerchant validates and canonicalises a merchant record, returning a
// cloned instance with normalised token symbols. The original is not mutated.
func SanitizeMerchant(m *Merchant) (*Merchant, error) {
	if m == nil {
		return nil, fmt.Errorf("registry: nil merchant")
	}
	if m.Address == ([20]byte{}) {
		return nil, fmt.Errorf("registry: merchant address required")
	}
	if len(m.AcceptedTokens) == 0 {
		return nil, fmt.Errorf("registry: accepted token set must not be empty")
	}
	if len(m.AcceptedTokens) > MaxAcceptedTokens {
		return nil, fmt.Errorf("registry: accepted token set exceeds %d entries", MaxAcceptedTokens)
	}
	clone := m.Clone()
	seen := make(map[string]struct{}, len(clone.AcceptedTokens))
	for i, raw := range clone.AcceptedTokens {
		token, err := common.NormalizeToken(raw)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		if _, dup := seen[token]; dup {
			return nil, fmt.Errorf("registry: duplicate accepted token %s", token)
		}
		seen[token] = struct{}{}
		clone.AcceptedTokens[i] = token
	}
	fallback, err := common.NormalizeToken(clone.FallbackToken)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if _, ok := seen[fallback]; !ok {
		return nil, fmt.Errorf("registry: fallback token %s not in accepted set", fallback)
	}
	clone.FallbackToken = fallback
	return clone, nil
}
