package settlement

import (
	"fmt"
	"math/bits"
)

// Protocol fee defaults: 10 bps of the settled gross amount (0.10%).
const (
	DefaultFeeBps   uint64 = 10
	DefaultBpsDenom uint64 = 10_000
)

// FeePolicy holds the protocol fee constants. The policy is loaded once from
// configuration at process start and treated as immutable afterwards.
type FeePolicy struct {
	FeeBps   uint64
	BpsDenom uint64
}

// DefaultFeePolicy returns the protocol default of 10/10000.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{FeeBps: DefaultFeeBps, BpsDenom: DefaultBpsDenom}
}

// Validate checks the policy invariants: a positive denominator and a fee
// that can never exceed the gross amount.
func (p FeePolicy) Validate() error {
	if p.BpsDenom == 0 {
		return fmt.Errorf("settlement: fee denominator must be positive")
	}
	if p.FeeBps > p.BpsDenom {
		return fmt.Errorf("settlement: fee bps %d exceeds denominator %d", p.FeeBps, p.BpsDenom)
	}
	return nil
}

// Apply computes the protocol fee and merchant net for a settled gross
// amount using checked 64-bit arithmetic. fee + net == gross always holds on
// success; multiplication overflow surfaces as ErrMathOverflow and aborts the
// finalize attempt without touching session state.
func (p FeePolicy) Apply(gross uint64) (fee, net uint64, err error) {
	if err := p.Validate(); err != nil {
		return 0, 0, err
	}
	hi, lo := bits.Mul64(gross, p.FeeBps)
	if hi != 0 {
		return 0, 0, ErrMathOverflow
	}
	fee = lo / p.BpsDenom
	// fee <= gross because FeeBps <= BpsDenom, so the subtraction is safe.
	return fee, gross - fee, nil
}
