package registry

import (
	"errors"
	"fmt"
	"time"

	"splitpay/core/events"
)

var (
	errNilState = errors.New("registry engine: state not configured")

	// ErrInvalidConfig is returned when a registration request violates the
	// accepted-token constraints.
	ErrInvalidConfig = errors.New("registry: invalid merchant configuration")
	// ErrMerchantNotFound is returned when no record exists for the address.
	ErrMerchantNotFound = errors.New("registry: merchant not found")
)

type engineState interface {
	MerchantPut(*Merchant) error
	MerchantGet(addr [20]byte) (*Merchant, bool, error)
}

// Engine wires merchant registration with external state and event emission.
// Registration is idempotent in the overwrite sense: a second registration for
// the same address replaces the stored record. In-flight payment sessions are
// unaffected because they capture the preferred token by value at creation.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a registry engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for record timestamps. Primarily
// intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Register validates and persists the merchant settlement preferences,
// overwriting any prior record for the address.
func (e *Engine) Register(merchant [20]byte, acceptedTokens []string, fallbackToken string) (*Merchant, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record := &Merchant{
		Address:        merchant,
		AcceptedTokens: acceptedTokens,
		FallbackToken:  fallbackToken,
		UpdatedAt:      e.nowFn(),
	}
	sanitized, err := SanitizeMerchant(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}
	if err := e.state.MerchantPut(sanitized); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.MerchantRegistered{
		Merchant:       sanitized.Address,
		AcceptedTokens: append([]string(nil), sanitized.AcceptedTokens...),
		FallbackToken:  sanitized.FallbackToken,
	})
	return sanitized.Clone(), nil
}

// Get loads the registered settlement preferences for the merchant address.
func (e *Engine) Get(merchant [20]byte) (*Merchant, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, ok, err := e.state.MerchantGet(merchant)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMerchantNotFound
	}
	return record.Clone(), nil
}
