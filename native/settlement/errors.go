package settlement

import "errors"

var (
	// ErrInvalidConfig is returned when session creation parameters violate
	// the split or amount constraints.
	ErrInvalidConfig = errors.New("settlement: invalid session configuration")
	// ErrSessionExists is returned when the derived session identifier is
	// already bound to a different definition.
	ErrSessionExists = errors.New("settlement: session already exists")
	// ErrSessionNotFound is returned when no session record matches the id.
	ErrSessionNotFound = errors.New("settlement: session not found")
	// ErrReceiptNotFound is returned when no receipt record matches the id.
	ErrReceiptNotFound = errors.New("settlement: receipt not found")
	// ErrSessionNotPending is returned by deposit and cancel when the session
	// has already reached a terminal status.
	ErrSessionNotPending = errors.New("settlement: session is not pending")
	// ErrWrongStatus is returned by finalize when the session has already
	// reached a terminal status.
	ErrWrongStatus = errors.New("settlement: session in wrong status")
	// ErrUnauthorized is returned when the caller is not the session payer.
	ErrUnauthorized = errors.New("settlement: unauthorized")
	// ErrMerchantMismatch is returned when the supplied merchant does not
	// match the session merchant.
	ErrMerchantMismatch = errors.New("settlement: merchant mismatch")
	// ErrPreferredMismatch is returned when the supplied settlement token
	// does not match the session's preferred token.
	ErrPreferredMismatch = errors.New("settlement: preferred token mismatch")
	// ErrTokenNotAccepted is returned when the preferred token is not in the
	// merchant's registered accepted set at finalize time.
	ErrTokenNotAccepted = errors.New("settlement: preferred token not accepted by merchant")
	// ErrUnexpectedToken is returned when a deposit names a token outside the
	// session's split set.
	ErrUnexpectedToken = errors.New("settlement: token not part of session")
	// ErrInvalidAmount is returned when a deposit or withdrawal amount is not
	// positive.
	ErrInvalidAmount = errors.New("settlement: amount must be positive")
	// ErrInsufficientOutput is returned when the settled amount is below the
	// session's slippage floor.
	ErrInsufficientOutput = errors.New("settlement: insufficient output after swaps")
	// ErrMathOverflow is returned when fee arithmetic overflows 64 bits.
	ErrMathOverflow = errors.New("settlement: math overflow")
	// ErrMissingSwapInstruction is returned when a non-preferred split entry
	// has no corresponding route payload.
	ErrMissingSwapInstruction = errors.New("settlement: missing swap instruction")
	// ErrTokenMismatch is returned when a route instruction names a source
	// token different from its split entry.
	ErrTokenMismatch = errors.New("settlement: route source token mismatch")
)
