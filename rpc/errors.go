package rpc

import (
	"errors"
	"net/http"

	"splitpay/core/state"
	"splitpay/native/registry"
	"splitpay/native/settlement"
	"splitpay/native/swap"
)

// writeEngineError maps engine failures onto JSON-RPC error codes and HTTP
// statuses. Anything unrecognised is reported as a generic server error
// without leaking internals.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, settlement.ErrSessionNotFound),
		errors.Is(err, settlement.ErrReceiptNotFound),
		errors.Is(err, registry.ErrMerchantNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, err.Error(), nil)
	case errors.Is(err, settlement.ErrSessionExists),
		errors.Is(err, settlement.ErrSessionNotPending),
		errors.Is(err, settlement.ErrWrongStatus),
		errors.Is(err, settlement.ErrTokenNotAccepted):
		writeError(w, http.StatusConflict, id, codeConflict, err.Error(), nil)
	case errors.Is(err, settlement.ErrUnauthorized),
		errors.Is(err, settlement.ErrMerchantMismatch):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, settlement.ErrInvalidConfig),
		errors.Is(err, settlement.ErrPreferredMismatch),
		errors.Is(err, settlement.ErrUnexpectedToken),
		errors.Is(err, settlement.ErrInvalidAmount),
		errors.Is(err, settlement.ErrMissingSwapInstruction),
		errors.Is(err, settlement.ErrTokenMismatch),
		errors.Is(err, swap.ErrBadRouteData),
		errors.Is(err, swap.ErrBadRouteAccounts),
		errors.Is(err, registry.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, settlement.ErrInsufficientOutput),
		errors.Is(err, settlement.ErrMathOverflow),
		errors.Is(err, swap.ErrSwapFailed):
		writeError(w, http.StatusConflict, id, codeSettlementFailed, err.Error(), nil)
	case errors.Is(err, state.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, id, codeConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", nil)
	}
}
