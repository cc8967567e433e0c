package swap

import (
	"context"
	"errors"
)

// ErrSwapFailed wraps venue call failures. The settlement engine surfaces it
// without retrying; callers re-invoke finalize while the session is pending.
var ErrSwapFailed = errors.New("swap: venue call failed")

// Request describes one conversion the venue is asked to perform. The payload
// is opaque routing data produced off-process by the finalize caller and is
// forwarded to the venue untouched.
type Request struct {
	SourceToken      string
	SourceAmount     uint64
	DestinationToken string
	EscrowAuthority  [20]byte
	RouteAccounts    []string
	Payload          []byte
}

// Result reports the destination amount the venue credited.
type Result struct {
	DestinationAmount uint64
}

// Venue is the narrow contract the settlement engine consumes. A single
// bounded call per split entry; failures are terminal for the attempt.
type Venue interface {
	Swap(ctx context.Context, req Request) (Result, error)
}
