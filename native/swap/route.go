package swap

import (
	"encoding/binary"
	"errors"
	"fmt"

	"splitpay/native/common"
)

var (
	// ErrBadRouteData is returned when a route payload blob is malformed.
	ErrBadRouteData = errors.New("swap: bad route data")
	// ErrBadRouteAccounts is returned when a route consumes more venue
	// accounts than the caller supplied.
	ErrBadRouteAccounts = errors.New("swap: missing or bad route accounts")
)

// RouteInstruction is the validated form of one opaque route payload. The
// wire format mirrors the venue convention: a little-endian u16 length prefix
// followed by exactly that many payload bytes. AccountCount states how many
// entries of the shared venue account list this route consumes.
type RouteInstruction struct {
	SourceToken  string
	AccountCount int
	Payload      []byte
}

// ParseInstruction validates a length-prefixed route blob for the given
// source token and account budget.
func ParseInstruction(sourceToken string, accountCount int, blob []byte) (*RouteInstruction, error) {
	token, err := common.NormalizeToken(sourceToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadRouteData, err)
	}
	if accountCount < 0 {
		return nil, fmt.Errorf("%w: negative account count", ErrBadRouteAccounts)
	}
	if len(blob) < 2 {
		return nil, fmt.Errorf("%w: blob shorter than length prefix", ErrBadRouteData)
	}
	payloadLen := int(binary.LittleEndian.Uint16(blob[:2]))
	if len(blob) < 2+payloadLen {
		return nil, fmt.Errorf("%w: declared %d payload bytes, found %d", ErrBadRouteData, payloadLen, len(blob)-2)
	}
	return &RouteInstruction{
		SourceToken:  token,
		AccountCount: accountCount,
		Payload:      append([]byte(nil), blob[2:2+payloadLen]...),
	}, nil
}

// EncodeInstruction produces the wire form of a route payload. It is the
// inverse of ParseInstruction and is used by clients and tests.
func EncodeInstruction(payload []byte) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return nil, fmt.Errorf("%w: payload exceeds u16 length prefix", ErrBadRouteData)
	}
	blob := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(blob[:2], uint16(len(payload)))
	copy(blob[2:], payload)
	return blob, nil
}

// AccountCursor walks a flat, caller-supplied venue account list as routes
// consume their declared slices positionally.
type AccountCursor struct {
	accounts []string
	offset   int
}

// NewAccountCursor wraps the shared account list supplied with finalize.
func NewAccountCursor(accounts []string) *AccountCursor {
	return &AccountCursor{accounts: accounts}
}

// Take consumes the next n accounts, failing when the list is exhausted.
func (c *AccountCursor) Take(n int) ([]string, error) {
	if n < 0 || c.offset+n > len(c.accounts) {
		return nil, ErrBadRouteAccounts
	}
	slice := c.accounts[c.offset : c.offset+n]
	c.offset += n
	return slice, nil
}

// Remaining reports how many accounts have not been consumed yet.
func (c *AccountCursor) Remaining() int {
	return len(c.accounts) - c.offset
}
