package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"splitpay/crypto"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError       = -32700
	codeInvalidRequest   = -32600
	codeMethodNotFound   = -32601
	codeInvalidParams    = -32602
	codeServerError      = -32000
	codeUnauthorized     = -32001
	codeNotFound         = -32004
	codeConflict         = -32009
	codeRateLimited      = -32020
	codeSettlementFailed = -32030
)

// RPCRequest is the JSON-RPC 2.0 request envelope. Parameters are positional;
// every method takes a single object in params[0].
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// RPCResponse is the JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError carries a failed call's code and context.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Amounts cross the wire as decimal strings so 64-bit base units survive
// JSON number handling in every client.
func parseAmount(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("amount required")
	}
	amount, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Array(), nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.PayPrefix, addr[:]).String()
}

func parseSessionID(raw string) ([32]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 32 {
		return [32]byte{}, fmt.Errorf("invalid session id %q", raw)
	}
	var id [32]byte
	copy(id[:], decoded)
	return id, nil
}

func formatSessionID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func parseHexPayload(raw string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload")
	}
	return decoded, nil
}
