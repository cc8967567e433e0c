package swap

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseInstructionRoundTrip(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	blob, err := EncodeInstruction(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	inst, err := ParseInstruction("usdc", 3, blob)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if inst.SourceToken != "USDC" {
		t.Fatalf("unexpected source token %s", inst.SourceToken)
	}
	if inst.AccountCount != 3 {
		t.Fatalf("unexpected account count %d", inst.AccountCount)
	}
	if !bytes.Equal(inst.Payload, payload) {
		t.Fatalf("payload mismatch: %x", inst.Payload)
	}
}

func TestParseInstructionEmptyPayload(t *testing.T) {
	blob, err := EncodeInstruction(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	inst, err := ParseInstruction("SOL", 0, blob)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(inst.Payload) != 0 {
		t.Fatalf("expected empty payload, got %x", inst.Payload)
	}
}

func TestParseInstructionRejectsShortBlob(t *testing.T) {
	if _, err := ParseInstruction("USDC", 0, []byte{0x01}); !errors.Is(err, ErrBadRouteData) {
		t.Fatalf("expected ErrBadRouteData, got %v", err)
	}
}

func TestParseInstructionRejectsTruncatedPayload(t *testing.T) {
	// Declares 4 payload bytes but carries 2.
	blob := []byte{0x04, 0x00, 0xAA, 0xBB}
	if _, err := ParseInstruction("USDC", 0, blob); !errors.Is(err, ErrBadRouteData) {
		t.Fatalf("expected ErrBadRouteData, got %v", err)
	}
}

func TestParseInstructionRejectsBadToken(t *testing.T) {
	blob, _ := EncodeInstruction([]byte{0x01})
	if _, err := ParseInstruction("", 0, blob); !errors.Is(err, ErrBadRouteData) {
		t.Fatalf("expected ErrBadRouteData, got %v", err)
	}
}

func TestAccountCursorConsumesPositionally(t *testing.T) {
	cursor := NewAccountCursor([]string{"a", "b", "c", "d"})
	first, err := cursor.Take(2)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if first[0] != "a" || first[1] != "b" {
		t.Fatalf("unexpected slice %v", first)
	}
	second, err := cursor.Take(2)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if second[0] != "c" || second[1] != "d" {
		t.Fatalf("unexpected slice %v", second)
	}
	if cursor.Remaining() != 0 {
		t.Fatalf("expected exhausted cursor, %d remaining", cursor.Remaining())
	}
}

func TestAccountCursorExhaustion(t *testing.T) {
	cursor := NewAccountCursor([]string{"a"})
	if _, err := cursor.Take(2); !errors.Is(err, ErrBadRouteAccounts) {
		t.Fatalf("expected ErrBadRouteAccounts, got %v", err)
	}
}
