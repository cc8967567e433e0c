package swap

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestStaticVenueConvertsAtRate(t *testing.T) {
	venue := NewStaticVenue()
	venue.SetRate("SOL", "USDC", Rate{Numerator: 999, Denominator: 1000})
	result, err := venue.Swap(context.Background(), Request{
		SourceToken:      "SOL",
		SourceAmount:     1_000_000,
		DestinationToken: "USDC",
	})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if result.DestinationAmount != 999_000 {
		t.Fatalf("expected 999000, got %d", result.DestinationAmount)
	}
}

func TestStaticVenueUnknownPair(t *testing.T) {
	venue := NewStaticVenue()
	_, err := venue.Swap(context.Background(), Request{SourceToken: "SOL", DestinationToken: "USDC"})
	if !errors.Is(err, ErrSwapFailed) {
		t.Fatalf("expected ErrSwapFailed, got %v", err)
	}
}

func TestStaticVenueForcedFailure(t *testing.T) {
	venue := NewStaticVenue()
	venue.SetRate("SOL", "USDC", Rate{Numerator: 1, Denominator: 1})
	venue.FailPair("SOL", "USDC", fmt.Errorf("venue unavailable"))
	if _, err := venue.Swap(context.Background(), Request{SourceToken: "SOL", DestinationToken: "USDC"}); !errors.Is(err, ErrSwapFailed) {
		t.Fatalf("expected ErrSwapFailed, got %v", err)
	}
	venue.FailPair("SOL", "USDC", nil)
	if _, err := venue.Swap(context.Background(), Request{SourceToken: "SOL", SourceAmount: 5, DestinationToken: "USDC"}); err != nil {
		t.Fatalf("expected cleared failure, got %v", err)
	}
}

func TestStaticVenueLargeAmounts(t *testing.T) {
	venue := NewStaticVenue()
	venue.SetRate("SOL", "USDC", Rate{Numerator: 3, Denominator: 2})
	result, err := venue.Swap(context.Background(), Request{
		SourceToken:      "SOL",
		SourceAmount:     1 << 62,
		DestinationToken: "USDC",
	})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	want := uint64(3 << 61)
	if result.DestinationAmount != want {
		t.Fatalf("expected %d, got %d", want, result.DestinationAmount)
	}
}
