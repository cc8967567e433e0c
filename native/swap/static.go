package swap

import (
	"context"
	"fmt"
	"math/bits"
	"sync"
)

// StaticVenue is an in-process venue that converts at configured integer
// rates. It backs development deployments and engine tests; production
// deployments point the engine at an HTTPVenue instead.
type StaticVenue struct {
	mu    sync.RWMutex
	rates map[string]Rate
	fail  map[string]error
}

// Rate expresses a conversion as numerator/denominator applied to the source
// amount. A USDC->USDT rate of 999/1000 converts 1_000_000 into 999_000.
type Rate struct {
	Numerator   uint64
	Denominator uint64
}

// NewStaticVenue creates an empty venue; pairs convert only once a rate has
// been set.
func NewStaticVenue() *StaticVenue {
	return &StaticVenue{
		rates: make(map[string]Rate),
		fail:  make(map[string]error),
	}
}

func pairKey(source, destination string) string {
	return source + "->" + destination
}

// SetRate configures the conversion rate for a token pair.
func (v *StaticVenue) SetRate(source, destination string, rate Rate) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rates[pairKey(source, destination)] = rate
}

// FailPair forces subsequent swaps of the pair to return the supplied error.
// Passing nil clears the failure.
func (v *StaticVenue) FailPair(source, destination string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err == nil {
		delete(v.fail, pairKey(source, destination))
		return
	}
	v.fail[pairKey(source, destination)] = err
}

// Swap implements the Venue interface.
func (v *StaticVenue) Swap(_ context.Context, req Request) (Result, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	key := pairKey(req.SourceToken, req.DestinationToken)
	if err, ok := v.fail[key]; ok {
		return Result{}, fmt.Errorf("%w: %s", ErrSwapFailed, err)
	}
	rate, ok := v.rates[key]
	if !ok {
		return Result{}, fmt.Errorf("%w: no route for %s", ErrSwapFailed, key)
	}
	if rate.Denominator == 0 {
		return Result{}, fmt.Errorf("%w: zero rate denominator for %s", ErrSwapFailed, key)
	}
	hi, lo := bits.Mul64(req.SourceAmount, rate.Numerator)
	if hi >= rate.Denominator {
		return Result{}, fmt.Errorf("%w: conversion overflow for %s", ErrSwapFailed, key)
	}
	quotient, _ := bits.Div64(hi, lo, rate.Denominator)
	return Result{DestinationAmount: quotient}, nil
}
