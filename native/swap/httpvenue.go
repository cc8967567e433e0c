package swap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPVenue calls an external swap venue over HTTP. The venue receives the
// source/destination pair, the escrow authority that signs the conversion, the
// venue account slice and the opaque route payload; it replies with the
// destination amount it credited.
type HTTPVenue struct {
	client   HTTPDoer
	endpoint string
	apiKey   string
	timeout  time.Duration
}

const defaultVenueTimeout = 10 * time.Second

// NewHTTPVenue constructs a venue client. When the client is nil
// http.DefaultClient is used. The API key is optional and only added to the
// request headers when supplied.
func NewHTTPVenue(client HTTPDoer, endpoint, apiKey string) (*HTTPVenue, error) {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		return nil, fmt.Errorf("swap: venue endpoint required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPVenue{client: client, endpoint: ep, apiKey: strings.TrimSpace(apiKey), timeout: defaultVenueTimeout}, nil
}

type venueSwapRequest struct {
	SourceToken      string   `json:"sourceToken"`
	SourceAmount     uint64   `json:"sourceAmount"`
	DestinationToken string   `json:"destinationToken"`
	Authority        string   `json:"authority"`
	RouteAccounts    []string `json:"routeAccounts,omitempty"`
	Payload          string   `json:"payload,omitempty"`
}

type venueSwapResponse struct {
	DestinationAmount uint64 `json:"destinationAmount"`
}

// Swap implements the Venue interface with a single bounded remote call.
func (v *HTTPVenue) Swap(ctx context.Context, req Request) (Result, error) {
	if v == nil {
		return Result{}, fmt.Errorf("%w: venue not configured", ErrSwapFailed)
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	body, err := json.Marshal(venueSwapRequest{
		SourceToken:      req.SourceToken,
		SourceAmount:     req.SourceAmount,
		DestinationToken: req.DestinationToken,
		Authority:        hex.EncodeToString(req.EscrowAuthority[:]),
		RouteAccounts:    req.RouteAccounts,
		Payload:          base64.StdEncoding.EncodeToString(req.Payload),
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode request: %s", ErrSwapFailed, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrSwapFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		httpReq.Header.Set("x-api-key", v.apiKey)
	}
	resp, err := v.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrSwapFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrSwapFailed, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	var payload venueSwapResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("%w: decode: %s", ErrSwapFailed, err)
	}
	return Result{DestinationAmount: payload.DestinationAmount}, nil
}
