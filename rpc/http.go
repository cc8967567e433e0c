package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"splitpay/core"
	"splitpay/observability"
)

// Options configures the RPC server surface.
type Options struct {
	// AdminSecret signs and verifies the HS256 bearer tokens required by
	// privileged methods. Leaving it empty disables those methods entirely.
	AdminSecret []byte
	// RateLimitPerSecond caps the request rate; zero disables limiting.
	RateLimitPerSecond float64
	RateBurst          int
	// EnableFaucet exposes the dev-only funding method.
	EnableFaucet bool
	Logger       *slog.Logger
}

// Server exposes the settlement node over JSON-RPC 2.0.
type Server struct {
	node         *core.Node
	logger       *slog.Logger
	limiter      *rate.Limiter
	adminSecret  []byte
	enableFaucet bool
	metrics      interface {
		Observe(method string, status int, duration time.Duration)
		RecordThrottle(reason string)
	}
}

// NewServer creates an RPC server for the given node.
func NewServer(node *core.Node, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if opts.RateLimitPerSecond > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(opts.RateLimitPerSecond)
			if burst < 1 {
				burst = 1
			}
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitPerSecond), burst)
	}
	return &Server{
		node:         node,
		logger:       logger,
		limiter:      limiter,
		adminSecret:  opts.AdminSecret,
		enableFaucet: opts.EnableFaucet,
		metrics:      observability.RPCMetrics(),
	}
}

// Router builds the HTTP handler: the RPC endpoint plus health and metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Method(http.MethodPost, "/", otelhttp.NewHandler(http.HandlerFunc(s.handle), "rpc"))
	return r
}

// Start serves the router on addr and blocks until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() { _ = reader.Close() }()

	w.Header().Set("Content-Type", "application/json")

	if s.limiter != nil && !s.limiter.Allow() {
		s.metrics.RecordThrottle("rate_limit")
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "too many requests", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.dispatch(recorder, r, req)
	s.metrics.Observe(req.Method, recorder.status, time.Since(start))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "registry_register":
		s.handleRegistryRegister(w, req)
	case "registry_get":
		s.handleRegistryGet(w, req)
	case "payments_createSession":
		s.handleCreateSession(w, req)
	case "payments_deposit":
		s.handleDeposit(w, req)
	case "payments_finalize":
		s.handleFinalize(w, r, req)
	case "payments_cancel":
		s.handleCancel(w, req)
	case "payments_getSession":
		s.handleGetSession(w, req)
	case "payments_getReceipt":
		s.handleGetReceipt(w, req)
	case "fees_balance":
		s.handleFeeBalance(w, req)
	case "fees_withdraw":
		if authErr := s.requireAdmin(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleWithdrawFees(w, req)
	case "dev_fund":
		if !s.enableFaucet {
			writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not available", nil)
			return
		}
		s.handleFund(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

// statusRecorder captures the HTTP status written by a handler so request
// metrics can segment success from failure.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
