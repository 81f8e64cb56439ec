package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"gmboard/native/leaderboard"
	"gmboard/observability"
	"gmboard/observability/metrics"
	telemetry "gmboard/observability/otel"
	"gmboard/services/journal"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	moduleName      = "leaderboard"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeForbidden      = -32003
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// HistoryReader serves journal queries.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Record, error)
	ByWallet(ctx context.Context, wallet [20]byte, limit int) ([]journal.Record, error)
}

// Config wires the server's collaborators.
type Config struct {
	Engine       *leaderboard.Engine
	History      HistoryReader
	HistoryLimit int
	Broadcaster  *Broadcaster
	Auth         AuthConfig
	RateLimit    RateLimitConfig

	// TrustedProxies lists peers (IPs or CIDRs) whose X-Forwarded-For header
	// identifies the client. TrustProxyHeaders trusts every peer.
	TrustedProxies    []string
	TrustProxyHeaders bool
	Logger            *slog.Logger
}

// Server exposes the leaderboard engine over JSON-RPC.
type Server struct {
	engine       *leaderboard.Engine
	history      HistoryReader
	historyLimit int
	broadcaster  *Broadcaster
	auth         *Authenticator
	limiter      *RateLimiter
	logger       *slog.Logger
	tracer       trace.Tracer
	metrics      *metrics.LeaderboardMetrics

	trustedProxies    []netip.Prefix
	trustProxyHeaders bool
}

// NewServer validates cfg and constructs a server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("rpc: engine required")
	}
	auth, err := NewAuthenticator(cfg.Auth)
	if err != nil {
		return nil, err
	}
	proxies, err := ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = 100
	}
	s := &Server{
		engine:       cfg.Engine,
		history:      cfg.History,
		historyLimit: limit,
		broadcaster:  cfg.Broadcaster,
		auth:         auth,
		limiter:      NewRateLimiter(cfg.RateLimit),
		logger:       logger,
		tracer:       telemetry.Tracer("gmboard/rpc"),
		metrics:      metrics.Leaderboard(),

		trustedProxies:    proxies,
		trustProxyHeaders: cfg.TrustProxyHeaders,
	}
	s.publishState()
	return s, nil
}

// Handler returns the HTTP surface: /rpc (and /), /healthz, /metrics and /ws.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	r.Post("/rpc", s.handle)
	if s.broadcaster != nil {
		r.Get("/ws", s.handleEventsWS)
	}
	return otelhttp.NewHandler(r, "leaderboardd.rpc")
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("rpc shutdown", slog.Any("error", err))
		}
	}()
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

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
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"lb_getLeaderboard":       s.handleGetLeaderboard,
		"lb_getLeaderboardLength": s.handleGetLeaderboardLength,
		"lb_getEntry":             s.handleGetEntry,
		"lb_isWhitelisted":        s.handleIsWhitelisted,
		"lb_status":               s.handleStatus,
		"lb_history":              s.handleHistory,
		"lb_submitScore":          s.limited(s.handleSubmitScore),
		"lb_addToWhitelist":       s.limited(s.handleAddToWhitelist),
		"lb_removeFromWhitelist":  s.limited(s.handleRemoveFromWhitelist),
		"lb_pauseSubmissions":     s.limited(s.handlePauseSubmissions),
	}
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

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
	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method), nil)
		return
	}

	start := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	ctx, span := s.tracer.Start(r.Context(), req.Method)
	handler(recorder, r.WithContext(ctx), req)
	span.End()
	observability.ModuleMetrics().Observe(moduleName, req.Method, recorder.status, time.Since(start))
}

// limited applies the per-client rate limit ahead of a mutating handler.
func (s *Server) limited(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		source := s.clientSource(r)
		if !s.limiter.Allow(source) {
			observability.ModuleMetrics().RecordThrottle(moduleName, "rate_limit")
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", source)
			return
		}
		next(w, r, req)
	}
}
