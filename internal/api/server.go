package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "intel-registry/internal/errors"
	"intel-registry/internal/identity"
	"intel-registry/internal/observability/metrics"
	"intel-registry/internal/registry"
	"intel-registry/pkg/logger"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 1000
	maxBodyBytes       = 64 << 10
)

// Registry 是 API 依赖的登记簿能力，*registry.Registry 满足该接口。
type Registry interface {
	RegisterProof(ctx context.Context, call registry.Call, req registry.RegisterRequest) (registry.ProofCommitment, error)
	Attest(ctx context.Context, call registry.Call, req registry.AttestRequest) (registry.AttestResult, error)
	RefuteProof(ctx context.Context, call registry.Call, req registry.RefuteRequest) (registry.ProofCommitment, error)
	GetProof(ctx context.Context, proofID string) (registry.ProofCommitment, error)
	GetProofWithAttestations(ctx context.Context, proofID string) (registry.ProofWithAttestations, error)
	GetIntelProofs(ctx context.Context, intelHash string) ([]registry.ProofCommitment, error)
	GetSourceStats(ctx context.Context, sourceHash string) (registry.SourceStats, error)
	GetSourceReputation(ctx context.Context, sourceHash string) (uint8, error)
	VerifyCommitment(ctx context.Context, proofID, commitment string) (bool, error)
	GetRecentProofs(ctx context.Context, limit int) ([]registry.ProofCommitment, error)
	GetStats(ctx context.Context) (registry.Totals, error)
	Owner() string
}

// Options 配置 HTTP 服务。
type Options struct {
	Address         string
	IdentityHeader  string
	Metrics         *metrics.Recorder
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RateLimit 限制每个调用方每秒的变更请求数，0 表示不限制。
	RateLimit float64
	RateBurst int
}

// Server 负责暴露登记簿的 REST 接口。
type Server struct {
	opts     Options
	registry Registry
	log      *slog.Logger
	limiter  *callerLimiter
	handler  http.Handler
}

// NewServer 构造 API 服务实例。
func NewServer(reg Registry, opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{opts: opts, registry: reg, log: logger.Named("api")}
	if opts.RateLimit > 0 {
		s.limiter = newCallerLimiter(opts.RateLimit, opts.RateBurst)
	}
	s.handler = s.routes()
	return s
}

// Handler 返回带身份中间件的完整路由，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "POST /api/v1/proofs", "register_proof", s.handleRegister)
	s.handle(mux, "GET /api/v1/proofs", "recent_proofs", s.handleRecent)
	s.handle(mux, "GET /api/v1/proofs/{id}", "get_proof", s.handleGetProof)
	s.handle(mux, "GET /api/v1/proofs/{id}/attestations", "get_attestations", s.handleGetAttestations)
	s.handle(mux, "POST /api/v1/proofs/{id}/attestations", "attest", s.handleAttest)
	s.handle(mux, "POST /api/v1/proofs/{id}/refute", "refute_proof", s.handleRefute)
	s.handle(mux, "POST /api/v1/proofs/{id}/verify", "verify_commitment", s.handleVerify)
	s.handle(mux, "GET /api/v1/intel/{hash}/proofs", "intel_proofs", s.handleIntelProofs)
	s.handle(mux, "GET /api/v1/sources/{hash}/stats", "source_stats", s.handleSourceStats)
	s.handle(mux, "GET /api/v1/sources/{hash}/reputation", "source_reputation", s.handleSourceReputation)
	s.handle(mux, "GET /api/v1/stats", "registry_stats", s.handleStats)
	s.handle(mux, "GET /api/v1/owner", "owner", s.handleOwner)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}

	return identity.Middleware(identity.MiddlewareConfig{Header: s.opts.IdentityHeader})(mux)
}

// handle 注册路由并记录请求指标，变更请求按调用方限速。
func (s *Server) handle(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	mutating := strings.HasPrefix(pattern, http.MethodPost+" ")
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		if mutating && s.limiter != nil && !s.limiter.allow(s.call(r).Caller) {
			writeError(sw, xerrors.New(CodeRateLimited, ""))
		} else {
			h(sw, r)
		}
		s.opts.Metrics.ObserveHTTPRequest(name, r.Method, sw.status, time.Since(start))
	}))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Address,
		Handler:           withContext(ctx, s.handler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("address", s.opts.Address))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) call(r *http.Request) registry.Call {
	caller, _ := identity.CallerFromContext(r.Context())
	return registry.Call{Caller: caller}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registry.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	proof, err := s.registry.RegisterProof(r.Context(), s.call(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proof)
}

type attestBody struct {
	Confidence int    `json:"confidence"`
	Note       string `json:"note,omitempty"`
}

func (s *Server) handleAttest(w http.ResponseWriter, r *http.Request) {
	var body attestBody
	if !decodeBody(w, r, &body) {
		return
	}
	req := registry.AttestRequest{ProofID: r.PathValue("id"), Confidence: body.Confidence, Note: body.Note}
	result, err := s.registry.Attest(r.Context(), s.call(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type refuteBody struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRefute(w http.ResponseWriter, r *http.Request) {
	var body refuteBody
	if !decodeBody(w, r, &body) {
		return
	}
	proof, err := s.registry.RefuteProof(r.Context(), s.call(r), registry.RefuteRequest{ProofID: r.PathValue("id"), Reason: body.Reason})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

// VerifyRequest 是承诺核对请求体。
type VerifyRequest struct {
	Commitment string `json:"commitment"`
}

// VerifyResponse 是承诺核对结果。
type VerifyResponse struct {
	ProofID string `json:"proof_id"`
	Valid   bool   `json:"valid"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body VerifyRequest
	if !decodeBody(w, r, &body) {
		return
	}
	id := r.PathValue("id")
	ok, err := s.registry.VerifyCommitment(r.Context(), id, body.Commitment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{ProofID: id, Valid: ok})
}

func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	proof, err := s.registry.GetProof(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

func (s *Server) handleGetAttestations(w http.ResponseWriter, r *http.Request) {
	full, err := s.registry.GetProofWithAttestations(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, full)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, xerrors.New(xerrors.CodeInvalidFormat, "limit must be a non-negative integer"))
			return
		}
		limit = min(parsed, maxRecentLimit)
	}
	proofs, err := s.registry.GetRecentProofs(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proofs)
}

func (s *Server) handleIntelProofs(w http.ResponseWriter, r *http.Request) {
	proofs, err := s.registry.GetIntelProofs(r.Context(), r.PathValue("hash"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proofs)
}

func (s *Server) handleSourceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.GetSourceStats(r.Context(), r.PathValue("hash"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ReputationResponse 是来源信誉查询结果。
type ReputationResponse struct {
	SourceHash string `json:"source_hash"`
	Reputation uint8  `json:"reputation"`
}

func (s *Server) handleSourceReputation(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	score, err := s.registry.GetSourceReputation(r.Context(), hash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReputationResponse{SourceHash: hash, Reputation: score})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	totals, err := s.registry.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleOwner(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"owner": s.registry.Owner()})
}

// ErrorResponse 是所有失败响应的 JSON 结构。
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Code: string(xerrors.CodeUnknown), Message: err.Error()}
	if coded, ok := xerrors.From(err); ok {
		resp = ErrorResponse{Code: string(coded.Code()), Message: coded.Message()}
	}
	writeJSON(w, xerrors.HTTPStatusOf(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidFormat, err, "请求体解析失败: "+err.Error()))
		return false
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
