package identity

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	loggerpkg "intel-registry/pkg/logger"
)

// DefaultHeader 是默认的可信身份请求头。
const DefaultHeader = "X-Caller-Identity"

// maxIdentityLength 限制身份字符串长度。
const maxIdentityLength = 256

// MiddlewareConfig 配置身份中间件。
type MiddlewareConfig struct {
	// Header 为网关写入已认证身份的请求头。
	Header string
	// RequiredMethods 列出必须携带身份的 HTTP 方法，默认仅 POST。
	RequiredMethods []string
	// Logger 为访问审计日志，默认 logger.Audit()。
	Logger *slog.Logger
}

// Middleware 返回读取可信身份头的 HTTP 中间件。
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	header := cfg.Header
	if header == "" {
		header = DefaultHeader
	}
	required := make(map[string]struct{})
	methods := cfg.RequiredMethods
	if len(methods) == 0 {
		methods = []string{http.MethodPost}
	}
	for _, m := range methods {
		required[strings.ToUpper(m)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := cfg.Logger
			if logger == nil {
				logger = loggerpkg.Audit()
			}

			caller := strings.TrimSpace(r.Header.Get(header))
			if caller != "" && !validIdentity(caller) {
				deny(w, r, logger, http.StatusBadRequest, "malformed caller identity")
				return
			}
			if _, ok := required[r.Method]; ok && caller == "" {
				deny(w, r, logger, http.StatusUnauthorized, "missing caller identity")
				return
			}

			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r.WithContext(WithCaller(r.Context(), caller)))
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				return
			}
			logger.Info("api_request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", aw.status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("caller", caller),
			)
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, reason string) {
	http.Error(w, http.StatusText(status), status)
	logger.Warn("access_denied",
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status", status),
		slog.String("error", reason),
	)
}

func validIdentity(id string) bool {
	if len(id) > maxIdentityLength {
		return false
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

type auditWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
