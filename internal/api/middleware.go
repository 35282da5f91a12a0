package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Error types reported in the "type" field of the error envelope.
const (
	typeAuth       = "authentication_error"
	typeInvalid    = "invalid_request_error"
	typeNotFound   = "not_found_error"
	typeConflict   = "conflict_error"
	typeGeneration = "generation_error"
	typeInternal   = "api_error"
)

// errorBody is the value of the top-level "error" key on failed replies.
type errorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// BearerAuth rejects requests that do not carry the given bearer token. An
// empty token rejects everything.
func BearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				fail(w, http.StatusUnauthorized, typeAuth, "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// accessLog writes one debug line per request with its chi request id.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.LogAttrs(r.Context(), slog.LevelDebug, "http request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("took", time.Since(start)),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response", "error", err)
	}
}

func writeErrorBody(w http.ResponseWriter, code int, body errorBody) {
	writeJSON(w, code, struct {
		Error errorBody `json:"error"`
	}{body})
}

func fail(w http.ResponseWriter, code int, kind, format string, args ...any) {
	writeErrorBody(w, code, errorBody{Message: fmt.Sprintf(format, args...), Type: kind})
}
