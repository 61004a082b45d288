// Package http provides HTTP utilities including chi-compatible error handling
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
)

// HandlerFunc defines a function that returns an error for clean error handling
type HandlerFunc func(http.ResponseWriter, *http.Request) error

type loggerKey struct{}

// HandleError wraps an error-returning HandlerFunc into a standard http.HandlerFunc
// This allows using clean error-returning handlers with any router (chi, http.ServeMux, etc.)
//
// Usage with chi:
//
//	r.Post("/v1/transfers", http.HandleError(handler.create))
func HandleError(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			DefaultErrorHandler(w, r, err)
		}
	}
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// DefaultErrorHandler handles errors returned from HTTP handlers.
// Service errors carry their own status and code; anything else is logged
// with the request id and rendered as a generic internal error.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetReqID(r.Context())

	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) && svcErr.Category != apperrors.CategoryGeneralError {
		code := svcErr.Code
		if code == "" {
			code = apperrors.CodeInternal
		}
		WriteJSON(w, svcErr.StatusCode(), errorResponse{Error: errorBody{
			Code:      code,
			Message:   svcErr.Message,
			RequestID: reqID,
		}})
		return
	}

	LoggerFromContext(r.Context()).Error("unhandled request error",
		zap.String("request_id", reqID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))

	WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
		Code:      apperrors.CodeInternal,
		Message:   "Unexpected internal error.",
		RequestID: reqID,
	}})
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RequestLogger stores logger in the request context and logs every completed request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := context.WithValue(r.Context(), loggerKey{}, logger)

			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.Debug("request completed",
				zap.String("request_id", middleware.GetReqID(ctx)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// LoggerFromContext returns the request logger, or a no-op logger when none is set.
func LoggerFromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}
