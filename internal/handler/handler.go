// Package handler exposes the task assignment services over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"github.com/hiroki-koketsu/task-assignment/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/task-assignment/internal/handler")

// KindUnauthenticated is reported for a missing or invalid bearer token.
const KindUnauthenticated model.ErrorKind = "unauthenticated"

type errorBody struct {
	Error      string          `json:"error"`
	Kind       model.ErrorKind `json:"kind"`
	Dependency *model.TaskRef  `json:"dependency,omitempty"`
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusUnprocessableEntity
	case model.KindAuthorization:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindBlocked, model.KindInvalidTransition, model.KindConflict:
		return http.StatusConflict
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError maps a service error to its status code and body. Storage
// failures are logged and reported without their cause.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	ctx := r.Context()
	kind := model.KindOf(err)
	status := statusFor(kind)
	body := errorBody{Error: err.Error(), Kind: kind}

	var blocked *model.BlockedError
	if errors.As(err, &blocked) {
		body.Dependency = &model.TaskRef{
			ID:     blocked.DependencyID,
			Name:   blocked.DependencyName,
			Status: blocked.DependencyStatus,
		}
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("error.kind", string(kind)))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "request failed", slog.Any("error", err))
		body.Error = "internal server error"
	} else {
		logger.WarnContext(ctx, "request rejected",
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
	}
	respondJSON(w, status, body)
}

func respondStatus(w http.ResponseWriter, status int, kind model.ErrorKind, message string) {
	respondJSON(w, status, errorBody{Error: message, Kind: kind})
}

// decode reads a JSON body into v, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) bool {
	return decodeBody(w, r, logger, v, false)
}

// decodeOptional is decode for endpoints that accept an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) bool {
	return decodeBody(w, r, logger, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any, optional bool) bool {
	if r.Body == nil {
		if optional {
			return true
		}
		respondStatus(w, http.StatusBadRequest, model.KindValidation, "invalid request body")
		return false
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return true
	}
	if err != nil {
		logger.WarnContext(r.Context(), "invalid request body", slog.Any("error", err))
		respondStatus(w, http.StatusBadRequest, model.KindValidation, "invalid request body")
		return false
	}
	return true
}

// Health returns a health check response.
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics records the request counter and duration histogram per matched
// route.
func Metrics(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if m == nil {
				return
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := metric.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
			)
			m.RequestCounter.Add(r.Context(), 1, attrs)
			m.RequestDuration.Record(r.Context(), time.Since(start).Seconds(), attrs)
		})
	}
}
