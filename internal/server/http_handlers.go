package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"time"

	"jobcoach/internal/errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// getHealthCheckTimeout returns the configured health check timeout
func (s *Server) getHealthCheckTimeout() time.Duration {
	if s.AppConfig == nil || s.AppConfig.Observability.HealthCheck.Timeout <= 0 {
		return 5 * time.Second
	}
	return s.AppConfig.Observability.HealthCheck.Timeout
}

// healthHandler reports store, AI model and certificate status. A store
// failure or an expiring certificate makes the service unavailable; an
// unavailable AI model only degrades it, since sessions work without AI.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.getHealthCheckTimeout())
	defer cancel()

	response := map[string]any{
		"status":  "healthy",
		"service": "jobcoach",
		"version": s.Version,
	}
	statusCode := http.StatusOK

	if s.Store != nil {
		if stats, err := s.Store.Stats(ctx); err != nil {
			response["store"] = map[string]any{"healthy": false, "error": err.Error()}
			response["status"] = "unhealthy"
			statusCode = http.StatusServiceUnavailable
		} else {
			response["store"] = map[string]any{"healthy": true, "driver": stats.Driver}
		}
	}

	models := s.AI.ModelInfo(ctx)
	response["ai_models"] = models
	for _, info := range models {
		if !info.Available && response["status"] == "healthy" {
			response["status"] = "degraded"
		}
	}

	if s.Certs != nil {
		certStatus := s.Certs.Status()
		response["certificates"] = certStatus
		if healthy, _ := certStatus["healthy"].(bool); !healthy {
			response["status"] = "unhealthy"
			statusCode = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, statusCode, response)
}

// statsHandler provides server statistics including rate limiting info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "jobcoach",
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.MaxRequestSize,
		},
		"widgets": s.Registry.Load().Len(),
	}

	if s.Store != nil {
		if stats, err := s.Store.Stats(r.Context()); err != nil {
			s.Logger.LogError(err, "Failed to read store stats")
		} else {
			response["store"] = stats
		}
	}

	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{
			"enabled": false,
		}
	}

	if s.RateLimit != nil {
		response["rate_limit_config"] = map[string]any{
			"enabled":          s.RateLimit.Enabled,
			"requests_per_min": s.RateLimit.RequestsPerMin,
			"burst_capacity":   s.RateLimit.BurstCapacity,
			"by_ip":            s.RateLimit.ByIP,
			"by_api_key":       s.RateLimit.ByAPIKey,
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// registryHandler lists the registered widgets with their default layouts.
func (s *Server) registryHandler(w http.ResponseWriter, r *http.Request) {
	reg := s.Registry.Load()
	writeJSON(w, http.StatusOK, map[string]any{
		"widgets":        reg.Info(),
		"defaultLayouts": reg.DefaultLayouts(),
	})
}

// parseJSONRequest parses JSON request body into the provided struct
func parseJSONRequest(r *http.Request, v any) error {
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType != "application/json" {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "content-type must be application/json", nil)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if stderrors.As(err, &maxBytesErr) {
			return errors.NewValidationError(errors.ErrCodeInvalidRequest,
				fmt.Sprintf("request body too large (limit is %d bytes)", maxBytesErr.Limit), err)
		}
		return errors.NewIOError(errors.ErrCodeFileNotReadable, "failed to read request body", err)
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("Failed to close request body: %v", err)
		}
	}()

	if err := json.Unmarshal(body, v); err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat, "failed to parse JSON", err)
	}

	return nil
}

// statusFor maps an error to an HTTP status by its AppError type.
func statusFor(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeValidation:
		if errors.CodeOf(err) == errors.ErrCodeWidgetReadOnly {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeAI:
		switch errors.CodeOf(err) {
		case errors.ErrCodeAIUnavailable:
			return http.StatusServiceUnavailable
		case errors.ErrCodeAITimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusBadGateway
		}
	case errors.ErrorTypeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError logs err, records it on the request span and writes the
// mapped error response. Internal causes are not sent to clients.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	span := trace.SpanFromContext(r.Context())
	span.RecordError(err)
	span.SetStatus(codes.Error, string(errors.TypeOf(err)))
	span.SetAttributes(attribute.String("error.type", string(errors.TypeOf(err))))

	if status >= http.StatusInternalServerError {
		s.Logger.LogError(err, "Request failed",
			"endpoint", r.URL.Path, "status", status, "request_id", requestID(r.Context()))
	} else {
		s.Logger.Debug("Request rejected",
			"endpoint", r.URL.Path, "status", status, "request_id", requestID(r.Context()), "error", err.Error())
	}

	resp := ErrorResponse{Error: http.StatusText(status), Code: errors.CodeOf(err)}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Details = appErr.Context
	} else {
		resp.Message = "internal server error"
	}
	writeJSON(w, status, resp)
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
