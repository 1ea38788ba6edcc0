package server

import (
	"context"
	"net/http"

	"jobcoach/internal/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// route is one authenticated API endpoint.
type route struct {
	pattern string
	name    string
	handler http.HandlerFunc
	summary string
}

// routeTable lists the API endpoints. /health and /stats are registered
// separately since they skip auth and rate limiting.
func (s *Server) routeTable() []route {
	return []route{
		{"GET /registry", "registry", s.registryHandler, "Widget registry"},

		{"GET /applications/{id}", "application.get", s.getApplicationHandler, "Read an application"},
		{"PUT /applications/{id}", "application.put", s.putApplicationHandler, "Store an application"},
		{"GET /narratives/{id}", "narrative.get", s.getNarrativeHandler, "Read a narrative"},
		{"PUT /narratives/{id}", "narrative.put", s.putNarrativeHandler, "Store a narrative"},
		{"GET /interviews/{id}", "interview.get", s.getInterviewHandler, "Read an interview"},
		{"PUT /interviews/{id}", "interview.put", s.putInterviewHandler, "Store an interview"},

		{"GET /interviews/{id}/copilot", "copilot.open", s.openSessionHandler, "Open the co-pilot session"},
		{"PUT /interviews/{id}/copilot", "copilot.save", s.saveSessionHandler, "Save the co-pilot session"},
		{"PUT /interviews/{id}/notes", "copilot.notes", s.saveNotesHandler, "Save notes"},
		{"PUT /interviews/{id}/widgets/{widget}", "copilot.widget", s.updateWidgetHandler, "Edit widget data"},
		{"POST /interviews/{id}/widgets/{widget}/collapse", "copilot.collapse", s.collapseWidgetHandler, "Collapse or expand a widget"},

		{"POST /interviews/{id}/cheatsheet", "copilot.cheatsheet", s.cheatSheetHandler, "Generate the job cheat sheet (AI)"},
		{"POST /interviews/{id}/outline", "copilot.outline", s.outlineHandler, "Generate the prep outline (AI)"},
		{"POST /interviews/{id}/answers", "copilot.answer", s.answerHandler, "Draft an answer (AI)"},

		{"POST /analysis/decode", "analysis.decode", s.decodeAnalysisHandler, "Decode an analysis payload"},
	}
}

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes(om *observability.ObservabilityManager) *http.ServeMux {
	mux := http.NewServeMux()

	rateLimit := s.rateLimitMiddleware(om.GetMetrics())
	requestLimit := s.requestSizeLimitMiddleware()
	api := func(name string, h http.HandlerFunc) http.HandlerFunc {
		return rateLimit(s.authMiddleware(requestLimit(traced(om, name, h))))
	}

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	for _, rt := range s.routeTable() {
		mux.HandleFunc(rt.pattern, api(rt.name, rt.handler))
	}

	if h := om.MetricsHandler(); h != nil {
		mux.Handle("GET "+om.Settings().Prometheus.Endpoint, h)
	}

	return mux
}

// requestIDHeader carries the request id. Clients may send their own;
// otherwise one is generated.
const requestIDHeader = "X-Request-ID"

// requestIDMiddleware echoes or assigns a request id and records it on the
// active span.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("http.request_id", id))
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// requestID returns the id assigned by requestIDMiddleware, or "".
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// traced runs h inside an "api.<name>" span. Handlers record failures on
// the span through writeAppError.
func traced(om *observability.ObservabilityManager, name string, h http.HandlerFunc) http.HandlerFunc {
	tracer := om.Tracer("jobcoach.api")
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "api."+name,
			trace.WithAttributes(attribute.String("operation", name)))
		defer span.End()
		if id := r.PathValue("id"); id != "" {
			span.SetAttributes(attribute.String("record.id", id))
		}
		h(w, r.WithContext(ctx))
	}
}

// authMiddleware provides API key authentication
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication if no API keys are configured
		if len(s.APIKeys) == 0 {
			next(w, r)
			return
		}

		apiKey := requestAPIKey(r)
		if apiKey == "" {
			s.Logger.Info("Authentication failed: missing API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r),
				"request_id", requestID(r.Context()))
			writeErrorResponse(w, "Missing API key", "X-API-Key header or Authorization Bearer token required", http.StatusUnauthorized)
			return
		}

		if !s.APIKeys[apiKey] {
			s.Logger.Info("Authentication failed: invalid API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r),
				"request_id", requestID(r.Context()),
				"api_key_prefix", maskAPIKey(apiKey))
			writeErrorResponse(w, "Invalid API key", "Unauthorized access", http.StatusUnauthorized)
			return
		}

		s.Logger.Debug("API authentication successful",
			"endpoint", r.URL.Path,
			"api_key_prefix", maskAPIKey(apiKey))

		next(w, r)
	}
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if s.MaxRequestSize > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestSize)
			}
			next(w, r)
		}
	}
}

// maskAPIKey masks an API key for logging (shows only first 8 characters)
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:8] + "****"
}
