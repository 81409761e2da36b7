package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/competency-hub/pkg/composables"
	"github.com/iota-uz/competency-hub/pkg/httpapi"
)

const formSessionsPrefix = "/hrm/api/employee-forms"

type LoggerOptions struct {
	// LogRequestBody logs JSON bodies of mutating requests.
	LogRequestBody bool
	// LogErrorBody logs JSON response bodies of 4xx and 5xx responses.
	LogErrorBody  bool
	MaxBodyLength int

	// RequestIDHeader is read from the request and echoed on the response.
	RequestIDHeader string
	RealIPHeader    string
	Repanic         bool
}

func DefaultLoggerOptions() LoggerOptions {
	return LoggerOptions{
		LogRequestBody:  true,
		LogErrorBody:    true,
		MaxBodyLength:   512,
		RequestIDHeader: "X-Request-ID",
		RealIPHeader:    "X-Real-IP",
	}
}

// statusRecorder remembers the status and the first bytes of the body.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
	body    []byte
	limit   int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.written {
		return
	}
	w.status = code
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	if room := w.limit - len(w.body); room > 0 {
		w.body = append(w.body, b[:min(room, len(b))]...)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func getRealIP(r *http.Request, opts LoggerOptions) string {
	if opts.RealIPHeader != "" && r.Header.Get(opts.RealIPHeader) != "" {
		return r.Header.Get(opts.RealIPHeader)
	}
	return r.RemoteAddr
}

func getRequestID(r *http.Request, opts LoggerOptions) string {
	if id := r.Header.Get(opts.RequestIDHeader); id != "" {
		return id
	}
	return uuid.New().String()
}

func isAPIPath(path string) bool {
	return strings.Contains(path, "/api/")
}

// routeFields returns the matched route template and the form session
// variables of the request. Outside a matched route the raw path is used.
func routeFields(r *http.Request) (string, logrus.Fields) {
	route := r.URL.Path
	if cur := mux.CurrentRoute(r); cur != nil {
		if tpl, err := cur.GetPathTemplate(); err == nil {
			route = tpl
		}
	}
	fields := logrus.Fields{}
	vars := mux.Vars(r)
	if id := vars["id"]; id != "" && strings.HasPrefix(route, formSessionsPrefix) {
		fields["session_id"] = id
	}
	if level := vars["level"]; level != "" {
		fields["level"] = level
	}
	return route, fields
}

// readJSONBody buffers the request body, restores it for the handler and
// returns the truncated text plus the "level" member when present.
func readJSONBody(r *http.Request, limit int) (string, string, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var payload struct {
		Level string `json:"level"`
	}
	// Non-object bodies leave the level empty.
	_ = json.Unmarshal(raw, &payload)
	return truncate(raw, limit), payload.Level, nil
}

func truncate(b []byte, limit int) string {
	if limit > 0 && len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

var tracer = otel.Tracer("competency-hub-middleware")

func TracedMiddleware(name string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), "middleware."+name, trace.WithAttributes(
				attribute.String("middleware.name", name),
				attribute.String("http.method", r.Method),
			))
			defer span.End()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithLogger starts the request span, attaches a request-scoped logger and
// request id to the context, logs the outcome and turns handler panics into
// a 500 response.
func WithLogger(logger *logrus.Logger, opts LoggerOptions) mux.MiddlewareFunc {
	if opts.RequestIDHeader == "" {
		opts.RequestIDHeader = "X-Request-ID"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := getRequestID(r, opts)
			route, fields := routeFields(r)
			fields["request-id"] = requestID
			fields["method"] = r.Method
			fields["route"] = route

			if opts.LogRequestBody && r.Body != nil &&
				(r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) &&
				strings.Contains(r.Header.Get("Content-Type"), "application/json") {
				body, level, err := readJSONBody(r, opts.MaxBodyLength)
				if err != nil {
					logger.WithFields(fields).WithError(err).Error("failed to read request body")
					_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, "failed to read request body", nil)
					return
				}
				if level != "" {
					fields["level"] = level
				}
				if body != "" {
					logger.WithFields(fields).WithField("request-body", body).Debug("request body")
				}
			}
			reqLogger := logger.WithFields(fields)

			ctx := propagation.TraceContext{}.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+route, trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.request_id", requestID),
				attribute.String("net.peer.ip", getRealIP(r, opts)),
			))
			defer span.End()
			if id, ok := fields["session_id"].(string); ok {
				span.SetAttributes(attribute.String("hrm.session_id", id))
			}
			if level, ok := fields["level"].(string); ok {
				span.SetAttributes(attribute.String("hrm.level", level))
			}
			if sc := span.SpanContext(); sc.HasTraceID() {
				w.Header().Set("X-Trace-Id", sc.TraceID().String())
				reqLogger = reqLogger.WithField("trace-id", sc.TraceID().String())
			}

			w.Header().Set(opts.RequestIDHeader, requestID)
			ctx = composables.WithRequestID(ctx, requestID)
			ctx = composables.WithLogger(ctx, reqLogger)
			rec := &statusRecorder{ResponseWriter: w, limit: opts.MaxBodyLength}

			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				span.SetStatus(codes.Error, "panic")
				reqLogger.WithFields(logrus.Fields{
					"panic":    recovered,
					"stack":    string(debug.Stack()),
					"ip":       getRealIP(r, opts),
					"duration": time.Since(start),
				}).Error("panic recovered in request handler")
				if !rec.written {
					if isAPIPath(r.URL.Path) {
						_ = httpapi.WriteError(rec, http.StatusInternalServerError, httpapi.CodeInternal, "internal server error", map[string]string{
							"request_id": requestID,
							"path":       r.URL.Path,
						})
					} else {
						http.Error(rec, "Internal Server Error", http.StatusInternalServerError)
					}
				}
				if opts.Repanic {
					panic(recovered)
				}
			}()

			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.Status()
			duration := time.Since(start)
			span.SetAttributes(
				attribute.Int("http.status_code", status),
				attribute.Int64("http.request_duration_ms", duration.Milliseconds()),
			)
			entry := reqLogger.WithFields(logrus.Fields{
				"status":   status,
				"duration": duration,
			})
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			if opts.LogErrorBody && status >= http.StatusBadRequest &&
				strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
				entry = entry.WithField("response-body", truncate(rec.body, opts.MaxBodyLength))
			}
			switch {
			case status >= http.StatusInternalServerError:
				entry.Error("request failed")
			case status >= http.StatusBadRequest:
				entry.Warn("request rejected")
			default:
				entry.Info("request completed")
			}
		})
	}
}
