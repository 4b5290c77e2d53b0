package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"floorfilter/internal/expression"
	"floorfilter/internal/facilities"
	"floorfilter/internal/layers"
	"floorfilter/internal/levels"
	"floorfilter/internal/metrics"
	"floorfilter/internal/webmap"
)

// Engine is the floor filter session the API drives.
// *engine.Engine satisfies this.
type Engine interface {
	Loaded() bool
	Active() expression.Selection
	Mode() expression.Mode
	Index() *layers.Index
	Catalog() *levels.Catalog
	Facilities() *facilities.Cache
	Expressions() *expression.Result
	Select(ctx context.Context, facilityID, levelID string) (expression.Selection, error)
	SelectByObjectID(ctx context.Context, objectID int64) (expression.Selection, error)
	Clear(ctx context.Context) error
}

// Pinger reports whether the dataset store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WebMap renders the host map with its live definition expressions.
type WebMap interface {
	Document() webmap.Document
}

type Handler struct {
	log     zerolog.Logger
	engine  Engine
	store   Pinger
	metrics *metrics.Metrics
	webmap  WebMap
}

func NewHandler(log zerolog.Logger, eng Engine, store Pinger, m *metrics.Metrics) *Handler {
	return &Handler{log: log, engine: eng, store: store, metrics: m}
}

// WithWebMap serves doc from GET /api/v1/webmap.
func (h *Handler) WithWebMap(doc WebMap) *Handler {
	h.webmap = doc
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/facilities", func(r chi.Router) {
				r.Get("/", h.handleListFacilities)
				r.Get("/{id}", h.handleGetFacility)
			})
			r.Get("/layers", h.handleListLayers)
			r.Route("/selection", func(r chi.Router) {
				r.Get("/", h.handleGetSelection)
				r.Put("/", h.handlePutSelection)
				r.Delete("/", h.handleClearSelection)
			})
			r.Get("/expressions", h.handleListExpressions)
			r.Get("/webmap", h.handleGetWebMap)
		})
	})

	return r
}

// echoRequestID copies the request id chosen by middleware.RequestID onto the
// response.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.engine == nil || !h.engine.Loaded() {
		h.writeError(w, http.StatusServiceUnavailable, "not_loaded", "floor filter not loaded", nil)
		return
	}
	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
			return
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

// ensureLoaded writes 503 unless the engine has finished loading.
func (h *Handler) ensureLoaded(w http.ResponseWriter) bool {
	if h.engine == nil || !h.engine.Loaded() {
		h.writeError(w, http.StatusServiceUnavailable, "not_loaded", "floor filter not loaded", nil)
		return false
	}
	return true
}
