// Package httpserver exposes the gateway's external interfaces
// (SPEC_FULL.md §6): the routing endpoint, a thin management API over the
// engine/telemetry/cache collaborators, and Prometheus exposition.
package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/namphamdev/claw-router/internal/cache"
	"github.com/namphamdev/claw-router/internal/config"
	"github.com/namphamdev/claw-router/internal/engine"
	"github.com/namphamdev/claw-router/internal/provider"
	"github.com/namphamdev/claw-router/internal/registry"
	"github.com/namphamdev/claw-router/internal/telemetry"
)

// Server wraps the HTTP handlers for the gateway, generalized from the
// teacher's Server (internal/http/server.go): CORS origin allowlisting and
// Bearer-token auth carry over unchanged, now fronting an *engine.Engine
// instead of a single llm.Provider, with a management API layered over
// the engine's config/telemetry/cache collaborators.
type Server struct {
	mu          sync.RWMutex
	eng         *engine.Engine
	doc         config.Document
	docPath     string
	cch         *cache.Cache
	store       *telemetry.Store
	promRegistry *prometheus.Registry

	auth           string
	allowedOrigins map[string]bool
}

// Deps bundles everything RegisterRoutes' handlers need.
type Deps struct {
	Engine         *engine.Engine
	Document       config.Document
	DocumentPath   string
	Cache          *cache.Cache
	Telemetry      *telemetry.Store
	PromRegistry   *prometheus.Registry
	AuthToken      string
	AllowedOrigins []string
}

// New constructs a Server.
func New(deps Deps) *Server {
	origins := make(map[string]bool)
	if len(deps.AllowedOrigins) == 0 {
		origins["http://localhost:3000"] = true
		origins["http://127.0.0.1:3000"] = true
	} else {
		for _, o := range deps.AllowedOrigins {
			origins[o] = true
		}
	}

	promReg := deps.PromRegistry
	if promReg == nil {
		promReg = prometheus.NewRegistry()
	}

	return &Server{
		eng:          deps.Engine,
		doc:          deps.Document,
		docPath:      deps.DocumentPath,
		cch:          deps.Cache,
		store:        deps.Telemetry,
		promRegistry: promReg,

		auth:           deps.AuthToken,
		allowedOrigins: origins,
	}
}

// RegisterRoutes attaches handlers to a mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.wrapCORS(s.handleHealth))
	mux.HandleFunc("/v1/chat/completions", s.wrapCORS(s.wrapAuth(s.handleCompletions)))
	mux.HandleFunc("/api/config", s.wrapCORS(s.wrapAuth(s.handleConfig)))
	mux.HandleFunc("/api/stats", s.wrapCORS(s.wrapAuth(s.handleStats)))
	mux.HandleFunc("/api/logs", s.wrapCORS(s.wrapAuth(s.handleLogs)))
	mux.HandleFunc("/api/cache/purge", s.wrapCORS(s.wrapAuth(s.handleCachePurge)))
	mux.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// chatCompletionBody is the wire shape of POST /v1/chat/completions,
// matching the OpenAI-style request the engine.Request type is built from.
// Tools/ToolChoice/ResponseFormat are decoded as opaque values and carried
// through engine.Request.Extra (SPEC_FULL.md §3/§4.4) rather than typed,
// since the gateway passes them through to whichever upstream is selected
// instead of interpreting them itself.
type chatCompletionBody struct {
	Model          string             `json:"model"`
	Provider       string             `json:"provider,omitempty"`
	Messages       []provider.Message `json:"messages"`
	Temperature    float64            `json:"temperature,omitempty"`
	TopP           float64            `json:"top_p,omitempty"`
	MaxTokens      int                `json:"max_tokens,omitempty"`
	Stop           []string           `json:"stop,omitempty"`
	Tools          []map[string]any   `json:"tools,omitempty"`
	ToolChoice     any                `json:"tool_choice,omitempty"`
	ResponseFormat map[string]any     `json:"response_format,omitempty"`
}

// toExtra collects the opaque output-affecting fields a client sent into
// the map engine.Request.Extra carries through to the cache fingerprint
// and the chosen provider codec.
func (b chatCompletionBody) toExtra() map[string]any {
	if len(b.Tools) == 0 && b.ToolChoice == nil && b.ResponseFormat == nil {
		return nil
	}
	extra := make(map[string]any, 3)
	if len(b.Tools) > 0 {
		extra["tools"] = b.Tools
	}
	if b.ToolChoice != nil {
		extra["tool_choice"] = b.ToolChoice
	}
	if b.ResponseFormat != nil {
		extra["response_format"] = b.ResponseFormat
	}
	return extra
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	start := time.Now()

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method_not_allowed", "use POST"))
		return
	}

	var body chatCompletionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "invalid json"))
		return
	}
	if len(body.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "messages is required"))
		return
	}

	result, err := s.eng.Route(r.Context(), engine.Request{
		Model:       body.Model,
		ProviderID:  body.Provider,
		Messages:    body.Messages,
		Temperature: body.Temperature,
		TopP:        body.TopP,
		MaxTokens:   body.MaxTokens,
		Stop:        body.Stop,
		Extra:       body.toExtra(),
	})

	if err != nil {
		s.logJSON(map[string]any{
			"event":           "completion_error",
			"req_id":          reqID,
			"duration_ms":     time.Since(start).Milliseconds(),
			"error":           err.Error(),
			"providers_tried": result.ProvidersTried,
		})
		if errors.Is(err, engine.ErrNoProvider) && len(result.ProvidersTried) == 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error": map[string]any{"type": "no_provider", "message": err.Error()},
			})
			return
		}
		var upstream *provider.UpstreamError
		status := http.StatusBadGateway
		if errors.As(err, &upstream) {
			status = upstream.StatusCode
		} else if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, map[string]any{
			"error": map[string]any{
				"type":            "upstream",
				"providers_tried": result.ProvidersTried,
				"last_status":     status,
				"message":         err.Error(),
			},
		})
		return
	}

	s.logJSON(map[string]any{
		"event":       "completion_ok",
		"req_id":      reqID,
		"provider":    result.Response.Provider,
		"model":       result.Response.Model,
		"cache_hit":   result.CacheHit,
		"tier":        result.ComplexityTier,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", reqID)
	w.WriteHeader(http.StatusOK)
	if len(result.Response.Raw) > 0 {
		_, _ = w.Write(result.Response.Raw)
		return
	}
	_ = json.NewEncoder(w).Encode(result.Response)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.RLock()
		doc := s.doc
		s.mu.RUnlock()
		writeJSON(w, http.StatusOK, doc)
	case http.MethodPost:
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "could not read body"))
			return
		}
		doc, err := config.ParseDocument(raw)
		if err != nil {
			var invalid *config.ConfigInvalid
			if errors.As(err, &invalid) {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error": map[string]any{"type": "config_invalid", "details": invalid.Errors},
				})
				return
			}
			writeJSON(w, http.StatusBadRequest, errorBody("bad_request", err.Error()))
			return
		}

		reg, err := registry.New(doc.ToRegistryProviders())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("config_invalid", err.Error()))
			return
		}
		profiles, err := doc.ToEngineProfiles()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("config_invalid", err.Error()))
			return
		}
		if err := config.ValidateRouting(reg, profiles); err != nil {
			var invalid *config.ConfigInvalid
			if errors.As(err, &invalid) {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error": map[string]any{"type": "config_invalid", "details": invalid.Errors},
				})
				return
			}
			writeJSON(w, http.StatusBadRequest, errorBody("config_invalid", err.Error()))
			return
		}
		if err := doc.Save(s.docPath); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody("internal", err.Error()))
			return
		}
		active, _ := profiles.ActiveProfile()

		s.mu.Lock()
		s.doc = doc
		s.eng.Registry = reg
		s.eng.Profile = active
		s.eng.ScorerConfig = doc.ToScorerConfig()
		s.mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]any{"status": "applied"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method_not_allowed", "use GET or POST"))
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, telemetry.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []telemetry.RequestLog{})
		return
	}
	q := r.URL.Query()
	limit := queryInt(q, "limit", 100)
	offset := queryInt(q, "offset", 0)
	filters := telemetry.Filters{
		Status:   telemetry.Status(q.Get("status")),
		Model:    q.Get("model"),
		Provider: q.Get("provider"),
	}
	writeJSON(w, http.StatusOK, s.store.Recent(limit, offset, filters))
}

func (s *Server) handleCachePurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method_not_allowed", "use POST"))
		return
	}
	if s.cch == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "cache_disabled"})
		return
	}
	if err := s.cch.Purge(); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal", err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "purged"})
}

func (s *Server) wrapAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.auth == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token != "Bearer "+s.auth {
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized", "missing or invalid bearer token"))
			return
		}
		next(w, r)
	}
}

// wrapCORS adds CORS headers with origin validation.
func (s *Server) wrapCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func requestID(r *http.Request) string {
	if v := r.Header.Get("X-Request-Id"); v != "" {
		return v
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return time.Now().Format("20060102150405.000000")
}

func (s *Server) logJSON(fields map[string]any) {
	b, err := json.Marshal(fields)
	if err != nil {
		log.Printf("log encode error: %v", err)
		return
	}
	log.Println(string(b))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(kind, message string) map[string]any {
	return map[string]any{"error": map[string]any{"type": kind, "message": message}}
}

func queryInt(q interface{ Get(string) string }, key string, def int) int {
	v := q.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
