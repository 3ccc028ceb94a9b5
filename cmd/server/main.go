package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/affiliumhq/affilium/automation"
	"github.com/affiliumhq/affilium/internal/logger"
	"github.com/affiliumhq/affilium/segments"
	"github.com/affiliumhq/affilium/senders"
	"github.com/affiliumhq/affilium/smartlink"
)

// Server wires the automation engine, segment engine and smart-link router
// behind the REST API.
type Server struct {
	engine   *automation.Engine
	segments *segments.Engine
	router   *smartlink.Router
	db       *sqlx.DB // nil when running on the in-memory store
	log      *slog.Logger
	mux      *chi.Mux
}

// NewServer builds the server from environment configuration. With
// DATABASE_URL set, rules persist in PostgreSQL; otherwise an in-memory
// store is used. With REDIS_URL set, the active rules cache is shared
// through Redis.
func NewServer(log *slog.Logger) (*Server, error) {
	var store automation.RuleStore
	var db *sqlx.DB

	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		var err error
		db, err = sqlx.Connect("postgres", databaseURL)
		if err != nil {
			return nil, err
		}
		accountID := os.Getenv("ACCOUNT_ID")
		if accountID == "" {
			accountID = "default"
		}
		store = automation.NewPostgresRuleStore(db, accountID)
		log.Info("using postgres rule store", "account", accountID)
	} else {
		store = automation.NewInMemoryRuleStore()
		log.Info("using in-memory rule store")
	}

	opts := []automation.EngineOption{
		automation.WithMetrics(automation.NewMetrics(prometheus.DefaultRegisterer)),
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(redisOpts)
		opts = append(opts, automation.WithCache(
			automation.NewRedisRulesCache(client, automation.DefaultCacheConfig())))
		log.Info("using redis rules cache")
	}

	logSenders := senders.NewLogSenders(log)
	sendTable := logSenders.All()
	sendTable.Webhook = senders.NewHTTPWebhookPoster(10 * time.Second)

	segEngine, err := segments.NewEngine()
	if err != nil {
		return nil, err
	}

	s := &Server{
		engine:   automation.NewEngine(store, sendTable, opts...),
		segments: segEngine,
		router:   smartlink.NewRouter(segEngine),
		db:       db,
		log:      log,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/api/v1/evaluate", s.handleEvaluate)
	r.Post("/api/v1/payout/preview", s.handlePayoutPreview)

	r.Route("/api/v1/rules", func(r chi.Router) {
		r.Post("/", s.handleCreateRule)
		r.Get("/{ruleId}", s.handleGetRule)
		r.Put("/{ruleId}", s.handleUpdateRule)
		r.Delete("/{ruleId}", s.handleDeleteRule)
	})

	r.Post("/api/v1/segments", s.handleCreateSegment)

	r.Route("/api/v1/links", func(r chi.Router) {
		r.Post("/", s.handleCreateLink)
		r.Get("/", s.handleListLinks)
	})
	r.Get("/r/{slug}", s.handleRedirect)

	s.mux = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleEvaluate runs a record through specific rules, or through every
// active rule when no IDs are given (the conversion postback path).
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Record == nil {
		respondError(w, http.StatusBadRequest, "record is required", nil)
		return
	}

	started := time.Now()
	var results []*automation.EvaluationResult

	if len(req.RuleIDs) > 0 {
		results = make([]*automation.EvaluationResult, 0, len(req.RuleIDs))
		for _, id := range req.RuleIDs {
			rule, err := s.engine.GetRule(id)
			if err != nil {
				s.log.Warn("skipping unknown rule", "ruleId", id, "error", err)
				continue
			}
			results = append(results, s.engine.EvaluateRule(r.Context(), rule, req.Record))
		}
	} else {
		var err error
		results, err = s.engine.EvaluateAll(r.Context(), req.Record)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "evaluation failed", err)
			return
		}
	}

	respondJSON(w, http.StatusOK, EvaluateResponse{
		Results:        results,
		EvaluationTime: time.Since(started).String(),
	})
}

// handlePayoutPreview computes the amount a policy would pay for a record
// without executing any actions. Malformed custom formulas come back as 400
// so authors catch them before a rule goes live.
func (s *Server) handlePayoutPreview(w http.ResponseWriter, r *http.Request) {
	var req PayoutPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Policy == nil {
		respondError(w, http.StatusBadRequest, "payoutPolicy is required", nil)
		return
	}

	amount, err := automation.ComputeAmount(req.Policy, req.Record)
	if err != nil {
		respondError(w, http.StatusBadRequest, "payout computation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"amount": amount})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule automation.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Status == "" {
		rule.Status = automation.StatusActive
	}

	if err := s.engine.AddRule(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.GetRule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule automation.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	rule.ID = chi.URLParam(r, "ruleId")

	if err := s.engine.UpdateRule(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update rule", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRule(chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateSegment(w http.ResponseWriter, r *http.Request) {
	var seg segments.Segment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if seg.ID == "" {
		seg.ID = uuid.NewString()
	}
	seg.Active = true

	if err := s.segments.Compile(seg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid segment expression", err)
		return
	}
	respondJSON(w, http.StatusCreated, seg)
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var link smartlink.Link
	if err := json.NewDecoder(r.Body).Decode(&link); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if link.ID == "" {
		link.ID = uuid.NewString()
	}

	if err := s.router.Register(link); err != nil {
		respondError(w, http.StatusBadRequest, "failed to register link", err)
		return
	}
	respondJSON(w, http.StatusCreated, link)
}

func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"links": s.router.Links()})
}

// handleRedirect resolves a smart link for the incoming click and issues
// the redirect. Click facts are built from query parameters plus the
// request itself, keyed the way segment expressions expect.
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	visitor := map[string]any{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			visitor[key] = values[0]
		}
	}
	facts := map[string]any{
		"visitor": visitor,
		"click": map[string]any{
			"slug":      chi.URLParam(r, "slug"),
			"userAgent": r.UserAgent(),
			"referer":   r.Referer(),
			"ip":        r.RemoteAddr,
		},
	}

	target, err := s.router.Resolve(chi.URLParam(r, "slug"), facts)
	if err != nil {
		respondError(w, http.StatusNotFound, "link not found", err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	log := logger.Setup("affilium-server")

	server, err := NewServer(log)
	if err != nil {
		log.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}
