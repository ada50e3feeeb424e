package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/liamcoop/formsync/accounts"
	"github.com/liamcoop/formsync/airtable"
	"github.com/liamcoop/formsync/config"
	"github.com/liamcoop/formsync/forms"
	"github.com/liamcoop/formsync/internal/database"
	"github.com/liamcoop/formsync/internal/logger"
	"github.com/liamcoop/formsync/metrics"
	"github.com/liamcoop/formsync/responses"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const pendingLoginTTL = 10 * time.Minute

// Pinger reports database reachability for the health check
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators a Server is built from
type Deps struct {
	DB        Pinger
	Forms     *forms.Manager
	Responses *responses.Service
	Users     accounts.UserStore
	Tokens    *accounts.TokenManager
	Sessions  *accounts.Sessions
	Logins    *accounts.PendingLogins
	OAuth     *airtable.OAuth
	Airtable  *airtable.Client
	Gatherer  prometheus.Gatherer
}

type Server struct {
	config    *config.Config
	db        Pinger
	forms     *forms.Manager
	responses *responses.Service
	users     accounts.UserStore
	tokens    *accounts.TokenManager
	sessions  *accounts.Sessions
	logins    *accounts.PendingLogins
	oauth     *airtable.OAuth
	airtable  *airtable.Client
	gatherer  prometheus.Gatherer
	router    *chi.Mux
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		config:    cfg,
		db:        deps.DB,
		forms:     deps.Forms,
		responses: deps.Responses,
		users:     deps.Users,
		tokens:    deps.Tokens,
		sessions:  deps.Sessions,
		logins:    deps.Logins,
		oauth:     deps.OAuth,
		airtable:  deps.Airtable,
		gatherer:  deps.Gatherer,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsAllowList(s.allowedOrigins()))

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/airtable/login", s.handleLogin)
			r.Get("/airtable/callback", s.handleCallback)
			r.Post("/logout", s.handleLogout)
			r.With(s.requireSession).Get("/me", s.handleMe)
		})

		r.Route("/forms", func(r chi.Router) {
			r.With(s.requireSession).Get("/", s.handleListForms)
			r.With(s.requireSession).Post("/", s.handleCreateForm)

			r.Route("/{formId}", func(r chi.Router) {
				r.Get("/", s.handleGetForm)
				r.With(middleware.RequestSize(maxSubmissionBody)).Post("/visibility", s.handleVisibility)
				r.With(s.requireSession).Put("/", s.handleUpdateForm)
				r.With(s.requireSession).Delete("/", s.handleDeleteForm)
			})
		})

		r.Route("/responses", func(r chi.Router) {
			r.With(middleware.RequestSize(maxSubmissionBody)).Post("/", s.handleSubmitResponse)
			r.With(s.requireSession).Get("/form/{formId}", s.handleListResponses)
			r.With(s.requireSession).Get("/{responseId}", s.handleGetResponse)
		})

		r.Route("/airtable", func(r chi.Router) {
			r.Use(s.requireSession)
			r.Use(s.requireAirtableToken)

			r.Get("/bases", s.handleListBases)
			r.Get("/bases/{baseId}/tables", s.handleListTables)
			r.Get("/bases/{baseId}/tables/{tableId}/fields", s.handleListFields)
		})

		r.Post("/webhooks/airtable", s.handleAirtableWebhook)
	})

	s.router = r
}

func (s *Server) allowedOrigins() []string {
	origins := []string{s.config.FrontendURL}
	if !s.config.IsProduction() {
		origins = append(origins, "http://localhost:3000")
	}
	return origins
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"environment": s.config.Environment,
	})
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Setup(ctx, logger.Options{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		SampleRate:  cfg.ErrorSampleRate,
		OTEL:        cfg.OTELEnabled,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		logger.Warn("logger setup incomplete", "error", err)
	}
	defer logger.Shutdown(context.Background())

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.MigrateUp(cfg.DatabaseURL); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	users := accounts.NewPostgresUserStore(db)
	oauth := airtable.NewOAuth(airtable.OAuthConfig{
		ClientID:     cfg.AirtableClientID,
		ClientSecret: cfg.AirtableClientSecret,
		RedirectURL:  cfg.AirtableRedirectURL,
		AuthURL:      cfg.AirtableAuthURL,
	})
	client := airtable.NewClient(airtable.WithBaseURL(cfg.AirtableAPIURL), airtable.WithMetrics(m))
	tokens := accounts.NewTokenManager(users, oauth, m)

	sessions, err := accounts.NewSessions(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}

	formManager := forms.NewManager(forms.NewPostgresFormStore(db), forms.CacheConfig{
		TTL:        cfg.FormCacheTTL,
		MaxEntries: forms.DefaultCacheConfig().MaxEntries,
	})
	responseService := responses.NewService(formManager, responses.NewPostgresResponseStore(db), tokens, client, m)

	refreshJob := accounts.NewRefreshJob(tokens, users, cfg.TokenRefreshSchedule, cfg.TokenRefreshWindow)
	if err := refreshJob.Start(ctx); err != nil {
		return err
	}
	defer refreshJob.Stop()

	server := NewServer(cfg, Deps{
		DB:        db,
		Forms:     formManager,
		Responses: responseService,
		Users:     users,
		Tokens:    tokens,
		Sessions:  sessions,
		Logins:    accounts.NewPendingLogins(pendingLoginTTL),
		OAuth:     oauth,
		Airtable:  client,
		Gatherer:  registry,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func main() {
	configPath := flag.String("config", "", "Optional config file (yaml, json or toml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		logger.Fatal("server exited", "error", err)
	}
}
