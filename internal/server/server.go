package server

import (
	"errors"
	"fmt"
	"net/http"

	"filippo.io/csrf"
	"github.com/ecoagris/portal/internal/admin"
	"github.com/ecoagris/portal/internal/auth"
	httpmiddleware "github.com/ecoagris/portal/internal/http"
	"github.com/ecoagris/portal/internal/identity"
	"github.com/ecoagris/portal/internal/logger"
	"github.com/ecoagris/portal/internal/login"
	"github.com/ecoagris/portal/internal/store"
	"github.com/ecoagris/portal/internal/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config wires the portal's HTTP surface.
type Config struct {
	Authority *identity.Authority
	Users     store.UserStore
	Profiles  store.ProfileStore
	AllowList *auth.AllowList
	Cookies   auth.CookiePolicy

	DataDir        string
	CORSOrigins    []string
	TrustProxy     bool
	Tracing        bool
	LoginRateLimit httpmiddleware.RateLimiterConfig

	Logger zerolog.Logger
}

// Server is the portal's HTTP handler tree.
type Server struct {
	cfg     Config
	gate    *auth.Gate
	login   *login.Handler
	admin   *admin.Handler
	pages   *web.Pages
	limiter *httpmiddleware.RateLimiter
}

// NewServer builds the handlers behind the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Authority == nil {
		return nil, errors.New("identity authority is required")
	}
	if cfg.Users == nil || cfg.Profiles == nil {
		return nil, errors.New("user and profile stores are required")
	}
	if cfg.AllowList == nil {
		cfg.AllowList = auth.NewAllowList(auth.DefaultAdminEmail)
	}
	if cfg.Cookies.Name == "" {
		cfg.Cookies = auth.DefaultCookiePolicy()
	}
	if cfg.LoginRateLimit.Rate == 0 {
		cfg.LoginRateLimit = httpmiddleware.DefaultLoginRateLimit()
	}

	gate, err := auth.NewGate(auth.GateConfig{
		Verifier:  cfg.Authority,
		Cookies:   cfg.Cookies,
		LoginPath: auth.DefaultLoginPath,
		AllowList: cfg.AllowList,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create access gate: %w", err)
	}

	loginHandler, err := login.New(login.Config{
		Provider:  cfg.Authority,
		AllowList: cfg.AllowList,
		Cookies:   cfg.Cookies,
		Profiles:  cfg.Profiles,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create login handler: %w", err)
	}

	adminHandler, err := admin.New(cfg.Users, cfg.Authority)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin handler: %w", err)
	}

	pages, err := web.New(cfg.Profiles, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create pages: %w", err)
	}

	return &Server{
		cfg:     cfg,
		gate:    gate,
		login:   loginHandler,
		admin:   adminHandler,
		pages:   pages,
		limiter: httpmiddleware.NewRateLimiter(cfg.LoginRateLimit),
	}, nil
}

// Close stops background work.
func (s *Server) Close() {
	s.limiter.Stop()
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() (http.Handler, error) {
	protection := csrf.New()
	for _, origin := range s.cfg.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return nil, fmt.Errorf("invalid CORS origin %q: %w", origin, err)
		}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(httpmiddleware.ClientIPMiddleware(s.cfg.TrustProxy))
	r.Use(logger.Requests(s.cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.SecurityHeaders())
	if s.cfg.Tracing {
		r.Use(otelhttp.NewMiddleware("ecoagris-portal"))
	}

	// Health check endpoint for load balancer
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpmiddleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/.well-known/openid-configuration", s.cfg.Authority.DiscoveryHandler())
	r.Get("/.well-known/jwks.json", s.cfg.Authority.JWKSHandler())

	// HTML pages
	r.Group(func(r chi.Router) {
		r.Use(protection.Handler)

		r.Get("/", s.pages.Home)
		r.Handle("/data/*", s.pages.Data())

		// Everything under /admin passes the gate; the gate itself lets the
		// login page through.
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.gate.Middleware())

			r.Get("/login", s.pages.Login)
			r.Get("/admin-dashboard", s.pages.Dashboard)
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, login.DefaultLandingPath, http.StatusSeeOther)
			})
		})
	})

	// JSON API
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(s.corsHandler().Handler)
		r.Use(protection.Handler)

		r.With(s.limiter.Middleware("login")).Post("/login", s.login.LoginHandler)
		r.Post("/logout", s.login.LogoutHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.gate.APIMiddleware())

			r.Get("/session", s.login.SessionHandler)
			s.admin.Routes(r)
		})
	})

	return r, nil
}

func (s *Server) corsHandler() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true, // Required for cookie-based authentication
		MaxAge:           600,
	})
}
