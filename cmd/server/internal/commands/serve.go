package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecoagris/portal/internal/auth"
	"github.com/ecoagris/portal/internal/bootstrap"
	httpmiddleware "github.com/ecoagris/portal/internal/http"
	"github.com/ecoagris/portal/internal/logger"
	"github.com/ecoagris/portal/internal/server"
	"github.com/ecoagris/portal/internal/telemetry"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"ECOAGRIS_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"ECOAGRIS_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"ECOAGRIS_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for the admin API" default:"https://localhost" env:"ECOAGRIS_CORS_ORIGINS"`

	// Portal configuration
	DataDir         string        `help:"directory of dataset files served under /data/" type:"existingdir" env:"ECOAGRIS_DATA_DIR"`
	AdminEmails     []string      `help:"email addresses allowed into the admin area" default:"admin@ecoagris.org" env:"ECOAGRIS_ADMIN_EMAILS"`
	SessionTTL      time.Duration `help:"admin session lifetime" default:"168h" env:"ECOAGRIS_SESSION_TTL"`
	InsecureCookies bool          `help:"drop the Secure attribute from the session cookie (local development only)" default:"false" env:"ECOAGRIS_INSECURE_COOKIES"`
	TrustProxy      bool          `help:"take the client IP from X-Forwarded-For" default:"false" env:"ECOAGRIS_TRUST_PROXY"`
	LoginRate       int           `help:"login attempts per minute per client IP" default:"10" env:"ECOAGRIS_LOGIN_RATE"`
	LoginBurst      int           `help:"login attempt burst per client IP" default:"5" env:"ECOAGRIS_LOGIN_BURST"`
	SeedFile        string        `help:"YAML seed file applied on startup" type:"existingfile" env:"ECOAGRIS_SEED_FILE"`

	// Operational modes
	Tracing bool `help:"enable tracing and metrics export" default:"false" env:"ECOAGRIS_TRACING"`

	Store    StoreFlags    `embed:""`
	Identity IdentityFlags `embed:"" prefix:"identity-"`
}

func (c *ServeCmd) Validate() error {
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("TLS certificate and key must be given together (--cert and --key)")
	}
	if c.SessionTTL < 5*time.Minute || c.SessionTTL > 14*24*time.Hour {
		return fmt.Errorf("session TTL %s must be between 5m and 336h", c.SessionTTL)
	}
	if c.LoginRate <= 0 || c.LoginBurst <= 0 {
		return errors.New("login rate and burst must be positive")
	}
	return nil
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting portal")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "ecoagris-portal",
			Version:     globals.Version,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	st, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	authority, err := c.Identity.authority(st.Users)
	if err != nil {
		return err
	}

	if c.SeedFile != "" {
		if err := applySeed(ctx, c.SeedFile, authority, st); err != nil {
			return err
		}
	}

	if c.InsecureCookies {
		log.Warn().Msg("Session cookies are issued without Secure (--insecure-cookies). This should only be used in development!")
	}

	allowList := auth.NewAllowList(c.AdminEmails...)
	log.Info().Strs("admins", allowList.Emails()).Msg("Admin allow-list loaded")

	srv, err := server.NewServer(server.Config{
		Authority: authority,
		Users:     st.Users,
		Profiles:  st.Profiles,
		AllowList: allowList,
		Cookies: auth.CookiePolicy{
			Name:   auth.DefaultCookieName,
			TTL:    c.SessionTTL,
			Secure: !c.InsecureCookies,
		},
		DataDir:     c.DataDir,
		CORSOrigins: c.CORSOrigins,
		TrustProxy:  c.TrustProxy,
		Tracing:     c.Tracing,
		LoginRateLimit: httpmiddleware.RateLimiterConfig{
			Rate:  rate.Limit(float64(c.LoginRate) / 60),
			Burst: c.LoginBurst,
		},
		Logger: log,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	handler, err := srv.Handler()
	if err != nil {
		return err
	}

	httpServer := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		if c.Cert != "" {
			log.Info().Str("addr", c.Listen).Msg("Starting HTTPS server")
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}

func applySeed(ctx context.Context, path string, accounts bootstrap.Accounts, st *stores) error {
	file, err := bootstrap.Load(path)
	if err != nil {
		return err
	}

	result, err := bootstrap.Seed(ctx, bootstrap.Config{
		Accounts: accounts,
		Users:    st.Users,
		Profiles: st.Profiles,
	}, file)
	if err != nil {
		return err
	}

	zlog.Info().
		Strs("created", result.Created).
		Strs("skipped", result.Skipped).
		Int("profiles", result.Profiles).
		Msg("Seed applied")

	return nil
}
