package login

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/ecoagris/portal/internal/auth"
	httpmiddleware "github.com/ecoagris/portal/internal/http"
	"github.com/ecoagris/portal/internal/identity"
	"github.com/ecoagris/portal/internal/store"
	"github.com/ecoagris/portal/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const DefaultLandingPath = "/admin/admin-dashboard"

// Provider is the slice of the identity provider the login flow needs.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (string, error)
	VerifyIDToken(ctx context.Context, idToken string) (*identity.Token, error)
	CreateSessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
	VerifySessionCookieAndCheckRevoked(ctx context.Context, cookie string) (*identity.Token, error)
	RevokeRefreshTokens(ctx context.Context, uid uuid.UUID) error
}

// Config configures a Handler.
type Config struct {
	Provider    Provider
	AllowList   *auth.AllowList
	Cookies     auth.CookiePolicy
	Profiles    store.ProfileStore
	LoginPath   string
	LandingPath string
}

// Handler serves the credential exchange, logout and current-session endpoints.
type Handler struct {
	provider    Provider
	allowList   *auth.AllowList
	cookies     auth.CookiePolicy
	profiles    store.ProfileStore
	loginPath   string
	landingPath string
	metrics     *telemetry.Metrics
}

// New creates a login Handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Provider == nil {
		return nil, errors.New("identity provider is required")
	}
	if cfg.AllowList == nil || len(cfg.AllowList.Emails()) == 0 {
		return nil, errors.New("at least one admin email is required")
	}
	if cfg.Profiles == nil {
		return nil, errors.New("profile store is required")
	}
	if cfg.Cookies.Name == "" {
		return nil, errors.New("cookie name is required")
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = auth.DefaultLoginPath
	}
	if cfg.LandingPath == "" {
		cfg.LandingPath = DefaultLandingPath
	}

	return &Handler{
		provider:    cfg.Provider,
		allowList:   cfg.AllowList,
		cookies:     cfg.Cookies,
		profiles:    cfg.Profiles,
		loginPath:   cfg.LoginPath,
		landingPath: cfg.LandingPath,
		metrics:     telemetry.GetMetrics(),
	}, nil
}

// LoginResponse is the JSON body of a successful login.
type LoginResponse struct {
	Success    bool   `json:"success"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// LoginHandler exchanges an ID token or email and password for a session
// cookie at POST /api/admin/login.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	form := isFormPost(r)

	cookie, err := h.login(w, r)
	if err != nil {
		kind := auth.KindOf(err)
		h.metrics.RecordLoginAttempt(r.Context(), string(kind))

		if kind == auth.KindProviderUnavailable {
			log.Error().Err(err).Msg("Login failed: identity provider unavailable")
		} else {
			log.Info().Err(err).Str("kind", string(kind)).Msg("Login rejected")
		}

		if form {
			http.Redirect(w, r, h.loginPath+"?error="+url.QueryEscape(string(kind)), http.StatusSeeOther)
			return
		}

		status, body := auth.NewErrorResponse(err)
		httpmiddleware.WriteJSON(w, status, body)
		return
	}

	h.metrics.RecordLoginAttempt(r.Context(), "success")
	http.SetCookie(w, h.cookies.NewSessionCookie(cookie))

	if form {
		http.Redirect(w, r, h.landingPath, http.StatusSeeOther)
		return
	}

	httpmiddleware.WriteJSON(w, http.StatusOK, LoginResponse{Success: true, RedirectTo: h.landingPath})
}

// login runs the exchange and returns the minted session cookie value.
// Nothing is written to w.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) (string, error) {
	ctx := r.Context()

	creds, err := decodeCredentials(w, r)
	if err != nil {
		return "", err
	}

	idToken := creds.IDToken
	if idToken == "" {
		idToken, err = h.provider.SignInWithPassword(ctx, creds.Email, creds.Password)
		if err != nil {
			return "", err
		}
	}

	token, err := h.provider.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", err
	}

	if !h.allowList.Allowed(token.Email) {
		return "", auth.NewError(auth.KindAccessDenied, errors.New("email not allow-listed"))
	}

	cookie, err := h.provider.CreateSessionCookie(ctx, idToken, h.cookies.TTL)
	if err != nil {
		return "", err
	}

	log.Info().Str("uid", token.UID.String()).Str("email", token.Email).Msg("Admin signed in")

	return cookie, nil
}

// LogoutHandler revokes the session's refresh tokens (best effort) and
// always deletes the cookie at POST /api/admin/logout.
func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if cookie := h.cookies.Read(r); cookie != "" {
		token, err := h.provider.VerifySessionCookieAndCheckRevoked(ctx, cookie)
		if err != nil {
			log.Debug().Err(err).Msg("Logout with an invalid session")
		} else if err := h.provider.RevokeRefreshTokens(ctx, token.UID); err != nil {
			log.Warn().Err(err).Str("uid", token.UID.String()).Msg("Failed to revoke sessions on logout")
		} else {
			log.Info().Str("uid", token.UID.String()).Msg("Admin signed out")
		}
	}

	http.SetCookie(w, h.cookies.ClearSessionCookie())

	if isFormPost(r) {
		http.Redirect(w, r, h.loginPath, http.StatusSeeOther)
		return
	}

	httpmiddleware.WriteJSON(w, http.StatusOK, LoginResponse{Success: true})
}
