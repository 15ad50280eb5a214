package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	httpmiddleware "github.com/ecoagris/portal/internal/http"
	"github.com/ecoagris/portal/internal/identity"
	"github.com/ecoagris/portal/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// DefaultLoginPath is where unauthenticated admin requests are sent.
const DefaultLoginPath = "/admin/login"

// SessionVerifier verifies a session cookie against the identity provider,
// including the revocation check.
type SessionVerifier interface {
	VerifySessionCookieAndCheckRevoked(ctx context.Context, cookie string) (*identity.Token, error)
}

// Outcome is the gate's decision for one request.
type Outcome string

const (
	OutcomePassThrough           Outcome = "pass_through"
	OutcomeRedirectNoCookie      Outcome = "redirect_no_cookie"
	OutcomeRedirectInvalidCookie Outcome = "redirect_invalid_cookie"
	OutcomeLoginPassThrough      Outcome = "login_pass_through"
)

// GateConfig configures a Gate.
type GateConfig struct {
	Verifier  SessionVerifier
	Cookies   CookiePolicy
	LoginPath string

	// AllowList, when set, also requires the session's email to still be
	// allow-listed.
	AllowList *AllowList
}

// Gate guards the protected admin subtree. It is mounted by the router
// only on that subtree.
type Gate struct {
	verifier  SessionVerifier
	cookies   CookiePolicy
	loginPath string
	allowList *AllowList
	metrics   *telemetry.Metrics
}

// NewGate creates a Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Verifier == nil {
		return nil, errors.New("session verifier is required")
	}
	if cfg.Cookies.Name == "" {
		return nil, errors.New("cookie name is required")
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}

	return &Gate{
		verifier:  cfg.Verifier,
		cookies:   cfg.Cookies,
		loginPath: cfg.LoginPath,
		allowList: cfg.AllowList,
		metrics:   telemetry.GetMetrics(),
	}, nil
}

// LoginPath returns the login page path.
func (g *Gate) LoginPath() string {
	return g.loginPath
}

// Decide runs the gate state machine for r. The verifier is called at most once.
func (g *Gate) Decide(r *http.Request) (Outcome, *Principal, error) {
	if r.URL.Path == g.loginPath {
		return OutcomeLoginPassThrough, nil, nil
	}

	cookie := g.cookies.Read(r)
	if cookie == "" {
		return OutcomeRedirectNoCookie, nil, NewError(KindNoSession, nil)
	}

	principal, err := g.verify(r.Context(), cookie)
	if err != nil {
		return OutcomeRedirectInvalidCookie, nil, NewError(KindInvalidSession, err)
	}

	return OutcomePassThrough, principal, nil
}

// Middleware redirects requests without a valid session to the login page.
// An invalid cookie is deleted on the way out.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			outcome, principal, err := g.Decide(r)
			g.metrics.RecordGateDecision(r.Context(), string(outcome))

			logEvent := log.Debug().Str("path", r.URL.Path).Str("outcome", string(outcome))
			if err != nil {
				logEvent = logEvent.Err(err)
			}
			logEvent.Msg("Access gate decision")

			switch outcome {
			case OutcomeLoginPassThrough:
				next.ServeHTTP(w, r)
			case OutcomePassThrough:
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
			case OutcomeRedirectInvalidCookie:
				http.SetCookie(w, g.cookies.ClearSessionCookie())
				g.redirectToLogin(w)
			default:
				g.redirectToLogin(w)
			}
		})
	}
}

// APIMiddleware verifies the session for JSON endpoints, answering 401
// instead of redirecting. An invalid cookie is deleted.
func (g *Gate) APIMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie := g.cookies.Read(r)
			if cookie == "" {
				g.metrics.RecordGateDecision(r.Context(), "api_no_cookie")
				httpmiddleware.WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error: KindNoSession.Message(),
					Code:  KindNoSession,
				})
				return
			}

			principal, err := g.verify(r.Context(), cookie)
			if err != nil {
				g.metrics.RecordGateDecision(r.Context(), "api_invalid_cookie")
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("API session rejected")

				http.SetCookie(w, g.cookies.ClearSessionCookie())
				httpmiddleware.WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
					Error: KindOf(err).Message(),
					Code:  KindInvalidSession,
				})
				return
			}

			g.metrics.RecordGateDecision(r.Context(), "api_pass_through")
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func (g *Gate) verify(ctx context.Context, cookie string) (*Principal, error) {
	started := time.Now()
	token, err := g.verifier.VerifySessionCookieAndCheckRevoked(ctx, cookie)
	g.metrics.RecordSessionVerify(ctx, started, err == nil)
	if err != nil {
		if errors.Is(err, identity.ErrProviderUnavailable) {
			log.Error().Err(err).Msg("Session verification failed: provider unavailable")
		}
		return nil, err
	}

	if g.allowList != nil && !g.allowList.Allowed(token.Email) {
		return nil, NewError(KindAccessDenied, errors.New("email no longer allow-listed"))
	}

	return &Principal{UID: token.UID, Email: token.Email}, nil
}

// redirectToLogin answers 307 with no body.
func (g *Gate) redirectToLogin(w http.ResponseWriter) {
	w.Header().Set("Location", g.loginPath)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusTemporaryRedirect)
}
