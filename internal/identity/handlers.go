package identity

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// DiscoveryHandler serves the OpenID discovery document at
// /.well-known/openid-configuration.
func (a *Authority) DiscoveryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Msg("OIDC discovery request")

		config := map[string]any{
			"issuer":                                a.issuer,
			"jwks_uri":                              a.issuer + "/.well-known/jwks.json",
			"response_types_supported":              []string{"id_token"},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"ES256"},
			"claims_supported":                      []string{"iss", "aud", "sub", "email", "auth_time", "iat", "exp"},
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		if err := json.NewEncoder(w).Encode(config); err != nil {
			log.Error().Err(err).Msg("Failed to encode OIDC discovery response")
		}
	}
}

// JWKSHandler serves the signing key in JWKS format at /.well-known/jwks.json.
func (a *Authority) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("kid", a.keys.Kid()).Msg("JWKS request")

		jwks := map[string]any{
			"keys": []any{a.keys.JWK()},
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		if err := json.NewEncoder(w).Encode(jwks); err != nil {
			log.Error().Err(err).Msg("Failed to encode JWKS response")
		}
	}
}
