package login

import (
	"errors"
	"net/http"

	"github.com/ecoagris/portal/internal/auth"
	httpmiddleware "github.com/ecoagris/portal/internal/http"
	"github.com/ecoagris/portal/internal/models"
	"github.com/ecoagris/portal/internal/store"
	"github.com/rs/zerolog/log"
)

// SessionResponse describes the signed-in admin.
type SessionResponse struct {
	UID     string          `json:"uid"`
	Email   string          `json:"email"`
	Profile *models.Profile `json:"profile"`
}

// SessionHandler returns the current admin at GET /api/admin/session. It
// must be mounted behind the API session middleware.
func (h *Handler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		httpmiddleware.WriteJSON(w, http.StatusUnauthorized, auth.ErrorResponse{
			Error: auth.KindNoSession.Message(),
			Code:  auth.KindNoSession,
		})
		return
	}

	resp := SessionResponse{
		UID:   principal.UID.String(),
		Email: principal.Email,
	}

	profile, err := h.profiles.Get(r.Context(), principal.UID)
	switch {
	case err == nil:
		resp.Profile = profile
	case errors.Is(err, store.ErrProfileNotFound):
	default:
		log.Error().Err(err).Str("uid", principal.UID.String()).Msg("Failed to load profile")
		status, body := auth.NewErrorResponse(auth.NewError(auth.KindProviderUnavailable, err))
		httpmiddleware.WriteJSON(w, status, body)
		return
	}

	httpmiddleware.WriteJSON(w, http.StatusOK, resp)
}
