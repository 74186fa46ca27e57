package handlers

import (
	"net/http"

	"github.com/parley-chat/parley/internal/api/middleware"
)

// ListUsers returns every registered user except the caller, for the
// new-conversation picker.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())
	if ident == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	users, err := h.store.ListUsers(r.Context(), ident.UserID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list users")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{"users": users})
}
