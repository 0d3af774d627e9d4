package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doculearn/gateway/pkg/identity"
)

// UsersRouter sets up the current-user route. It must be mounted behind
// the authentication middleware.
func UsersRouter() http.Handler {
	routes := &userRoutes{}
	r := chi.NewRouter()
	r.Get("/me", routes.getCurrentUser)
	return r
}

type userRoutes struct{}

func (*userRoutes) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
