package v1

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/doculearn/gateway/pkg/forward"
	"github.com/doculearn/gateway/pkg/identity"
	"github.com/doculearn/gateway/pkg/logger"
)

// Generation endpoints have different latency profiles; plan creation is
// a single model call, chat may stream a long completion downstream.
const (
	createPlanTimeout = 60 * time.Second
	chatTimeout       = 120 * time.Second
)

// maxJSONBodySize bounds payloads relayed to the generation and RAG
// services.
const maxJSONBodySize = 1 << 20

// GenerationRouter sets up the plan-generation and chat routes. It must
// be mounted behind the authentication middleware.
func GenerationRouter(svc *forward.Service) http.Handler {
	routes := &generationRoutes{svc: svc}
	r := chi.NewRouter()
	r.Post("/create-plan", routes.createPlan)
	r.Post("/chat", routes.chat)
	return r
}

type generationRoutes struct {
	svc *forward.Service
}

func (g *generationRoutes) createPlan(w http.ResponseWriter, r *http.Request) {
	relayJSON(w, r, g.svc, "/create_plan", createPlanTimeout)
}

func (g *generationRoutes) chat(w http.ResponseWriter, r *http.Request) {
	relayJSON(w, r, g.svc, "/learn/generation", chatTimeout)
}

// relayJSON forwards the request body to the downstream service with the
// authenticated user's identity injected, then relays the downstream
// response verbatim.
func relayJSON(
	w http.ResponseWriter,
	r *http.Request,
	svc *forward.Service,
	path string,
	timeout time.Duration,
) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	result, err := svc.PostJSON(r.Context(), path, user.ID.String(), body, timeout)
	if err != nil {
		relayError(w, svc, err)
		return
	}
	relayResult(w, result)
}

func relayError(w http.ResponseWriter, svc *forward.Service, err error) {
	if errors.Is(err, forward.ErrInvalidPayload) {
		writeError(w, http.StatusBadRequest, "Request body must be a JSON object")
		return
	}
	logger.Warnf("%s service call failed: %v", svc.Name(), err)
	writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
}

func relayResult(w http.ResponseWriter, result *forward.Result) {
	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(result.StatusCode)
	_, _ = w.Write(result.Body)
}
