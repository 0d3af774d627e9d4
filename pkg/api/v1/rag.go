package v1

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/doculearn/gateway/pkg/forward"
	"github.com/doculearn/gateway/pkg/identity"
)

const (
	// Document ingestion chunks and embeds the upload before returning.
	uploadTimeout = 180 * time.Second
	queryTimeout  = 60 * time.Second
)

// maxUploadSize bounds document uploads relayed to the RAG service.
const maxUploadSize = 32 << 20

// RAGRouter sets up the document upload and query routes. It must be
// mounted behind the authentication middleware.
func RAGRouter(svc *forward.Service) http.Handler {
	routes := &ragRoutes{svc: svc}
	r := chi.NewRouter()
	r.Post("/upload", routes.upload)
	r.Post("/query", routes.query)
	return r
}

type ragRoutes struct {
	svc *forward.Service
}

func (rt *ragRoutes) upload(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "Request must be multipart/form-data with a file")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file upload")
		return
	}
	defer file.Close()

	fields := map[string]string{}
	for name, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			fields[name] = values[0]
		}
	}

	result, err := rt.svc.PostMultipart(r.Context(), "/upload-and-plan", user.ID.String(),
		forward.FilePart{
			FieldName: "file",
			FileName:  header.Filename,
			Content:   file,
		}, fields, uploadTimeout)
	if err != nil {
		relayError(w, rt.svc, err)
		return
	}
	relayResult(w, result)
}

func (rt *ragRoutes) query(w http.ResponseWriter, r *http.Request) {
	relayJSON(w, r, rt.svc, "/query", queryTimeout)
}
