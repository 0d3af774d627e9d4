package v1

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doculearn/gateway/pkg/forward"
)

func multipartBody(t *testing.T, fileName, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestUploadForwardsFileWithIdentity(t *testing.T) {
	t.Parallel()

	type received struct {
		userID   string
		fileName string
		content  string
		subject  string
		path     string
	}
	var got atomic.Pointer[received]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		got.Store(&received{
			userID:   r.FormValue("user_id"),
			fileName: header.Filename,
			content:  string(content),
			subject:  r.FormValue("subject"),
			path:     r.URL.Path,
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"document_id":"d-1"}`))
	}))
	t.Cleanup(srv.Close)

	svc, err := forward.NewService("rag", srv.URL)
	require.NoError(t, err)
	router := asUser(testUser, RAGRouter(svc))

	body, contentType := multipartBody(t, "notes.pdf", "pdf bytes",
		map[string]string{"subject": "databases", "user_id": "spoofed"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"document_id":"d-1"}`, rec.Body.String())

	r := got.Load()
	require.NotNil(t, r)
	assert.Equal(t, "/upload-and-plan", r.path)
	assert.Equal(t, testUser.ID.String(), r.userID)
	assert.Equal(t, "notes.pdf", r.fileName)
	assert.Equal(t, "pdf bytes", r.content)
	assert.Equal(t, "databases", r.subject)
}

func TestUploadMissingFile(t *testing.T) {
	t.Parallel()

	srv, _, calls := newDownstream(t, http.StatusOK, `{}`)
	svc, err := forward.NewService("rag", srv.URL)
	require.NoError(t, err)
	router := asUser(testUser, RAGRouter(svc))

	body, contentType := multipartBody(t, "", "", map[string]string{"subject": "databases"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int64(0), calls.Load())
}

func TestUploadRejectsNonMultipart(t *testing.T) {
	t.Parallel()

	srv, _, calls := newDownstream(t, http.StatusOK, `{}`)
	svc, err := forward.NewService("rag", srv.URL)
	require.NoError(t, err)
	router := asUser(testUser, RAGRouter(svc))

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int64(0), calls.Load())
}

func TestQueryForwardsWithIdentity(t *testing.T) {
	t.Parallel()

	srv, last, _ := newDownstream(t, http.StatusOK, `{"answer":"42"}`)
	svc, err := forward.NewService("rag", srv.URL)
	require.NoError(t, err)
	router := asUser(testUser, RAGRouter(svc))

	req := httptest.NewRequest(http.MethodPost, "/query",
		strings.NewReader(`{"question":"what is normalization?"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"answer":"42"}`, rec.Body.String())

	call := last.Load()
	require.NotNil(t, call)
	assert.Equal(t, "/query", call.path)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(call.body, &payload))
	assert.Equal(t, testUser.ID.String(), payload["user_id"])
	assert.Equal(t, "what is normalization?", payload["question"])
}
