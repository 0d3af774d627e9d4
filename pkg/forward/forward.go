// Package forward relays authenticated requests to the downstream
// content services, stamping the caller's identity into each payload.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doculearn/gateway/pkg/logger"
	"github.com/doculearn/gateway/pkg/networking"
	"github.com/doculearn/gateway/pkg/telemetry"
)

var (
	// ErrServiceUnavailable is returned when the downstream service could
	// not be reached at the transport level.
	ErrServiceUnavailable = errors.New("downstream service unavailable")

	// ErrInvalidPayload is returned when the client body is not a JSON
	// object and the user identity cannot be injected into it.
	ErrInvalidPayload = errors.New("request body is not a JSON object")
)

// DefaultTimeout applies when a call does not specify its own deadline.
const DefaultTimeout = 60 * time.Second

// maxResponseWait is the longest any endpoint is allowed to sit waiting
// for downstream response headers; document ingestion is the slowest.
const maxResponseWait = 180 * time.Second

// userIDField is the payload field downstream services read the caller
// identity from. It always overwrites anything the client sent.
const userIDField = "user_id"

// Result is the downstream response, relayed as-is to the client.
type Result struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Service forwards requests to a single downstream service.
type Service struct {
	name    string
	baseURL string
	client  *http.Client
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHTTPClient sets a custom HTTP client for downstream requests.
func WithHTTPClient(client *http.Client) ServiceOption {
	return func(s *Service) {
		s.client = client
	}
}

// NewService creates a forwarder for the downstream service at baseURL.
// The name labels log lines and metrics.
func NewService(name, baseURL string, opts ...ServiceOption) (*Service, error) {
	if name == "" {
		return nil, errors.New("service name is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base URL for %s service: %q", name, baseURL)
	}

	s := &Service{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		// Per-call deadlines come from the request context, so the
		// client itself carries no timeout. The header wait must cover
		// the slowest endpoint; the context cuts faster calls short.
		client, err := networking.NewHttpClientBuilder().
			WithTimeout(0).
			WithResponseHeaderTimeout(maxResponseWait).
			Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build HTTP client: %w", err)
		}
		s.client = client
	}
	return s, nil
}

// Name returns the service label used in logs and metrics.
func (s *Service) Name() string {
	return s.name
}

// PostJSON forwards a JSON request to path with the user identity injected
// as a top-level field. The body may be empty, in which case a payload
// containing only the identity is sent. Non-2xx downstream statuses are
// not errors; they are relayed in the Result.
func (s *Service) PostJSON(
	ctx context.Context,
	path string,
	userID string,
	body []byte,
	timeout time.Duration,
) (*Result, error) {
	payload := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}
	payload[userIDField] = userID

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	return s.do(ctx, path, "application/json", bytes.NewReader(encoded), timeout)
}

// FilePart describes one uploaded file being relayed downstream.
type FilePart struct {
	FieldName string
	FileName  string
	Content   io.Reader
}

// PostMultipart rebuilds a multipart form with the user identity added as
// a form field and forwards it to path. Extra form fields from the client
// are carried over; a client-supplied user_id field is dropped.
func (s *Service) PostMultipart(
	ctx context.Context,
	path string,
	userID string,
	file FilePart,
	fields map[string]string,
	timeout time.Duration,
) (*Result, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField(userIDField, userID); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	for name, value := range fields {
		if name == userIDField {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}

	if file.Content != nil {
		part, err := writer.CreateFormFile(file.FieldName, file.FileName)
		if err != nil {
			return nil, fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return nil, fmt.Errorf("failed to copy file content: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return s.do(ctx, path, writer.FormDataContentType(), &buf, timeout)
}

func (s *Service) do(
	ctx context.Context,
	path string,
	contentType string,
	body io.Reader,
	timeout time.Duration,
) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build downstream request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Warnf("%s service request to %s failed: %v", s.name, path, err)
		telemetry.RecordForwardedRequest(s.name, http.StatusServiceUnavailable)
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warnf("failed reading %s service response from %s: %v", s.name, path, err)
		telemetry.RecordForwardedRequest(s.name, http.StatusServiceUnavailable)
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}

	telemetry.RecordForwardedRequest(s.name, resp.StatusCode)
	return &Result{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
