package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/certflow/internal/dispatch"
	"github.com/alfredjeanlab/certflow/internal/model"
	"github.com/alfredjeanlab/certflow/internal/presence"
	"github.com/alfredjeanlab/certflow/internal/signing"
	"github.com/alfredjeanlab/certflow/internal/workflow"
)

// ActorHeader names the caller on every request. It matches the server's
// header of the same name.
const ActorHeader = "X-Certflow-Actor"

// HTTPClient implements CertClient using the certflow HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	actor      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// WithActor returns a copy of c that identifies itself as actor.
func (c *HTTPClient) WithActor(actor string) *HTTPClient {
	cp := *c
	cp.actor = actor
	return &cp
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func certPath(id string, parts ...string) string {
	p := "/v1/certificates/" + url.PathEscape(id)
	for _, s := range parts {
		p += "/" + s
	}
	return p
}

// --- Certificates ---

func (c *HTTPClient) CreateCertificate(ctx context.Context, cert *model.Certificate) (*model.Certificate, error) {
	var out model.Certificate
	if err := c.doJSON(ctx, http.MethodPost, "/v1/certificates", cert, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetCertificate(ctx context.Context, id string) (*model.Certificate, error) {
	var out model.Certificate
	if err := c.doJSON(ctx, http.MethodGet, certPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListCertificates(ctx context.Context, req *ListCertificatesRequest) (*ListCertificatesResponse, error) {
	q := url.Values{}
	if len(req.Status) > 0 {
		q.Set("status", strings.Join(req.Status, ","))
	}
	if len(req.Type) > 0 {
		q.Set("type", strings.Join(req.Type, ","))
	}
	if req.Search != "" {
		q.Set("search", req.Search)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}

	path := "/v1/certificates"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp ListCertificatesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EditCertificate replaces the server-side working copy of cert.ID. Nothing
// is persisted until Save.
func (c *HTTPClient) EditCertificate(ctx context.Context, cert *model.Certificate) (*workflow.Status, error) {
	return c.status(ctx, http.MethodPut, certPath(cert.ID), cert)
}

func (c *HTTPClient) DeleteCertificate(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, certPath(id), nil, nil)
}

// --- Workspace ---

func (c *HTTPClient) Status(ctx context.Context, id string) (*workflow.Status, error) {
	return c.status(ctx, http.MethodGet, certPath(id, "status"), nil)
}

func (c *HTTPClient) Save(ctx context.Context, id string) (*workflow.Status, error) {
	return c.status(ctx, http.MethodPost, certPath(id, "save"), nil)
}

// Generate starts rendering. The returned status reflects the request being
// accepted; poll Status for the outcome.
func (c *HTTPClient) Generate(ctx context.Context, id string) (*workflow.Status, error) {
	return c.status(ctx, http.MethodPost, certPath(id, "generate"), nil)
}

func (c *HTTPClient) status(ctx context.Context, method, path string, body any) (*workflow.Status, error) {
	var st workflow.Status
	if err := c.doJSON(ctx, method, path, body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CopyJSON returns the certificate's canonical JSON, byte for byte as the
// server wrote it.
func (c *HTTPClient) CopyJSON(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, certPath(id, "json"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readBody(resp)
}

// Document downloads the most recently generated PDF.
func (c *HTTPClient) Document(ctx context.Context, id string) (*Document, error) {
	resp, err := c.do(ctx, http.MethodGet, certPath(id, "pdf"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	doc := &Document{ContentType: resp.Header.Get("Content-Type"), Data: data}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		doc.Filename = params["filename"]
	}
	return doc, nil
}

// CloseWorkspace discards the server-side working copy. It reports whether
// a workspace was open.
func (c *HTTPClient) CloseWorkspace(ctx context.Context, id string) (bool, error) {
	var resp struct {
		Closed bool `json:"closed"`
	}
	if err := c.doJSON(ctx, http.MethodPost, certPath(id, "close"), nil, &resp); err != nil {
		return false, err
	}
	return resp.Closed, nil
}

func (c *HTTPClient) Workspaces(ctx context.Context) ([]presence.Entry, error) {
	var resp struct {
		Workspaces []presence.Entry `json:"workspaces"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/workspaces", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Workspaces, nil
}

// --- Signing ---

func (c *HTTPClient) Signing(ctx context.Context, id string) (*signing.Snapshot, error) {
	return c.snapshot(ctx, http.MethodGet, certPath(id, "signing"), nil)
}

func (c *HTTPClient) OpenSigning(ctx context.Context, id string) (*signing.Snapshot, error) {
	return c.snapshot(ctx, http.MethodPost, certPath(id, "signing", "open"), nil)
}

func (c *HTTPClient) ApplySigning(ctx context.Context, id string, p signing.Patch) (*signing.Snapshot, error) {
	return c.snapshot(ctx, http.MethodPatch, certPath(id, "signing"), p)
}

func (c *HTTPClient) UseSavedSignature(ctx context.Context, id string) (*signing.Snapshot, error) {
	return c.snapshot(ctx, http.MethodPost, certPath(id, "signing", "saved-signature"), nil)
}

func (c *HTTPClient) ClearSignature(ctx context.Context, id string) (*signing.Snapshot, error) {
	return c.snapshot(ctx, http.MethodPost, certPath(id, "signing", "clear"), nil)
}

func (c *HTTPClient) SameAsInspected(ctx context.Context, id string, on bool) (*signing.Snapshot, error) {
	body := map[string]bool{"on": on}
	return c.snapshot(ctx, http.MethodPost, certPath(id, "signing", "same-as"), body)
}

func (c *HTTPClient) NextSigningStep(ctx context.Context, id string) (*signing.Snapshot, error) {
	return c.snapshot(ctx, http.MethodPost, certPath(id, "signing", "next"), nil)
}

func (c *HTTPClient) PrevSigningStep(ctx context.Context, id string) (*signing.Snapshot, error) {
	return c.snapshot(ctx, http.MethodPost, certPath(id, "signing", "back"), nil)
}

func (c *HTTPClient) FinishSigning(ctx context.Context, id string) (*FinishSigningResponse, error) {
	var resp FinishSigningResponse
	if err := c.doJSON(ctx, http.MethodPost, certPath(id, "signing", "finish"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) CloseSigning(ctx context.Context, id string) (*signing.Snapshot, error) {
	return c.snapshot(ctx, http.MethodPost, certPath(id, "signing", "close"), nil)
}

func (c *HTTPClient) snapshot(ctx context.Context, method, path string, body any) (*signing.Snapshot, error) {
	var snap signing.Snapshot
	if err := c.doJSON(ctx, method, path, body, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// --- Email ---

func (c *HTTPClient) Email(ctx context.Context, id string) (*dispatch.State, error) {
	return c.emailState(ctx, http.MethodGet, certPath(id, "email"), nil)
}

func (c *HTTPClient) OpenEmail(ctx context.Context, id string) (*dispatch.State, error) {
	return c.emailState(ctx, http.MethodPost, certPath(id, "email", "open"), nil)
}

func (c *HTTPClient) EditEmail(ctx context.Context, id string, req *EditEmailRequest) (*dispatch.State, error) {
	return c.emailState(ctx, http.MethodPatch, certPath(id, "email"), req)
}

// SendEmail starts delivery. The returned state is "sending"; poll Email for
// the outcome.
func (c *HTTPClient) SendEmail(ctx context.Context, id string) (*dispatch.State, error) {
	return c.emailState(ctx, http.MethodPost, certPath(id, "email", "send"), nil)
}

func (c *HTTPClient) CloseEmail(ctx context.Context, id string) (*dispatch.State, error) {
	return c.emailState(ctx, http.MethodPost, certPath(id, "email", "close"), nil)
}

func (c *HTTPClient) emailState(ctx context.Context, method, path string, body any) (*dispatch.State, error) {
	var st dispatch.State
	if err := c.doJSON(ctx, method, path, body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// --- History ---

func (c *HTTPClient) Dispatches(ctx context.Context, id string) ([]*model.Dispatch, error) {
	var resp struct {
		Dispatches []*model.Dispatch `json:"dispatches"`
	}
	if err := c.doJSON(ctx, http.MethodGet, certPath(id, "dispatches"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Dispatches, nil
}

func (c *HTTPClient) Events(ctx context.Context, id string) ([]*model.Event, error) {
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, certPath(id, "events"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Fields     []model.FieldError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// do performs an HTTP request with an optional JSON body. Responses with a
// status of 400 or above are turned into an *APIError and the body closed.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.actor != "" {
		req.Header.Set(ActorHeader, c.actor)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	var errResp struct {
		Error  string             `json:"error"`
		Fields []model.FieldError `json:"fields"`
	}
	if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error, Fields: errResp.Fields}
	}
	return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
}

func readBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return data, nil
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 204 No Content: success with no body.
	if resp.StatusCode == http.StatusNoContent || result == nil {
		return nil
	}

	respBody, err := readBody(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

var _ CertClient = (*HTTPClient)(nil)
