//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/oshokin/arcompile/internal/config"
	"github.com/oshokin/arcompile/internal/version"
)

// Headers understood by the build service.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderActor     = "X-Arcompile-Actor"
	HeaderVersion   = "X-Arcompile-Version"
	HeaderLibraries = "X-Arcompile-Libraries"

	// ContentTypeSketch is the media type of the tar+zstd sketch upload.
	ContentTypeSketch = "application/zstd"

	// CodeSizeExceeded is the error code for an image that does not fit the partition.
	CodeSizeExceeded = "size_exceeded"

	buildsPath = "/api/v1/builds"

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 1 << 20
)

// Client talks to the remote build service over HTTP.
type Client struct {
	// baseURL is the service root, e.g. http://builder.lan:8088.
	baseURL *url.URL
	// http performs the requests.
	http *http.Client
	// actor is sent with every build for the server's audit log.
	actor Actor

	// callTimeout is the default timeout for individual calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithActor sets who is reported as the build requester.
func WithActor(actor Actor) Option {
	return func(c *Client) {
		c.actor = actor
	}
}

// BuildRequest is one compile attempt.
type BuildRequest struct {
	// FQBN includes the partition option when one is requested.
	FQBN string
	// Libraries are installed on the server before compiling.
	Libraries []string
	// RequestID correlates client and server logs.
	RequestID string
	// Body is the tar+zstd sketch archive.
	Body io.Reader
}

// Artifact describes one compiled file available for download.
type Artifact struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256,omitempty"`
}

// BuildResponse is returned by a successful compile.
type BuildResponse struct {
	BuildID    string     `json:"build_id"`
	FQBN       string     `json:"fqbn"`
	Output     string     `json:"output"`
	SketchSize int64      `json:"sketch_size"`
	MaxSize    int64      `json:"max_size"`
	Artifacts  []Artifact `json:"artifacts"`
}

// APIError is a non-2xx answer from the build service.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"error"`
	Output     string `json:"output"`
}

// Error implements error.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}

	if e.Code != "" {
		return fmt.Sprintf("build service: %d %s: %s", e.StatusCode, e.Code, msg)
	}

	return fmt.Sprintf("build service: %d: %s", e.StatusCode, msg)
}

// IsSizeExceeded reports whether the server rejected the image as too large for its partition.
func (e *APIError) IsSizeExceeded() bool {
	return e.Code == CodeSizeExceeded || e.StatusCode == http.StatusRequestEntityTooLarge
}

var (
	// errAddressRequired is returned when the service URL is missing.
	errAddressRequired = errors.New("build service url must be provided")
	// errBodyRequired is returned for a build request without an archive.
	errBodyRequired = errors.New("build request body must be provided")
	// errNoBuildID is returned when a success response lacks a build ID.
	errNoBuildID = errors.New("build response has no build id")
)

// NewClient creates a client for the build service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errAddressRequired
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse build service url: %w", err)
	}

	client := &Client{
		baseURL:     u,
		http:        http.DefaultClient,
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// SubmitBuild uploads the sketch and waits for the compile to finish.
func (c *Client) SubmitBuild(ctx context.Context, req *BuildRequest) (*BuildResponse, error) {
	if req == nil || req.Body == nil {
		return nil, errBodyRequired
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	endpoint := c.endpoint(buildsPath)
	endpoint.RawQuery = url.Values{"fqbn": {req.FQBN}}.Encode()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint.String(), req.Body)
	if err != nil {
		return nil, fmt.Errorf("create build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", ContentTypeSketch)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	httpReq.Header.Set(HeaderVersion, version.Short())

	if req.RequestID != "" {
		httpReq.Header.Set(HeaderRequestID, req.RequestID)
	}

	if c.actor.Username != "" {
		httpReq.Header.Set(HeaderActor, c.actor.String())
	}

	if len(req.Libraries) > 0 {
		httpReq.Header.Set(HeaderLibraries, strings.Join(req.Libraries, ","))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit build: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp)
	}

	var build BuildResponse
	if err = json.NewDecoder(resp.Body).Decode(&build); err != nil {
		return nil, fmt.Errorf("decode build response: %w", err)
	}

	if build.BuildID == "" {
		return nil, errNoBuildID
	}

	return &build, nil
}

// DownloadArtifact streams one compiled file of buildID into w.
func (c *Client) DownloadArtifact(ctx context.Context, buildID, name string, w io.Writer) (int64, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	endpoint := c.endpoint(buildsPath, url.PathEscape(buildID), "artifacts", url.PathEscape(name))

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint.String(), http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("create download request: %w", err)
	}

	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", name, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download %s: %w", name, decodeAPIError(resp))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", name, err)
	}

	return n, nil
}

// endpoint joins segments onto the base URL path. Segments must already be escaped.
func (c *Client) endpoint(segments ...string) *url.URL {
	u := *c.baseURL

	joined := path.Join(append([]string{u.Path}, segments...)...)
	u.RawPath = joined

	unescaped, err := url.PathUnescape(joined)
	if err != nil {
		unescaped = joined
	}

	u.Path = unescaped

	return &u
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

// decodeAPIError builds an *APIError from a failed response, falling back to the raw body.
func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}

	if json.Unmarshal(body, apiErr) != nil || (apiErr.Message == "" && apiErr.Code == "") {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	apiErr.StatusCode = resp.StatusCode

	return apiErr
}
