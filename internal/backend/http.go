package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/wlanmigrate/wlanmigrate/internal/core"
)

// maxResponseBytes caps a backend reply. Dry-run and status payloads are the largest.
const maxResponseBytes = 32 << 20

// envelope is the backend's reply wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// HTTPClient talks to the migration backend's JSON API. It holds the backend
// session cookie obtained by Login.
type HTTPClient struct {
	base   *url.URL
	client *http.Client
	logger zerolog.Logger
}

// HTTPOption customizes an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client. Its jar and redirect
// policy are overwritten.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.client = c }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPClient) { h.client.Timeout = d }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) HTTPOption {
	return func(h *HTTPClient) { h.logger = l }
}

// NewHTTPClient returns a client for the backend at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", baseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	h := &HTTPClient{
		base:   base,
		client: &http.Client{Timeout: 2 * time.Minute},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.client.Jar = jar
	// A redirect from an API route means the backend session is gone; it is
	// reported, not followed.
	h.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	h.logger = h.logger.With().Str("backend", base.Host).Logger()
	return h, nil
}

// Login authenticates the backend session with the Source credentials.
func (h *HTTPClient) Login(ctx context.Context, creds core.SourceCredentials) error {
	const op = "login"
	form := url.Values{
		"username": {creds.Username},
		"password": {creds.Password},
		"region":   {creds.Region},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint("/login"), strings.NewReader(form.Encode()))
	if err != nil {
		return core.TransportFailure(op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client.Do(req)
	if err != nil {
		return core.TransportFailure(op, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	// Success redirects to the wizard; failure re-renders the login form.
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if loc := resp.Header.Get("Location"); !strings.Contains(loc, "/login") {
			h.logger.Debug().Str("region", creds.Region).Msg("backend session established")
			return nil
		}
	}
	return core.BackendFailure(op, "invalid Source credentials")
}

// ConnectSource logs in when username/password are supplied, then fetches the Source inventory.
func (h *HTTPClient) ConnectSource(ctx context.Context, creds core.SourceCredentials) (*core.SourceInventory, error) {
	if creds.Username != "" && creds.Password != "" {
		if err := h.Login(ctx, creds); err != nil {
			return nil, err
		}
	}
	var inv core.SourceInventory
	if err := h.call(ctx, "connect source", http.MethodPost, "/api/connect_xiq", creds, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (h *HTTPClient) ConnectTarget(ctx context.Context, creds core.TargetCredentials) (*core.TargetInventory, error) {
	var inv core.TargetInventory
	if err := h.call(ctx, "connect target", http.MethodPost, "/api/connect_edge", creds, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (h *HTTPClient) Convert(ctx context.Context, req ConvertRequest) (*core.ConversionResult, error) {
	var res core.ConversionResult
	if err := h.call(ctx, "convert", http.MethodPost, "/api/convert", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (h *HTTPClient) Execute(ctx context.Context, req ExecuteRequest) (*core.ExecuteResult, error) {
	var res core.ExecuteResult
	if err := h.call(ctx, "execute migration", http.MethodPost, "/api/migrate", req, &res); err != nil {
		return nil, err
	}
	// A dry-run reply omits the flag on some backend versions.
	res.DryRun = res.DryRun || req.DryRun
	return &res, nil
}

func (h *HTTPClient) Reset(ctx context.Context) error {
	return h.call(ctx, "reset", http.MethodPost, "/api/reset", struct{}{}, nil)
}

func (h *HTTPClient) PollStatus(ctx context.Context) (core.StatusReport, error) {
	var rep core.StatusReport
	err := h.call(ctx, "poll status", http.MethodGet, "/api/status", nil, &rep)
	return rep, err
}

func (h *HTTPClient) FetchWorstSites(ctx context.Context) ([]core.WorstSite, error) {
	var out struct {
		Sites []core.WorstSite `json:"sites"`
	}
	if err := h.call(ctx, "fetch worst sites", http.MethodGet, "/api/worst_sites", nil, &out); err != nil {
		return nil, err
	}
	return out.Sites, nil
}

func (h *HTTPClient) endpoint(path string) string {
	u := *h.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// call performs one envelope round trip and decodes data into out (when non-nil).
func (h *HTTPClient) call(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return core.Validation(op, "encoding request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.endpoint(path), reader)
	if err != nil {
		return core.TransportFailure(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return core.TransportFailure(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return core.TransportFailure(op, err)
	}
	h.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return core.BackendFailure(op, "not logged in to the backend")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return core.BackendFailure(op, fmt.Sprintf("backend returned %s", resp.Status))
		}
		return core.BackendFailure(op, fmt.Sprintf("malformed backend reply: %v", err))
	}
	if !env.Success || resp.StatusCode >= 400 {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("backend returned %s", resp.Status)
		}
		return core.BackendFailure(op, msg)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return core.BackendFailure(op, fmt.Sprintf("decoding backend data: %v", err))
	}
	return nil
}
