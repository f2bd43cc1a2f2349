// Package fly provides a client for the Fly Machines REST API.
//
// The client covers the narrow capability set the provisioning layer
// needs: apps, machines, volumes, and exec-on-machine. Interactive
// console access stays with the fly CLI and is not part of this package.
package fly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultAPIHost is the public Machines API endpoint.
	DefaultAPIHost = "https://api.machines.dev"

	apiVersion         = "v1"
	defaultExecTimeout = 60 // seconds, enforced server-side
)

// APIError is a non-2xx response from the platform.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("machines api: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the Fly Machines API. It implements FleetProvider.
type Client struct {
	baseURL string
	token   string
	http    *retryablehttp.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API host, used by tests and private deployments.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// NewClient builds a Client authenticated with the given API token.
// Transient failures (connection errors, 429, 5xx) are retried with
// backoff by the underlying HTTP client.
func NewClient(token string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 4
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 8 * time.Second
	rc.HTTPClient.Timeout = 2 * time.Minute
	rc.Logger = logrus.StandardLogger()

	c := &Client{
		baseURL: DefaultAPIHost,
		token:   token,
		http:    rc,
	}
	if host := os.Getenv("FLY_API_HOSTNAME"); host != "" {
		c.baseURL = host
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListApps returns all apps of an organization.
func (c *Client) ListApps(ctx context.Context, org string) ([]App, error) {
	var out struct {
		TotalApps int   `json:"total_apps"`
		Apps      []App `json:"apps"`
	}
	path := fmt.Sprintf("/apps?org_slug=%s", url.QueryEscape(org))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	return out.Apps, nil
}

// CreateApp creates an app owned by org.
func (c *Client) CreateApp(ctx context.Context, name, org string) error {
	body := map[string]string{
		"app_name": name,
		"org_slug": org,
	}
	if err := c.do(ctx, http.MethodPost, "/apps", body, nil); err != nil {
		return fmt.Errorf("failed to create app %s: %w", name, err)
	}
	return nil
}

// ListMachines returns all machines of an app.
func (c *Client) ListMachines(ctx context.Context, app string) ([]Machine, error) {
	var out []Machine
	path := fmt.Sprintf("/apps/%s/machines", url.PathEscape(app))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list machines in %s: %w", app, err)
	}
	return out, nil
}

// RunMachine creates and starts a machine.
func (c *Client) RunMachine(ctx context.Context, app string, req MachineCreateRequest) (*Machine, error) {
	var out Machine
	path := fmt.Sprintf("/apps/%s/machines", url.PathEscape(app))
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, fmt.Errorf("failed to run machine %s in %s: %w", req.Name, app, err)
	}
	return &out, nil
}

// CreateVolume creates a volume in an app.
func (c *Client) CreateVolume(ctx context.Context, app string, req VolumeCreateRequest) (*Volume, error) {
	var out Volume
	path := fmt.Sprintf("/apps/%s/volumes", url.PathEscape(app))
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, fmt.Errorf("failed to create volume %s in %s: %w", req.Name, app, err)
	}
	return &out, nil
}

// Exec runs a command inside a machine.
func (c *Client) Exec(ctx context.Context, app, machineID string, cmd []string) (*ExecResult, error) {
	body := struct {
		Command []string `json:"command"`
		Timeout int      `json:"timeout"`
	}{Command: cmd, Timeout: defaultExecTimeout}

	var out ExecResult
	path := fmt.Sprintf("/apps/%s/machines/%s/exec", url.PathEscape(app), url.PathEscape(machineID))
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, fmt.Errorf("failed to exec on machine %s: %w", machineID, err)
	}
	return &out, nil
}

// do performs one API call, encoding body as JSON and decoding the
// response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	u := fmt.Sprintf("%s/%s%s", c.baseURL, apiVersion, path)
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: apiMessage(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func apiMessage(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(data)
}
