package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/envtree/internal/configs"
	"github.com/alfredjeanlab/envtree/internal/export"
	"github.com/alfredjeanlab/envtree/internal/model"
)

// HTTPClient talks to the envtree HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
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

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Users ---

func (c *HTTPClient) RegisterUser(ctx context.Context, email, name string) (*model.User, error) {
	var u model.User
	body := map[string]string{"email": email, "name": name}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/users", body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) CurrentUser(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.doJSON(ctx, http.MethodGet, "/v1/users/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser changes the display name and/or username; nil leaves a field unchanged.
func (c *HTTPClient) UpdateUser(ctx context.Context, name, username *string) (*model.User, error) {
	body := map[string]*string{}
	if name != nil {
		body["name"] = name
	}
	if username != nil {
		body["username"] = username
	}
	var u model.User
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/users/me", body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) RegenerateToken(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.doJSON(ctx, http.MethodPost, "/v1/users/me/token", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) DeleteUser(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/users/me", nil, nil)
}

// --- Projects ---

func projectPath(projectID string) string {
	return "/v1/projects/" + url.PathEscape(projectID)
}

func (c *HTTPClient) CreateProject(ctx context.Context, name, description string) (*model.Project, error) {
	var p model.Project
	body := map[string]string{"name": name, "description": description}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/projects", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) ListProjects(ctx context.Context) ([]*model.Project, error) {
	var resp struct {
		Projects []*model.Project `json:"projects"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/projects", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

func (c *HTTPClient) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	var p model.Project
	if err := c.doJSON(ctx, http.MethodGet, projectPath(projectID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) DeleteProject(ctx context.Context, projectID string) error {
	return c.doJSON(ctx, http.MethodDelete, projectPath(projectID), nil, nil)
}

func (c *HTTPClient) AddMember(ctx context.Context, projectID, email string) (*model.User, error) {
	var u model.User
	if err := c.doJSON(ctx, http.MethodPost, projectPath(projectID)+"/members", map[string]string{"email": email}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) GetEvents(ctx context.Context, projectID string) ([]*model.Event, error) {
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, projectPath(projectID)+"/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// --- Configs ---

func configPath(projectID, configID string) string {
	return projectPath(projectID) + "/configs/" + url.PathEscape(configID)
}

// SetValueRequest is the body of a single-property write.
type SetValueRequest struct {
	Version string  `json:"version"`
	Value   *string `json:"value"`
	Hidden  bool    `json:"hidden,omitempty"`
	Group   *string `json:"group,omitempty"`
	Create  bool    `json:"create,omitempty"`
}

func (c *HTTPClient) ListConfigs(ctx context.Context, projectID string) ([]*configs.ResolvedConfig, error) {
	var resp struct {
		Configs []*configs.ResolvedConfig `json:"configs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, projectPath(projectID)+"/configs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Configs, nil
}

// GetConfig returns the config with its chain and resolved values.
func (c *HTTPClient) GetConfig(ctx context.Context, projectID, configID string) (*configs.ResolvedConfig, error) {
	var rc configs.ResolvedConfig
	if err := c.doJSON(ctx, http.MethodGet, configPath(projectID, configID), nil, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

func (c *HTTPClient) configCall(ctx context.Context, method, path string, body any) (*model.Config, error) {
	var cfg model.Config
	if err := c.doJSON(ctx, method, path, body, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HTTPClient) CreateConfig(ctx context.Context, projectID, name string) (*model.Config, error) {
	return c.configCall(ctx, http.MethodPost, projectPath(projectID)+"/configs", map[string]string{"name": name})
}

func (c *HTTPClient) DuplicateConfig(ctx context.Context, projectID, sourceID, name string) (*model.Config, error) {
	return c.configCall(ctx, http.MethodPost, configPath(projectID, sourceID)+"/duplicate", map[string]string{"name": name})
}

// LinkConfig creates a config named name that inherits from targetID.
func (c *HTTPClient) LinkConfig(ctx context.Context, projectID, targetID, name string) (*model.Config, error) {
	return c.configCall(ctx, http.MethodPost, configPath(projectID, targetID)+"/link", map[string]string{"name": name})
}

func (c *HTTPClient) UnlinkConfig(ctx context.Context, projectID, configID, version string) (*model.Config, error) {
	return c.configCall(ctx, http.MethodPost, configPath(projectID, configID)+"/unlink", map[string]string{"version": version})
}

func (c *HTTPClient) RenameConfig(ctx context.Context, projectID, configID, version, name string) (*model.Config, error) {
	return c.configCall(ctx, http.MethodPatch, configPath(projectID, configID), map[string]string{"name": name, "version": version})
}

func (c *HTTPClient) UpdateValues(ctx context.Context, projectID, configID, version string, values model.ValueMap) (*model.Config, error) {
	return c.configCall(ctx, http.MethodPut, configPath(projectID, configID)+"/values", map[string]any{"version": version, "values": values})
}

func (c *HTTPClient) SetValue(ctx context.Context, projectID, configID, key string, req SetValueRequest) (*model.Config, error) {
	return c.configCall(ctx, http.MethodPut, configPath(projectID, configID)+"/values/"+url.PathEscape(key), req)
}

func (c *HTTPClient) UnsetValue(ctx context.Context, projectID, configID, version, key string) (*model.Config, error) {
	path := configPath(projectID, configID) + "/values/" + url.PathEscape(key) + "?version=" + url.QueryEscape(version)
	return c.configCall(ctx, http.MethodDelete, path, nil)
}

func (c *HTTPClient) DeleteConfig(ctx context.Context, projectID, configID string) error {
	return c.doJSON(ctx, http.MethodDelete, configPath(projectID, configID), nil, nil)
}

// Download fetches the rendered config using the client's token.
func (c *HTTPClient) Download(ctx context.Context, projectID, configID string, format export.Format) (*Download, error) {
	path := configPath(projectID, configID) + "/export?format=" + url.QueryEscape(string(format))
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return &Download{Format: format, Filename: format.DefaultFilename(), Content: body}, nil
}

// LegacyDownload fetches the rendered config through POST /api/config with
// credentials in the body, as the original download CLI does.
func (c *HTTPClient) LegacyDownload(ctx context.Context, projectID, configID, email, token string, format export.Format) (*Download, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/config", map[string]string{
		"projectId": projectID,
		"configId":  configID,
		"type":      string(format),
		"userEmail": email,
		"userToken": token,
	})
	if err != nil {
		return nil, err
	}
	return &Download{Format: format, Filename: format.DefaultFilename(), Content: body}, nil
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

// do performs an HTTP request with an optional JSON body and returns the raw
// response body. Error statuses become *APIError.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, nil
}

// doJSON performs a request and decodes the JSON response into result.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	respBody, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
