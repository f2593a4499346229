package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rangekit/depot/pkg/errdefs"
	"github.com/rangekit/depot/pkg/registry/model"
	"github.com/rangekit/depot/pkg/util/xhttp"
	"github.com/rangekit/depot/pkg/util/xos"
	"github.com/rangekit/depot/pkg/versioning"
)

// DefaultPublishTimeout bounds a publish request.
const DefaultPublishTimeout = 300 * time.Second

// Client talks to one registry.
type Client struct {
	httpClient xhttp.Client
	baseURL    *url.URL
	token      string
}

// New creates a Client for the given API base URL. The token may be
// empty for read-only use.
func New(apiBaseURL, token string) (*Client, error) {
	base, err := url.Parse(apiBaseURL)
	if err != nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "invalid registry url %q: %s", apiBaseURL, err)
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    base,
		token:      token,
	}, nil
}

// SetHTTPClient replaces the underlying HTTP client, for tests.
func (c *Client) SetHTTPClient(hc xhttp.Client) {
	c.httpClient = hc
}

func (c *Client) endpoint(elems ...string) string {
	return c.baseURL.JoinPath(append([]string{"api", "v1"}, elems...)...).String()
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, target string, body io.Reader, out any) error {
	req, err := c.newRequest(ctx, method, target, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return xhttp.MakeRequestError(req, err)
	}
	defer resp.Body.Close()
	if err := xhttp.Success(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// UploadPackage streams a framed upload body to the registry.
func (c *Client) UploadPackage(ctx context.Context, body io.Reader, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.token == "" {
		return errdefs.Newf(errdefs.ErrUnauthorized, "no login token found, run `depot login` first")
	}
	req, err := c.newRequest(ctx, http.MethodPut, c.endpoint("package"), body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return xhttp.MakeRequestError(req, fmt.Errorf("failed to upload package: %w", err))
	}
	defer resp.Body.Close()
	return xhttp.Success(resp)
}

// GetPackageVersions returns all non-yanked versions of a package. An
// unknown package yields ErrNotFound.
func (c *Client) GetPackageVersions(ctx context.Context, name string) ([]model.Version, error) {
	var versions []model.Version
	if err := c.doJSON(ctx, http.MethodGet, c.endpoint("package", name), nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// GetPackageVersion returns a single version row.
func (c *Client) GetPackageVersion(ctx context.Context, name, version string) (model.Version, error) {
	var v model.Version
	err := c.doJSON(ctx, http.MethodGet, c.endpoint("package", name, version), nil, &v)
	return v, err
}

// GetLatestMatchingVersion resolves a version requirement to the latest
// matching non-yanked version.
func (c *Client) GetLatestMatchingVersion(ctx context.Context, name, requirement string) (model.Version, error) {
	target := c.endpoint("package", name) + "?version_requirement=" + url.QueryEscape(requirement)
	var v model.Version
	if err := c.doJSON(ctx, http.MethodGet, target, nil, &v); err != nil {
		return model.Version{}, err
	}
	return v, nil
}

// ValidateVersion fails fast when the candidate version would conflict
// with what the registry already has. An unknown package passes.
func (c *Client) ValidateVersion(ctx context.Context, name, version string) error {
	versions, err := c.GetPackageVersions(ctx, name)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return nil
		}
		return err
	}
	existing := make([]string, len(versions))
	for i, v := range versions {
		existing[i] = v.Version
	}
	conflict, err := versioning.IsStrictlyGreater(version, existing)
	if err != nil {
		return err
	}
	if conflict != "" {
		return errdefs.Newf(errdefs.ErrConflict,
			"package version %s already exists. Latest version is %s", version, conflict)
	}
	return nil
}

// DownloadPackage fetches the stored archive into filePath through a
// temporary file and an atomic rename.
func (c *Client) DownloadPackage(ctx context.Context, name, version, filePath string) error {
	target := c.endpoint("package", name, version, "download")
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return xhttp.MakeRequestError(req, fmt.Errorf("failed to download package: %w", err))
	}
	defer resp.Body.Close()
	if err := xhttp.Success(resp); err != nil {
		return err
	}
	if _, err := xos.WriteFileAtomic(filePath, resp.Body, 0o644); err != nil {
		return err
	}
	return nil
}

// Yank toggles the yanked flag of a version.
func (c *Client) Yank(ctx context.Context, name, version string, yanked bool) error {
	target := c.endpoint("package", name, version, "yank", fmt.Sprintf("%t", yanked))
	return c.doJSON(ctx, http.MethodPut, target, nil, nil)
}

// ListOwners returns the owner emails of a package.
func (c *Client) ListOwners(ctx context.Context, name string) ([]string, error) {
	var owners []string
	err := c.doJSON(ctx, http.MethodGet, c.endpoint("package", name, "owner"), nil, &owners)
	return owners, err
}

// AddOwner adds an owner email to a package.
func (c *Client) AddOwner(ctx context.Context, name, email string) error {
	target := c.endpoint("package", name, "owner") + "?email=" + url.QueryEscape(email)
	return c.doJSON(ctx, http.MethodPost, target, nil, nil)
}

// RemoveOwner removes an owner email from a package.
func (c *Client) RemoveOwner(ctx context.Context, name, email string) error {
	return c.doJSON(ctx, http.MethodDelete, c.endpoint("package", name, "owner", email), nil, nil)
}

// CreateToken mints a new API token. The returned secret is shown once.
func (c *Client) CreateToken(ctx context.Context, name string) (model.TokenCreated, error) {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return model.TokenCreated{}, err
	}
	var created model.TokenCreated
	err = c.doJSON(ctx, http.MethodPost, c.endpoint("token"), bytes.NewReader(body), &created)
	return created, err
}

// ListTokens lists the caller's tokens without secrets.
func (c *Client) ListTokens(ctx context.Context) ([]model.ApiToken, error) {
	var tokens []model.ApiToken
	err := c.doJSON(ctx, http.MethodGet, c.endpoint("token"), nil, &tokens)
	return tokens, err
}

