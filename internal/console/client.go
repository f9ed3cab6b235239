package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/rbac"
	"github.com/odyssey-erp/storefront/internal/shared"
	"github.com/odyssey-erp/storefront/internal/stepup"
)

var (
	// ErrNotLoggedIn is returned when the server rejects the session.
	ErrNotLoggedIn = errors.New("console: not logged in")
	// ErrLoginFailed is returned for rejected credentials.
	ErrLoginFailed = errors.New("console: login failed")
)

// Client talks to the storefront admin API on behalf of one operator session.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	cookieName string

	mu      sync.Mutex
	session string
	csrf    string

	group singleflight.Group
}

// NewClient builds a client for baseURL. session may be empty until Login.
func NewClient(baseURL, cookieName, session string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("console: base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("console: base url %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    u,
		http:       &http.Client{Timeout: timeout},
		cookieName: cookieName,
		session:    session,
	}, nil
}

// Session returns the current session cookie value.
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Login exchanges credentials for a session cookie. The anonymous session
// and its CSRF token come from GET /auth/csrf.
func (c *Client) Login(ctx context.Context, email, password string) error {
	resp, err := c.do(ctx, http.MethodGet, "/auth/csrf", nil, nil)
	if err != nil {
		return err
	}
	drain(resp)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: csrf status %d", ErrLoginFailed, resp.StatusCode)
	}
	c.rememberSession(resp)
	c.rememberCSRF(resp)

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	resp, err = c.do(ctx, http.MethodPost, "/auth/login", nil, body)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}
	if !c.rememberSession(resp) {
		return fmt.Errorf("%w: no session cookie", ErrLoginFailed)
	}
	c.rememberCSRF(resp)
	return nil
}

// Logout ends the server session.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	if err != nil {
		return err
	}
	drain(resp)
	c.mu.Lock()
	c.session = ""
	c.csrf = ""
	c.mu.Unlock()
	return nil
}

func (c *Client) rememberSession(resp *http.Response) bool {
	for _, ck := range resp.Cookies() {
		if ck.Name == c.cookieName && ck.Value != "" {
			c.mu.Lock()
			c.session = ck.Value
			c.mu.Unlock()
			return true
		}
	}
	return false
}

// FetchGrants loads the effective table for role. Concurrent calls for the
// same role share one request; a caller giving up does not cancel it for
// the others.
func (c *Client) FetchGrants(ctx context.Context, role authz.Role) (*authz.Table, error) {
	ch := c.group.DoChan("grants:"+role.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.http.Timeout)
		defer cancel()
		return c.fetchGrants(fetchCtx, role)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*authz.Table), nil
	}
}

func (c *Client) fetchGrants(ctx context.Context, role authz.Role) (*authz.Table, error) {
	q := url.Values{"role": {role.String()}}
	resp, err := c.do(ctx, http.MethodGet, "/api/permissions", q, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrNotLoggedIn
	default:
		return nil, fmt.Errorf("console: fetch grants: status %d", resp.StatusCode)
	}
	c.rememberCSRF(resp)

	var view rbac.PermissionsView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("console: decode grants: %w", err)
	}
	return tableFromView(view)
}

// VerifySecret asks the server to check a step-up secret.
func (c *Client) VerifySecret(ctx context.Context, role authz.Role, secret string) error {
	if c.csrfToken() == "" {
		// The permissions endpoint hands out the token.
		if _, err := c.FetchGrants(ctx, role); err != nil {
			return err
		}
	}
	body, err := json.Marshal(stepup.VerifyRequest{Role: role.String(), Secret: secret})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/step-up", nil, body)
	if err != nil {
		return err
	}
	defer drain(resp)
	switch resp.StatusCode {
	case http.StatusOK:
		var out stepup.VerifyResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("console: decode step-up: %w", err)
		}
		if !out.Verified {
			return ErrSecretMismatch
		}
		return nil
	case http.StatusUnauthorized:
		if c.Session() == "" {
			return ErrNotLoggedIn
		}
		return ErrSecretMismatch
	case http.StatusUnprocessableEntity:
		return stepup.ErrNotRequired
	default:
		return fmt.Errorf("console: step-up: status %d", resp.StatusCode)
	}
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte) (*http.Response, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.session})
	}
	if c.csrf != "" && method != http.MethodGet {
		req.Header.Set(shared.CSRFHeader, c.csrf)
	}
	c.mu.Unlock()
	return c.http.Do(req)
}

func (c *Client) rememberCSRF(resp *http.Response) {
	token := resp.Header.Get(shared.CSRFHeader)
	if token == "" {
		return
	}
	c.mu.Lock()
	c.csrf = token
	c.mu.Unlock()
}

func (c *Client) csrfToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.csrf
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// tableFromView rebuilds a table holding the grants of a single role.
func tableFromView(view rbac.PermissionsView) (*authz.Table, error) {
	role, err := authz.ParseRole(view.Role)
	if err != nil {
		return nil, err
	}
	perRole := make(map[authz.Resource]authz.ActionSet, len(view.Grants))
	for name, actions := range view.Grants {
		res, err := authz.ParseResource(name)
		if err != nil {
			return nil, err
		}
		var set authz.ActionSet
		for _, a := range actions {
			action, err := authz.ParseAction(a)
			if err != nil {
				return nil, err
			}
			set |= authz.NewActionSet(action)
		}
		perRole[res] = set
	}
	sensitive := authz.DefaultSensitive()
	for _, name := range view.Sensitive {
		res, err := authz.ParseResource(name)
		if err != nil {
			return nil, err
		}
		sensitive = append(sensitive, res)
	}
	return authz.NewTable(authz.Grants{role: perRole}, sensitive), nil
}
