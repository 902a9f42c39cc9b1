// Package shibl is the typed client for the platform REST API. The API is the
// single external collaborator of the verification screens: everything else in
// this repo talks to it through this package.
package shibl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shibl-edu/shibl/core"
	"github.com/shibl-edu/shibl/core/verification"
)

// Flow selects the account-type segment of the auth routes.
type Flow string

const (
	FlowStudents Flow = "students"
	FlowParents  Flow = "parents"
	FlowTeachers Flow = "teachers"
)

// Role is the singular account role for a flow.
func (f Flow) Role() string {
	switch f {
	case FlowParents:
		return "parent"
	case FlowTeachers:
		return "teacher"
	default:
		return "student"
	}
}

// Broker topics published by the client.
const (
	TopicVerified       = "auth.verified"
	TopicTokenRefreshed = "auth.token-refreshed"
)

type (
	// Options configures a Client. A Client binds to a single Flow; run one
	// client per account type.
	Options struct {
		BaseURL  string
		Flow     Flow
		Language string // Accept-Language, defaults to "ar"
		Timeout  time.Duration
		Token    string // optional pre-held access token

		Broker *core.Broker // optional, for cross-screen notifications
		Logger core.Logger  // optional

		// HTTPClient overrides the transport, mainly for tests.
		HTTPClient *http.Client
	}

	Client struct {
		base     *url.URL
		flow     Flow
		language string
		http     *http.Client
		broker   *core.Broker
		logger   core.Logger

		mu          sync.Mutex
		token       string
		tokenExpiry time.Time
	}

	// Account is the server-side representation of a user, as returned in
	// response envelopes.
	Account struct {
		ID    int    `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone,omitempty"`
	}

	// envelope is the response shape shared by every endpoint.
	envelope struct {
		Success          bool    `json:"success"`
		Message          string  `json:"message"`
		LocalizedMessage string  `json:"localized_message,omitempty"`
		Data             payload `json:"data"`
	}

	payload struct {
		Student *Account `json:"student,omitempty"`
		Parent  *Account `json:"parent,omitempty"`
		Teacher *Account `json:"teacher,omitempty"`
		Token   string   `json:"token,omitempty"`
	}
)

// NewClient creates a client for one auth flow.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing base URL")
	}
	if opts.Flow == "" {
		opts.Flow = FlowStudents
	}
	if opts.Language == "" {
		opts.Language = "ar"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		base:     base,
		flow:     opts.Flow,
		language: opts.Language,
		http:     httpClient,
		broker:   opts.Broker,
		logger:   opts.Logger,
	}
	if opts.Token != "" {
		c.SetToken(opts.Token)
	}
	return c, nil
}

func (c *Client) Flow() Flow { return c.flow }

// Token returns the currently held access token, if any.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken stores the access token and reads its claims without verifying the
// signature; the server owns the secret, the client only needs identity and
// expiry.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.tokenExpiry = time.Time{}
	if token == "" {
		return
	}
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err == nil {
		if exp, ok := claims["exp"].(float64); ok {
			c.tokenExpiry = time.Unix(int64(exp), 0)
		}
	}
}

func (c *Client) tokenExpired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.tokenExpiry.IsZero() && time.Now().After(c.tokenExpiry)
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/auth/" + string(c.flow) + "/" + strings.Join(parts, "/")
	return u.String()
}

// do performs one API call. Public auth endpoints (authed=false) own their
// 401 semantics (a wrong or expired code is a 401); authenticated calls get a
// single refresh-and-retry on 401.
func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}, authed bool) (*envelope, error) {
	if authed && c.Token() == "" {
		return nil, &verification.Error{Kind: verification.KindUnauthenticated, Message: "no access token held"}
	}
	if authed && c.tokenExpired() {
		// the token is already dead; refresh before the doomed call
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	env, status, err := c.roundTrip(ctx, method, endpoint, body, authed)
	if err != nil {
		return nil, err
	}
	if authed && status == http.StatusUnauthorized {
		if rerr := c.Refresh(ctx); rerr == nil {
			env, status, err = c.roundTrip(ctx, method, endpoint, body, authed)
			if err != nil {
				return nil, err
			}
		} else if c.logger != nil {
			c.logger.Warn("token refresh failed", rerr)
		}
	}

	if status >= http.StatusBadRequest || !env.Success {
		if status < http.StatusBadRequest {
			// 2xx with success=false still carries an application failure
			status = http.StatusBadRequest
		}
		return nil, verification.Classify(status, env.Message, env.LocalizedMessage)
	}
	return env, nil
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, body interface{}, authed bool) (*envelope, int, error) {
	var token string
	if authed {
		token = c.Token()
	}
	return c.roundTripWithToken(ctx, method, endpoint, body, token)
}

func (c *Client) roundTripWithToken(ctx context.Context, method, endpoint string, body interface{}, token string) (*envelope, int, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, 0, errors.Wrap(err, "encoding request body")
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, 0, errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", c.language)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, 0, verification.Classify(0, err.Error(), "")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, verification.Classify(0, err.Error(), "")
	}

	env := &envelope{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, env); err != nil {
			// gateways answer with HTML; keep the status text as the message
			env.Message = http.StatusText(res.StatusCode)
		}
	}
	return env, res.StatusCode, nil
}

// account extracts whichever account the envelope carries.
func (p payload) account() *Account {
	switch {
	case p.Student != nil:
		return p.Student
	case p.Parent != nil:
		return p.Parent
	default:
		return p.Teacher
	}
}

// identity builds a verification.Identity from a successful envelope,
// adopting the token when one is issued.
func (c *Client) identity(env *envelope) verification.Identity {
	id := verification.Identity{Role: c.flow.Role()}
	if acct := env.Data.account(); acct != nil {
		id.ID = acct.ID
		id.Name = acct.Name
		id.Email = acct.Email
	}
	if env.Data.Token != "" {
		c.SetToken(env.Data.Token)
		id.Token = env.Data.Token
		c.mu.Lock()
		id.TokenExpiry = c.tokenExpiry
		c.mu.Unlock()
	}
	return id
}

func (c *Client) publish(topic string, payload interface{}) {
	if c.broker != nil {
		c.broker.Publish(topic, payload)
	}
}
