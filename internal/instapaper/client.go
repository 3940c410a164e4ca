// Package instapaper implements the client for the Instapaper Full API
// (v1.1): xAuth token exchange plus the three bookmark operations the sync
// cycle needs. All requests are OAuth1-signed form POSTs.
package instapaper

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gomodule/oauth1/oauth"

	"github.com/mpetitjean/newsrack/pkg/errors"
	"github.com/mpetitjean/newsrack/pkg/logging"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://www.instapaper.com/api/1.1"

	// DefaultTimeout bounds every request to the service.
	DefaultTimeout = 15 * time.Second

	// service names this API in errors and logs.
	service = "instapaper"

	// maxResponseBytes caps how much of a response body we are willing
	// to decode.
	maxResponseBytes = 10 << 20
)

// Credentials holds the OAuth consumer pair and the account the tool acts for.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	Username       string
	Password       string
}

// Bookmark is one remote bookmark record in normalized form. Ephemeral:
// fetched fresh every cycle, never persisted.
type Bookmark struct {
	// ID is the bookmark identifier coerced to a string.
	ID string

	// Starred reports whether the user has liked the bookmark. A starred
	// bookmark must never be deleted remotely.
	Starred bool

	// Raw is the decoded record as returned by the API.
	Raw map[string]any
}

// Client talks to the Instapaper API on behalf of one account. Not safe for
// concurrent use; the sync cycle is strictly sequential anyway.
type Client struct {
	creds   Credentials
	baseURL string
	httpc   *http.Client
	oauth   oauth.Client
	token   *oauth.Credentials
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, primarily for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpc = h
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpc.Timeout = d
	}
}

// New creates a client. Authenticate must be called before any bookmark
// operation.
func New(creds Credentials, opts ...Option) *Client {
	c := &Client{
		creds:   creds,
		baseURL: DefaultBaseURL,
		httpc:   &http.Client{Timeout: DefaultTimeout},
		oauth: oauth.Client{
			SignatureMethod: oauth.HMACSHA1,
			Credentials: oauth.Credentials{
				Token:  creds.ConsumerKey,
				Secret: creds.ConsumerSecret,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate performs the xAuth credential exchange and stores the
// resulting access token on the client. Any failure here is fatal to the
// run: nothing else can proceed without a token.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{
		"x_auth_username": {c.creds.Username},
		"x_auth_password": {c.creds.Password},
		"x_auth_mode":     {"client_auth"},
	}

	resp, err := c.postForm(ctx, c.baseURL+"/oauth/access_token", form, nil)
	if err != nil {
		return errors.NewAuthenticationError(service, "xauth", "token exchange failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.NewAuthenticationError(service, "xauth", "reading token response failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.NewAuthenticationError(service, "xauth",
			"token exchange returned status "+resp.Status, nil)
	}

	vals, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return errors.NewAuthenticationError(service, "xauth", "malformed token response", err)
	}
	token := vals.Get("oauth_token")
	secret := vals.Get("oauth_token_secret")
	if token == "" || secret == "" {
		return errors.NewAuthenticationError(service, "xauth", "token response missing credentials", nil)
	}

	c.token = &oauth.Credentials{Token: token, Secret: secret}
	logging.Debug().Msg("Instapaper token acquired")
	return nil
}

// Add submits a URL as a new unread bookmark. Success requires a 2xx status
// and a body that is a non-empty JSON array whose first element carries a
// bookmark_id; anything else is an error the caller logs and moves past.
func (c *Client) Add(ctx context.Context, articleURL string) (Bookmark, error) {
	body, err := c.call(ctx, "/bookmarks/add", url.Values{"url": {articleURL}})
	if err != nil {
		return Bookmark{}, err
	}

	seq, ok := body.([]any)
	if !ok || len(seq) == 0 {
		return Bookmark{}, errors.NewParseError("json", "bookmarks/add",
			"expected a non-empty array response", nil)
	}
	rec, ok := seq[0].(map[string]any)
	if !ok {
		return Bookmark{}, errors.NewParseError("json", "bookmarks/add",
			"first element is not an object", nil)
	}
	id := coerceString(rec["bookmark_id"])
	if id == "" {
		return Bookmark{}, errors.NewParseError("json", "bookmarks/add",
			"response lacks a bookmark_id", nil)
	}

	return Bookmark{
		ID:      id,
		Starred: coerceString(rec["starred"]) == "1",
		Raw:     rec,
	}, nil
}

// List fetches the unread bookmarks and returns them normalized, keyed by
// bookmark ID. A transport failure or an undecodable body is returned as an
// error so that the caller can apply its fail-safe; a decodable body of an
// unexpected shape normalizes to an empty map instead.
func (c *Client) List(ctx context.Context) (map[string]Bookmark, error) {
	body, err := c.call(ctx, "/bookmarks/list", url.Values{})
	if err != nil {
		return nil, err
	}
	return NormalizeBookmarks(body), nil
}

// Delete removes a bookmark remotely. The response body is ignored.
func (c *Client) Delete(ctx context.Context, bookmarkID string) error {
	resp, err := c.post(ctx, "/bookmarks/delete", url.Values{"bookmark_id": {bookmarkID}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.NewAPIError(service, resp.StatusCode, "delete rejected")
	}
	return nil
}

// call performs an authenticated POST and decodes the JSON response body.
// Numbers are decoded as json.Number so bookmark IDs survive coercion to
// strings without float rounding.
func (c *Client) call(ctx context.Context, path string, form url.Values) (any, error) {
	resp, err := c.post(ctx, path, form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &errors.APIError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Message:    "request rejected",
			Endpoint:   path,
		}
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, errors.WrapParse("json", path, err)
	}
	return body, nil
}

// post signs and sends one form POST using the stored access token.
func (c *Client) post(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	if c.token == nil {
		return nil, errors.NewAuthenticationError(service, "oauth", "client is not authenticated", nil)
	}
	resp, err := c.postForm(ctx, c.baseURL+path, form, c.token)
	if err != nil {
		return nil, errors.WrapAPI(service, 0, err)
	}
	return resp, nil
}

// postForm builds an OAuth1-signed form POST. A nil token signs with the
// consumer credentials only, which is what the xAuth exchange requires.
func (c *Client) postForm(ctx context.Context, uri string, form url.Values, token *oauth.Credentials) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := c.oauth.SetAuthorizationHeader(req.Header, token, http.MethodPost, req.URL, form); err != nil {
		return nil, err
	}
	return c.httpc.Do(req)
}
