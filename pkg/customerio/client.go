// Package customerio is a client for the customer.io tracking API.
//
// Every operation validates its arguments synchronously and then issues a
// single authenticated HTTPS request in the background. The returned Result
// settles with nil on HTTP 200 and with an error otherwise. There are no
// retries, no timeouts beyond the caller's context and no shared mutable
// state between calls.
package customerio

import (
	"bytes"
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const (
	Host           = "track.customer.io"
	DefaultBaseURL = "https://" + Host

	customersPath = "/api/v1/customers/"
)

// Doer sends a request and returns its response. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	siteID  string
	apiKey  string
	baseURL string
	httpc   Doer
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.httpc = d
		}
	}
}

// WithBaseURL points the client at another scheme://host, e.g. a local
// emulator or an httptest server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func New(siteID, apiKey string, opts ...Option) (*Client, error) {
	if siteID == "" || apiKey == "" {
		return nil, ErrMissingCredentials
	}
	c := &Client{
		siteID:  siteID,
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		httpc:   &http.Client{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Identify creates or updates a customer profile. attrs is copied before
// created_at and email are added to it.
func (c *Client) Identify(ctx context.Context, customerID, email string, attrs map[string]any) (*Result, error) {
	if customerID == "" || email == "" {
		return nil, ErrMissingIdentifyArgs
	}

	data := maps.Clone(attrs)
	if data == nil {
		data = make(map[string]any, 2)
	}
	data["created_at"] = c.now().UnixMilli()
	data["email"] = email

	body, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "marshal profile")
	}
	return c.send(ctx, http.MethodPut, customerID, "", body)
}

// Delete removes a customer profile.
func (c *Client) Delete(ctx context.Context, customerID string) (*Result, error) {
	if customerID == "" {
		return nil, ErrMissingCustomerID
	}
	return c.send(ctx, http.MethodDelete, customerID, "", nil)
}

type eventBody struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
}

// Track records a named event for a customer. data must be non-nil; an empty
// map is fine.
func (c *Client) Track(ctx context.Context, customerID, name string, data map[string]any) (*Result, error) {
	if customerID == "" || name == "" || data == nil {
		return nil, ErrMissingTrackArgs
	}

	body, err := json.Marshal(eventBody{Name: name, Data: data})
	if err != nil {
		return nil, errors.Wrap(err, "marshal event")
	}
	return c.send(ctx, http.MethodPost, customerID, "/events", body)
}

func (c *Client) send(ctx context.Context, method, customerID, extraPath string, body []byte) (*Result, error) {
	req, err := c.newRequest(ctx, method, customerID, extraPath, body)
	if err != nil {
		return nil, err
	}

	res := newResult()
	go func() {
		res.settle(c.do(req))
	}()
	return res, nil
}

func (c *Client) newRequest(ctx context.Context, method, customerID, extraPath string, body []byte) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u.Path = customersPath + customerID + extraPath
	u.RawPath = customersPath + url.PathEscape(customerID) + extraPath

	var req *http.Request
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "keep-alive")
	if body != nil {
		// byte length, not rune count
		req.ContentLength = int64(len(body))
	}
	req.SetBasicAuth(c.siteID, c.apiKey)
	return req, nil
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	return readAPIError(resp)
}
