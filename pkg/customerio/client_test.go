package customerio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	header http.Header
	user   string
	pass   string
	length int64
	body   []byte
}

type fakeDoer struct {
	mu   sync.Mutex
	reqs []recordedRequest
	resp func() *http.Response
	err  error
}

func (d *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	rec := recordedRequest{
		method: req.Method,
		path:   req.URL.EscapedPath(),
		header: req.Header.Clone(),
		length: req.ContentLength,
	}
	rec.user, rec.pass, _ = req.BasicAuth()
	if req.Body != nil {
		rec.body, _ = io.ReadAll(req.Body)
	}

	d.mu.Lock()
	d.reqs = append(d.reqs, rec)
	d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}
	if d.resp != nil {
		return d.resp(), nil
	}
	return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func (d *fakeDoer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.reqs)
}

func (d *fakeDoer) last() recordedRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reqs[len(d.reqs)-1]
}

func waitResult(t *testing.T, res *Result) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := res.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

func TestNew_RequiresCredentials(t *testing.T) {
	for _, tc := range []struct {
		siteID, apiKey string
	}{
		{"", ""},
		{"site", ""},
		{"", "key"},
	} {
		c, err := New(tc.siteID, tc.apiKey)
		require.ErrorIs(t, err, ErrInvalidArgument)
		require.EqualError(t, err, "must supply both a site key and an API key")
		require.Nil(t, c)
	}

	c, err := New("site", "key")
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestClient_Preconditions_NoRequest(t *testing.T) {
	d := &fakeDoer{}
	c, err := New("site", "key", WithHTTPClient(d))
	require.NoError(t, err)
	ctx := context.Background()

	checks := []struct {
		name string
		call func() (*Result, error)
		want error
	}{
		{"identify without id", func() (*Result, error) { return c.Identify(ctx, "", "a@b.com", nil) }, ErrMissingIdentifyArgs},
		{"identify without email", func() (*Result, error) { return c.Identify(ctx, "u1", "", nil) }, ErrMissingIdentifyArgs},
		{"delete without id", func() (*Result, error) { return c.Delete(ctx, "") }, ErrMissingCustomerID},
		{"track without id", func() (*Result, error) { return c.Track(ctx, "", "signup", map[string]any{}) }, ErrMissingTrackArgs},
		{"track without name", func() (*Result, error) { return c.Track(ctx, "u1", "", map[string]any{}) }, ErrMissingTrackArgs},
		{"track without data", func() (*Result, error) { return c.Track(ctx, "u1", "signup", nil) }, ErrMissingTrackArgs},
	}
	for _, tc := range checks {
		t.Run(tc.name, func(t *testing.T) {
			res, err := tc.call()
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, ErrInvalidArgument)
			require.Nil(t, res)
		})
	}
	require.Zero(t, d.calls())
}

func TestClient_Identify_OK(t *testing.T) {
	var (
		gotMethod, gotPath, gotUser, gotPass string
		gotLen                               int64
		gotHeader                            http.Header
		gotBody                              []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		gotLen = r.ContentLength
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fixed := time.UnixMilli(1_700_000_000_123)
	c, err := New("site", "key", WithBaseURL(srv.URL), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	attrs := map[string]any{"first_name": "J"}
	res, err := c.Identify(context.Background(), "u1", "a@b.com", attrs)
	require.NoError(t, err)
	require.NoError(t, waitResult(t, res))

	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/api/v1/customers/u1", gotPath)
	require.Equal(t, "site", gotUser)
	require.Equal(t, "key", gotPass)
	require.Equal(t, "application/json", gotHeader.Get("Accept"))
	require.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	require.Equal(t, int64(len(gotBody)), gotLen)

	var body map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &body))
	require.Equal(t, "a@b.com", body["email"])
	require.Equal(t, "J", body["first_name"])
	require.Equal(t, float64(1_700_000_000_123), body["created_at"])

	// caller's map stays untouched
	require.Equal(t, map[string]any{"first_name": "J"}, attrs)
}

func TestClient_Identify_NilAttrs(t *testing.T) {
	d := &fakeDoer{}
	c, err := New("site", "key", WithHTTPClient(d))
	require.NoError(t, err)

	res, err := c.Identify(context.Background(), "u1", "a@b.com", nil)
	require.NoError(t, err)
	require.NoError(t, waitResult(t, res))

	var body map[string]any
	require.NoError(t, json.Unmarshal(d.last().body, &body))
	require.Len(t, body, 2)
	require.Equal(t, "a@b.com", body["email"])
	require.IsType(t, float64(0), body["created_at"])
}

func TestClient_RequestHeaders(t *testing.T) {
	d := &fakeDoer{}
	c, err := New("site", "key", WithHTTPClient(d))
	require.NoError(t, err)

	res, err := c.Track(context.Background(), "u1", "signup", map[string]any{"plan": "pro"})
	require.NoError(t, err)
	require.NoError(t, waitResult(t, res))

	rec := d.last()
	require.Equal(t, http.MethodPost, rec.method)
	require.Equal(t, "/api/v1/customers/u1/events", rec.path)
	require.Equal(t, "application/json", rec.header.Get("Accept"))
	require.Equal(t, "application/json", rec.header.Get("Content-Type"))
	require.Equal(t, "keep-alive", rec.header.Get("Connection"))
	require.Equal(t, "site", rec.user)
	require.Equal(t, "key", rec.pass)
	require.JSONEq(t, `{"name":"signup","data":{"plan":"pro"}}`, string(rec.body))
}

func TestClient_DefaultBaseURL(t *testing.T) {
	var gotURL string
	d := &urlDoer{fn: func(r *http.Request) { gotURL = r.URL.Scheme + "://" + r.URL.Host }}
	c, err := New("site", "key", WithHTTPClient(d))
	require.NoError(t, err)

	res, err := c.Delete(context.Background(), "u1")
	require.NoError(t, err)
	require.NoError(t, waitResult(t, res))
	require.Equal(t, "https://track.customer.io", gotURL)
}

type urlDoer struct {
	fn func(r *http.Request)
}

func (d *urlDoer) Do(r *http.Request) (*http.Response, error) {
	d.fn(r)
	return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: http.NoBody}, nil
}

func TestClient_Delete_NoBody(t *testing.T) {
	d := &fakeDoer{}
	c, err := New("site", "key", WithHTTPClient(d))
	require.NoError(t, err)

	res, err := c.Delete(context.Background(), "u1")
	require.NoError(t, err)
	require.NoError(t, waitResult(t, res))

	rec := d.last()
	require.Equal(t, http.MethodDelete, rec.method)
	require.Equal(t, "/api/v1/customers/u1", rec.path)
	require.Zero(t, rec.length)
	require.Empty(t, rec.body)
}

func TestClient_ContentLengthIsByteLength(t *testing.T) {
	d := &fakeDoer{}
	c, err := New("site", "key", WithHTTPClient(d))
	require.NoError(t, err)

	res, err := c.Track(context.Background(), "u1", "visit", map[string]any{"city": "Zürich", "mood": "🎉"})
	require.NoError(t, err)
	require.NoError(t, waitResult(t, res))

	rec := d.last()
	require.Equal(t, int64(len(rec.body)), rec.length)
	require.Greater(t, len(rec.body), len([]rune(string(rec.body))))
}

func TestClient_CustomerIDIsEscaped(t *testing.T) {
	d := &fakeDoer{}
	c, err := New("site", "key", WithHTTPClient(d))
	require.NoError(t, err)

	res, err := c.Delete(context.Background(), "a/b c")
	require.NoError(t, err)
	require.NoError(t, waitResult(t, res))
	require.Equal(t, "/api/v1/customers/a%2Fb%20c", d.last().path)
}

func TestClient_ErrorJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"meta":{"error":"not found"}}`))
	}))
	defer srv.Close()

	c, err := New("site", "key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	res, err := c.Delete(context.Background(), "u1")
	require.NoError(t, err)

	err = waitResult(t, res)
	require.EqualError(t, err, `customer.io returned error: "not found"`)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Equal(t, "not found", apiErr.Message)
}

func TestClient_ErrorText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}))
	defer srv.Close()

	c, err := New("site", "key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	res, err := c.Track(context.Background(), "u1", "signup", map[string]any{})
	require.NoError(t, err)
	require.EqualError(t, waitResult(t, res), `customer.io returned error: "Internal Server Error"`)
}

func TestClient_ErrorBodyFallsBackToText(t *testing.T) {
	for _, tc := range []struct {
		name, contentType, body string
	}{
		{"charset suffix is not parsed", "application/json; charset=utf-8", `{"meta":{"error":"x"}}`},
		{"broken json", "application/json", `{"meta":`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := &fakeDoer{resp: func() *http.Response {
				return &http.Response{
					StatusCode: http.StatusBadRequest,
					Header:     http.Header{"Content-Type": []string{tc.contentType}},
					Body:       io.NopCloser(strings.NewReader(tc.body)),
				}
			}}
			c, err := New("site", "key", WithHTTPClient(d))
			require.NoError(t, err)

			res, err := c.Delete(context.Background(), "u1")
			require.NoError(t, err)
			require.EqualError(t, waitResult(t, res), `customer.io returned error: "`+tc.body+`"`)
		})
	}
}

func TestClient_TransportErrorUnmodified(t *testing.T) {
	boom := errors.New("connection reset")
	d := &fakeDoer{err: boom}
	c, err := New("site", "key", WithHTTPClient(d))
	require.NoError(t, err)

	res, err := c.Identify(context.Background(), "u1", "a@b.com", nil)
	require.NoError(t, err)
	require.Equal(t, boom, waitResult(t, res))
}

type spyBody struct {
	mu     sync.Mutex
	read   bool
	closed bool
}

func (b *spyBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.read = true
	return 0, io.EOF
}

func (b *spyBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func TestClient_OKBodyClosedUnread(t *testing.T) {
	body := &spyBody{}
	d := &fakeDoer{resp: func() *http.Response {
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: body}
	}}
	c, err := New("site", "key", WithHTTPClient(d))
	require.NoError(t, err)

	res, err := c.Delete(context.Background(), "u1")
	require.NoError(t, err)
	require.NoError(t, waitResult(t, res))

	body.mu.Lock()
	defer body.mu.Unlock()
	require.False(t, body.read)
	require.True(t, body.closed)
}

func TestClient_ConcurrentTrackSettleIndependently(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/slow/") {
			<-release
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("later"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer func() {
		select {
		case <-release:
		default:
			close(release)
		}
	}()

	c, err := New("site", "key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	slow, err := c.Track(context.Background(), "slow", "e", map[string]any{})
	require.NoError(t, err)
	fast, err := c.Track(context.Background(), "fast", "e", map[string]any{})
	require.NoError(t, err)

	// the later call settles while the earlier one is still in flight
	require.NoError(t, waitResult(t, fast))
	select {
	case <-slow.Done():
		t.Fatal("slow call settled before release")
	default:
	}

	close(release)
	require.EqualError(t, waitResult(t, slow), `customer.io returned error: "later"`)
}
