package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	path   string
	user   string
	pass   string
	body   map[string]any
}

func newAPI(t *testing.T, status int, respBody string) (*httptest.Server, *[]captured) {
	t.Helper()
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{method: r.Method, path: r.URL.EscapedPath()}
		c.user, c.pass, _ = r.BasicAuth()
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &c.body)
		}
		got = append(got, c)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := BuildRoot()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestIdentify(t *testing.T) {
	srv, got := newAPI(t, http.StatusOK, "")

	out, err := run(t, "--site-id", "site", "--api-key", "key", "--base-url", srv.URL,
		"identify", "u1", "a@b.com", "--attr", "plan=pro", "--attr", "team=core")
	require.NoError(t, err)
	require.Equal(t, "ok\n", out)

	require.Len(t, *got, 1)
	c := (*got)[0]
	require.Equal(t, http.MethodPut, c.method)
	require.Equal(t, "/api/v1/customers/u1", c.path)
	require.Equal(t, "site", c.user)
	require.Equal(t, "key", c.pass)
	require.Equal(t, "a@b.com", c.body["email"])
	require.Equal(t, "pro", c.body["plan"])
	require.Equal(t, "core", c.body["team"])
	require.Contains(t, c.body, "created_at")
}

func TestDelete_CredentialsFromEnv(t *testing.T) {
	t.Setenv("CUSTOMERIO_ID", "env-site")
	t.Setenv("CUSTOMERIO_KEY", "env-key")
	srv, got := newAPI(t, http.StatusOK, "")

	_, err := run(t, "--base-url", srv.URL, "delete", "u1")
	require.NoError(t, err)

	require.Len(t, *got, 1)
	require.Equal(t, http.MethodDelete, (*got)[0].method)
	require.Equal(t, "env-site", (*got)[0].user)
	require.Equal(t, "env-key", (*got)[0].pass)
}

func TestTrack(t *testing.T) {
	srv, got := newAPI(t, http.StatusOK, "")

	_, err := run(t, "--site-id", "s", "--api-key", "k", "--base-url", srv.URL,
		"track", "u1", "signup", "--data", `{"plan":"pro"}`)
	require.NoError(t, err)

	require.Len(t, *got, 1)
	c := (*got)[0]
	require.Equal(t, "/api/v1/customers/u1/events", c.path)
	require.Equal(t, "signup", c.body["name"])
	require.Equal(t, map[string]any{"plan": "pro"}, c.body["data"])
}

func TestTrack_DefaultDataIsEmptyObject(t *testing.T) {
	srv, got := newAPI(t, http.StatusOK, "")

	_, err := run(t, "--site-id", "s", "--api-key", "k", "--base-url", srv.URL, "track", "u1", "signup")
	require.NoError(t, err)
	require.Equal(t, map[string]any{}, (*got)[0].body["data"])
}

func TestTrack_BadData(t *testing.T) {
	_, err := run(t, "--site-id", "s", "--api-key", "k", "track", "u1", "signup", "--data", "{nope")
	require.ErrorContains(t, err, "parse --data")
}

func TestAPIErrorSurfaced(t *testing.T) {
	srv, _ := newAPI(t, http.StatusUnauthorized, `{"meta":{"error":"unauthorized"}}`)

	_, err := run(t, "--site-id", "s", "--api-key", "k", "--base-url", srv.URL, "delete", "u1")
	require.EqualError(t, err, `customer.io returned error: "unauthorized"`)
}

func TestMissingCredentials(t *testing.T) {
	t.Setenv("CUSTOMERIO_ID", "")
	t.Setenv("CUSTOMERIO_KEY", "")

	_, err := run(t, "delete", "u1")
	require.EqualError(t, err, "must supply both a site key and an API key")
}

func TestArgsCount(t *testing.T) {
	_, err := run(t, "identify", "u1")
	require.Error(t, err)
}
