package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scheduler-stats/internal/common/errors"
	"scheduler-stats/internal/stats"
)

const dashboardSchema = `{
  "type": "object",
  "required": ["totalJobs"],
  "properties": {"totalJobs": {"type": "integer"}}
}`

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats/dashboard", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"totalJobs":7}`))
	})
	mux.HandleFunc("/api/stats/workers", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"down"}`))
	})
	mux.HandleFunc("/api/stats/executions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"query":"` + r.URL.RawQuery + `"}`))
	})
	mux.HandleFunc("/api/stats/jobs/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"path":"` + r.URL.EscapedPath() + `"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeSchema(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_Dashboard(t *testing.T) {
	server := newBackend(t)
	var out bytes.Buffer

	err := run(context.Background(), []string{"dashboard", "-url", server.URL + "/api", "-token", "tkn"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "{\"totalJobs\":7}\n", out.String())
}

func TestRun_JobEscapesID(t *testing.T) {
	server := newBackend(t)
	var out bytes.Buffer

	err := run(context.Background(), []string{"job", "-url", server.URL + "/api", "-id", "a/b c"}, &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "/api/stats/jobs/a%2Fb%20c")
}

func TestRun_JobRequiresID(t *testing.T) {
	err := run(context.Background(), []string{"job", "-url", "http://localhost:1"}, &bytes.Buffer{})
	assert.EqualError(t, err, "job requires -id")
}

func TestRun_ExecutionsParams(t *testing.T) {
	server := newBackend(t)
	var out bytes.Buffer

	err := run(context.Background(), []string{"executions", "-url", server.URL + "/api", "status=failed", "page=2"}, &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "page=2&status=failed")
}

func TestRun_BackendErrorStatus(t *testing.T) {
	server := newBackend(t)

	err := run(context.Background(), []string{"workers", "-url", server.URL + "/api"}, &bytes.Buffer{})

	require.Error(t, err)
	assert.True(t, errors.IsStatus(err, http.StatusServiceUnavailable))
}

func TestRun_UnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"bogus"}, &out)

	assert.EqualError(t, err, `unknown command "bogus"`)
	assert.Contains(t, out.String(), "Usage: statsctl")
}

func TestRun_MissingCommand(t *testing.T) {
	err := run(context.Background(), nil, &bytes.Buffer{})
	assert.EqualError(t, err, "missing command")
}

func TestRun_SchemaValidation(t *testing.T) {
	server := newBackend(t)

	t.Run("valid body passes", func(t *testing.T) {
		var out bytes.Buffer
		err := run(context.Background(), []string{
			"dashboard", "-url", server.URL + "/api", "-token", "tkn",
			"-schema", writeSchema(t, dashboardSchema),
		}, &out)
		require.NoError(t, err)
		assert.NotEmpty(t, out.String())
	})

	t.Run("invalid body fails", func(t *testing.T) {
		schema := `{"type":"object","required":["activeWorkers"]}`
		err := run(context.Background(), []string{
			"dashboard", "-url", server.URL + "/api", "-token", "tkn",
			"-schema", writeSchema(t, schema),
		}, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "response does not match schema")
		assert.Contains(t, err.Error(), "activeWorkers")
	})

	t.Run("missing schema file", func(t *testing.T) {
		err := run(context.Background(), []string{
			"dashboard", "-url", server.URL + "/api", "-token", "tkn",
			"-schema", filepath.Join(t.TempDir(), "nope.json"),
		}, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read schema")
	})
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"status=done", "q=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, stats.Params{"status": "done", "q": "a=b", "empty": ""}, params)

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)

	_, err = parseParams([]string{"=x"})
	assert.Error(t, err)
}

func TestWriteBody_Pretty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeBody(&out, []byte(`{"a":1}`), true))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", out.String())

	out.Reset()
	body := `{"zeta":1,"alpha":12345678901234567890,"html":"<b>&</b>"}`
	require.NoError(t, writeBody(&out, []byte(body), true))
	assert.Equal(t, "{\n  \"zeta\": 1,\n  \"alpha\": 12345678901234567890,\n  \"html\": \"<b>&</b>\"\n}\n", out.String())

	out.Reset()
	require.NoError(t, writeBody(&out, []byte(body), false))
	assert.Equal(t, body+"\n", out.String())

	out.Reset()
	require.NoError(t, writeBody(&out, []byte("plain text"), true))
	assert.Equal(t, "plain text\n", out.String())
}
