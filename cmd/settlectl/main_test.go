package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method  string
	path    string
	query   string
	headers http.Header
	body    map[string]string
}

func newAPI(t *testing.T, status int, response string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.headers = r.Header.Clone()
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &got.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReconRun_SendsHeadersAndBody(t *testing.T) {
	srv, got := newAPI(t, http.StatusOK, `{"runId":"recon_1","issueCount":2,"csv":"x"}`)

	out, err := execute(t, "--base-url", srv.URL, "--token", "tok", "--actor", "alice",
		"recon", "run", "--reason", "month end", "--output-path", "report.csv")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/internal/v1/ops/reconciliation/run", got.path)
	assert.Equal(t, "Bearer tok", got.headers.Get("Authorization"))
	assert.Equal(t, "alice", got.headers.Get("x-ops-actor"))
	assert.Equal(t, "settlectl recon run", got.headers.Get("x-ops-command"))
	assert.True(t, strings.HasPrefix(got.headers.Get("Idempotency-Key"), "settlectl:"))
	assert.Equal(t, map[string]string{"reason": "month end", "outputPath": "report.csv"}, got.body)
	assert.Contains(t, out, `"runId": "recon_1"`)
}

func TestReconRun_ExplicitKey(t *testing.T) {
	srv, got := newAPI(t, http.StatusOK, `{}`)

	_, err := execute(t, "--base-url", srv.URL, "--token", "tok",
		"recon", "run", "--reason", "retry", "--idempotency-key", "fixed-key-1")
	require.NoError(t, err)
	assert.Equal(t, "fixed-key-1", got.headers.Get("Idempotency-Key"))
}

func TestReconIssues_QueryAndYAML(t *testing.T) {
	srv, got := newAPI(t, http.StatusOK, `{"issues":[{"issueCode":"LEDGER_IMBALANCE"}]}`)

	out, err := execute(t, "--base-url", srv.URL, "--token", "tok", "-o", "yaml",
		"recon", "issues", "--since", "2026-01-01T00:00:00Z", "--limit", "5")
	require.NoError(t, err)

	assert.Equal(t, "/internal/v1/ops/reconciliation/issues", got.path)
	assert.Equal(t, "limit=5&since=2026-01-01T00%3A00%3A00Z", got.query)
	assert.Contains(t, out, "issueCode: LEDGER_IMBALANCE")
}

func TestReconIssues_RejectsBadSince(t *testing.T) {
	srv, _ := newAPI(t, http.StatusOK, `{}`)

	_, err := execute(t, "--base-url", srv.URL, "--token", "tok", "recon", "issues", "--since", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RFC3339")
}

func TestSLABreaches_Limit(t *testing.T) {
	srv, got := newAPI(t, http.StatusOK, `{"thresholdMinutes":10,"breaches":[]}`)

	out, err := execute(t, "--base-url", srv.URL, "--token", "tok", "sla", "breaches", "--limit", "20")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/internal/v1/ops/sla/breaches", got.path)
	assert.Equal(t, "limit=20", got.query)
	assert.Contains(t, out, `"thresholdMinutes": 10`)
}

func TestRetentionRun_RequiresReason(t *testing.T) {
	srv, got := newAPI(t, http.StatusOK, `{"status":"completed"}`)

	_, err := execute(t, "--base-url", srv.URL, "--token", "tok", "retention", "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reason")

	_, err = execute(t, "--base-url", srv.URL, "--token", "tok", "--actor", "bob",
		"retention", "run", "--reason", "quarterly purge")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/internal/v1/ops/jobs/retention/run", got.path)
	assert.Equal(t, map[string]string{"reason": "quarterly purge"}, got.body)
	assert.Equal(t, "bob", got.headers.Get("x-ops-actor"))
	assert.Empty(t, got.headers.Get("Idempotency-Key"))
}

func TestShowCommands(t *testing.T) {
	tests := []struct {
		args []string
		path string
	}{
		{args: []string{"recon", "show", "recon_9"}, path: "/internal/v1/ops/reconciliation/runs/recon_9"},
		{args: []string{"payout", "show", "pay_1"}, path: "/internal/v1/payouts/pay_1"},
		{args: []string{"transfer", "show", "tr_1"}, path: "/v1/transfers/tr_1"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			srv, got := newAPI(t, http.StatusOK, `{"ok":true}`)
			_, err := execute(t, append([]string{"--base-url", srv.URL, "--token", "tok"}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, http.MethodGet, got.method)
			assert.Equal(t, tt.path, got.path)
			assert.Empty(t, got.headers.Get("Idempotency-Key"))
		})
	}
}

func TestErrorsAndFlags(t *testing.T) {
	srv, _ := newAPI(t, http.StatusNotFound, `{"error":{"code":"PAYOUT_NOT_FOUND"}}`)

	_, err := execute(t, "--base-url", srv.URL, "--token", "tok", "payout", "show", "pay_x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Contains(t, err.Error(), "PAYOUT_NOT_FOUND")

	t.Setenv("SETTLECTL_TOKEN", "")
	_, err = execute(t, "--base-url", srv.URL, "payout", "show", "pay_x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bearer token")

	_, err = execute(t, "--base-url", srv.URL, "--token", "tok", "-o", "xml", "payout", "show", "pay_x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output")
}
