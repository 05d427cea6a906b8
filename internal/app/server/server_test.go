package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoprofile/internal/applier"
	"autoprofile/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	var cfg config.Config
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Store.Driver = "file"
	cfg.Store.Path = filepath.Join(dir, "profiles.yaml")
	cfg.Store.StatePath = filepath.Join(dir, "state.yaml")
	cfg.Listener.DebounceMs = 20
	cfg.Manager.Enabled = true
	cfg.Manager.DebounceMs = 10
	cfg.Manager.BoundaryCapSeconds = 3600
	cfg.Applier.Kind = "memory"
	return cfg
}

func startServer(t *testing.T, cfg config.Config) (*Server, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv, err := New(ctx, cfg)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, ts
}

func send(t *testing.T, method, url string, body any) int {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(method, url, bytes.NewReader(raw))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func current(srv *Server) func() string {
	return func() string { return srv.applier.(*applier.Memory).CurrentProfileID() }
}

func TestServer_SwitchesOnParameterChange(t *testing.T) {
	srv, ts := startServer(t, testConfig(t))
	active := current(srv)

	require.Equal(t, http.StatusCreated, send(t, http.MethodPost, ts.URL+"/v1/profiles", map[string]any{
		"id": "saver", "name": "Saver",
		"rules": []map[string]string{{"parameter": "power_source", "operator": "is", "value": "battery"}},
	}))
	require.Equal(t, http.StatusCreated, send(t, http.MethodPost, ts.URL+"/v1/profiles", map[string]any{
		"id": "plugged", "name": "Plugged",
		"rules": []map[string]string{{"parameter": "power_source", "operator": "is", "value": "ac"}},
	}))

	require.Equal(t, http.StatusNoContent, send(t, http.MethodPut, ts.URL+"/v1/parameters/power_source", map[string]any{"value": "battery"}))
	assert.Eventually(t, func() bool { return active() == "saver" }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusNoContent, send(t, http.MethodPut, ts.URL+"/v1/parameters/power_source", map[string]any{"value": "ac"}))
	assert.Eventually(t, func() bool { return active() == "plugged" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "plugged", srv.mgr.Status().ActiveProfile)
}

func TestServer_PicksUpExternalFileEdits(t *testing.T) {
	cfg := testConfig(t)
	srv, ts := startServer(t, cfg)
	active := current(srv)

	require.Equal(t, http.StatusNoContent, send(t, http.MethodPut, ts.URL+"/v1/parameters/lid_state", map[string]any{"value": "closed"}))

	doc := `version: 2
profiles:
  - id: docked
    name: Docked
    rules:
      - {parameter: lid_state, operator: is, value: closed}
`
	require.NoError(t, os.WriteFile(cfg.Store.Path, []byte(doc), 0o600))
	assert.Eventually(t, func() bool { return active() == "docked" }, 3*time.Second, 10*time.Millisecond)
}

func TestNew_RejectsBadApplier(t *testing.T) {
	cfg := testConfig(t)
	cfg.Applier.Kind = "command"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
