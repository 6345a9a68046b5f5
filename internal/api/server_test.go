package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ibeckermayer/rina/internal/app"
	"github.com/ibeckermayer/rina/internal/chat"
)

type staticStatus struct {
	st app.Status
}

func (s staticStatus) Status() app.Status { return s.st }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := NewServer("127.0.0.1:0", staticStatus{app.Status{
		Agents:     []string{"rina"},
		MemorySize: 3,
		Processed:  2,
		Publish:    app.CycleStatus{Runs: 4, Failures: 1, LastError: "failed to upload image: 413"},
		Relay:      &chat.RelayStatus{State: chat.StateRunning, Restarts: 1},
	}}, zap.NewNop())

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthzEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st app.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, []string{"rina"}, st.Agents)
	assert.Equal(t, 3, st.MemorySize)
	assert.Equal(t, 4, st.Publish.Runs)
	require.NotNil(t, st.Relay)
	assert.Equal(t, chat.StateRunning, st.Relay.State)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// Importing app registers the bot's collectors.
	assert.True(t, strings.Contains(string(body), "rina_relay_restarts_total"))
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", staticStatus{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}
