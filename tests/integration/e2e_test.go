//go:build integration
// +build integration

package integration

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

	"github.com/queueworks/taskgate/internal/infrastructure/config"
	"github.com/queueworks/taskgate/internal/infrastructure/server"
	"github.com/queueworks/taskgate/internal/result"
)

// TestEndToEndSubmitAndPoll drives the fully wired server: submit a payload,
// poll the result endpoint until the task completes, and check the metrics
// and health surfaces along the way.
func TestEndToEndSubmitAndPoll(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	cfg := config.Default()
	cfg.Downstream.FailRate = 0 // deterministic success
	cfg.RateLimit.Enabled = false

	srv, err := server.NewServer(cfg)
	require.NoError(t, err, "Failed to create server")
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	rresp, err := http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	rresp.Body.Close()
	require.Equal(t, http.StatusOK, rresp.StatusCode)

	// Submit
	resp, err := http.Post(ts.URL+"/process", "application/json",
		strings.NewReader(`{"payload":{"order":42}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	assert.Equal(t, "accepted", accepted.Status)
	require.True(t, strings.HasPrefix(accepted.ID, "task_"))

	// Poll until done
	var final result.Result
	require.Eventually(t, func() bool {
		r, err := http.Get(ts.URL + "/result/" + accepted.ID)
		if err != nil {
			return false
		}
		defer r.Body.Close()
		if r.StatusCode != http.StatusOK {
			return false
		}
		if err := json.NewDecoder(r.Body).Decode(&final); err != nil {
			return false
		}
		return final.Status == result.StatusDone
	}, 5*time.Second, 20*time.Millisecond, "task never completed")

	assert.GreaterOrEqual(t, final.Attempts, 1)
	assert.NotEmpty(t, final.Value)

	// Health reflects a drained queue
	hresp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer hresp.Body.Close()
	require.Equal(t, http.StatusOK, hresp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(hresp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])

	// Metrics endpoint exposes the job counters
	mresp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	require.Equal(t, http.StatusOK, mresp.StatusCode)

	buf := new(strings.Builder)
	_, err = io.Copy(buf, mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "jobs_received_total")
	assert.Contains(t, buf.String(), "jobs_processed_total")
}

// TestEndToEndUnknownResult checks the lookup boundary of the wired server.
func TestEndToEndUnknownResult(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	cfg := config.Default()
	cfg.RateLimit.Enabled = false

	srv, err := server.NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/result/task_does_not_exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
