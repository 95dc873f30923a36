package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/queueworks/taskgate/internal/downstream"
	"github.com/queueworks/taskgate/internal/infrastructure/logging"
	"github.com/queueworks/taskgate/internal/pool"
	"github.com/queueworks/taskgate/internal/result"
	"github.com/queueworks/taskgate/tests/helpers/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type echoClient struct{}

func (echoClient) Call(_ context.Context, payload []byte) ([]byte, error) {
	return payload, nil
}

type failingClient struct{}

func (failingClient) Call(context.Context, []byte) ([]byte, error) {
	return nil, errors.New("downstream down")
}

// blockingClient parks calls until released so tests can fill the queue
type blockingClient struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingClient() *blockingClient {
	return &blockingClient{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (b *blockingClient) Call(ctx context.Context, payload []byte) ([]byte, error) {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type routerOpts struct {
	workers    int
	capacity   int
	maxRetries int
	threshold  uint32
}

func defaultRouterOpts() routerOpts {
	return routerOpts{workers: 2, capacity: 4, maxRetries: 1, threshold: 3}
}

func newTestRouter(t *testing.T, client downstream.Client, opts routerOpts) (*gin.Engine, *pool.Pool, result.Store) {
	t.Helper()

	p, store := testutil.NewTestPool(t, client, testutil.PoolOptions{
		Workers:          opts.workers,
		QueueCapacity:    opts.capacity,
		MaxRetries:       opts.maxRetries,
		BackoffBase:      time.Millisecond,
		FailureThreshold: opts.threshold,
		Cooldown:         time.Minute,
		CallTimeout:      time.Second,
	})

	h := NewHandlers(p, store, logging.NewNop(), pool.AdmitNonBlocking, time.Second)

	router := gin.New()
	router.POST("/process", h.SubmitTask)
	router.GET("/result/:id", h.GetResult)
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/cache", h.Cached)

	return router, p, store
}

func submit(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSubmitTaskAccepted(t *testing.T) {
	router, _, store := newTestRouter(t, echoClient{}, defaultRouterOpts())

	w := submit(t, router, `{"payload":{"n":1}}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, "accepted", body["status"])

	id, ok := body["id"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(id, "task_"))

	waitForStatus(t, store, id, result.StatusDone)
}

func TestSubmitTaskBadRequest(t *testing.T) {
	router, _, _ := newTestRouter(t, echoClient{}, defaultRouterOpts())

	for _, body := range []string{``, `not json`, `{}`} {
		w := submit(t, router, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestSubmitTaskQueueFull(t *testing.T) {
	client := newBlockingClient()
	router, _, _ := newTestRouter(t, client, routerOpts{workers: 1, capacity: 1, maxRetries: 0, threshold: 100})
	defer close(client.release)

	// First task occupies the single worker
	w := submit(t, router, `{"payload":1}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	select {
	case <-client.started:
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the first task")
	}

	// Second task fills the queue
	w = submit(t, router, `{"payload":2}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	// Third is rejected with backpressure
	w = submit(t, router, `{"payload":3}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	body := decode(t, w)
	assert.Equal(t, "queue_full", body["reason"])
}

func TestSubmitTaskCircuitOpen(t *testing.T) {
	router, _, store := newTestRouter(t, failingClient{}, routerOpts{workers: 1, capacity: 4, maxRetries: 0, threshold: 1})

	w := submit(t, router, `{"payload":1}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decode(t, w)["id"].(string)
	waitForStatus(t, store, id, result.StatusFailed)

	w = submit(t, router, `{"payload":2}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	body := decode(t, w)
	assert.Equal(t, "circuit_open", body["reason"])
}

func TestSubmitTaskForwardsPayload(t *testing.T) {
	client := new(testutil.MockDownstream)
	payload := testutil.Payload(t, map[string]int{"n": 7})
	client.On("Call", mock.Anything, payload).
		Return([]byte(`{"ok":true}`), nil).
		Once()

	router, _, store := newTestRouter(t, client, defaultRouterOpts())

	w := submit(t, router, `{"payload":{"n":7}}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decode(t, w)["id"].(string)

	final := waitForStatus(t, store, id, result.StatusDone)
	assert.JSONEq(t, `{"ok":true}`, string(final.Value))
	client.AssertExpectations(t)
}

func TestGetResultNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t, echoClient{}, defaultRouterOpts())

	w := get(t, router, "/result/task_unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetResultLifecycle(t *testing.T) {
	router, _, store := newTestRouter(t, echoClient{}, defaultRouterOpts())

	w := submit(t, router, `{"payload":{"echo":"me"}}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decode(t, w)["id"].(string)

	waitForStatus(t, store, id, result.StatusDone)

	w = get(t, router, "/result/"+id)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, string(result.StatusDone), body["status"])
	assert.Equal(t, float64(1), body["attempts"])
	assert.Contains(t, w.Body.String(), `"echo":"me"`)
}

func TestHealth(t *testing.T) {
	router, _, _ := newTestRouter(t, echoClient{}, defaultRouterOpts())

	w := get(t, router, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(4), body["queue_capacity"])
	assert.Equal(t, "closed", body["circuit_state"])
	assert.Contains(t, body, "uptime_seconds")
	assert.Contains(t, body, "active_workers")
}

func TestReady(t *testing.T) {
	router, p, _ := newTestRouter(t, echoClient{}, defaultRouterOpts())

	w := get(t, router, "/ready")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ready"])

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))

	w = get(t, router, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCached(t *testing.T) {
	router, _, _ := newTestRouter(t, echoClient{}, defaultRouterOpts())

	w := get(t, router, "/cache?key=k")
	require.Equal(t, http.StatusOK, w.Code)
	first := decode(t, w)
	assert.Equal(t, false, first["cached"])

	w = get(t, router, "/cache?key=k")
	require.Equal(t, http.StatusOK, w.Code)
	second := decode(t, w)
	assert.Equal(t, true, second["cached"])
	assert.Equal(t, first["value"], second["value"])
}

func TestCachedConcurrentMissLoadsOnce(t *testing.T) {
	router, _, _ := newTestRouter(t, echoClient{}, defaultRouterOpts())

	const clients = 8
	results := make(chan map[string]interface{}, clients)

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := get(t, router, "/cache?key=shared")
			var body map[string]interface{}
			if json.Unmarshal(w.Body.Bytes(), &body) == nil {
				results <- body
			}
		}()
	}
	wg.Wait()
	close(results)

	misses := 0
	var values []interface{}
	for body := range results {
		if body["cached"] == false {
			misses++
		}
		values = append(values, body["value"])
	}

	require.Len(t, values, clients)
	assert.Equal(t, 1, misses, "exactly one request should run the loader")
	for _, v := range values[1:] {
		assert.Equal(t, values[0], v, "all requests should observe the same value")
	}
}

func waitForStatus(t *testing.T, store result.Store, id string, want result.Status) result.Result {
	t.Helper()
	return testutil.WaitForStatus(t, store, id, want, 2*time.Second)
}
