package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/bank-scrapers/internal/jobs"
)

type stubPasses struct {
	last jobs.PassStatus
	ok   bool
}

func (s stubPasses) LastPass() (jobs.PassStatus, bool) { return s.last, s.ok }

func newTestApp(checks map[string]HealthCheck, passes PassReporter) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, checks, passes)
	return app
}

func getJSON(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return resp.StatusCode, out
}

func TestHealth_AllOK(t *testing.T) {
	app := newTestApp(map[string]HealthCheck{
		"store": func(context.Context) error { return nil },
		"nats":  func(context.Context) error { return nil },
	}, stubPasses{})

	code, body := getJSON(t, app, "/health")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"store": "ok", "nats": "ok"}, body["checks"])
}

func TestHealth_Degraded(t *testing.T) {
	app := newTestApp(map[string]HealthCheck{
		"store": func(context.Context) error { return errors.New("redis: connection refused") },
		"nats":  func(context.Context) error { return nil },
	}, stubPasses{})

	code, body := getJSON(t, app, "/health")
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "redis: connection refused", checks["store"])
	assert.Equal(t, "ok", checks["nats"])
}

func TestHealth_NoChecks(t *testing.T) {
	code, body := getJSON(t, newTestApp(nil, stubPasses{}), "/health")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestSyncStatus_Pending(t *testing.T) {
	code, body := getJSON(t, newTestApp(nil, stubPasses{}), "/sync/status")
	assert.Equal(t, fiber.StatusAccepted, code)
	assert.Equal(t, "pending", body["status"])
}

func TestSyncStatus_Partial(t *testing.T) {
	finished := time.Date(2024, 6, 15, 10, 31, 0, 0, time.UTC)
	app := newTestApp(nil, stubPasses{ok: true, last: jobs.PassStatus{
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		Synced:     3,
		Failed:     1,
		Error:      "max/alpha: bad creds",
	}})

	code, body := getJSON(t, app, "/sync/status")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "partial", body["status"])
	last := body["last"].(map[string]any)
	assert.EqualValues(t, 3, last["synced"])
	assert.EqualValues(t, 1, last["failed"])
	assert.Equal(t, "2024-06-15T10:31:00Z", last["finishedAt"])
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(nil, stubPasses{})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}
