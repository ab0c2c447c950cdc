package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, c *Checker, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	c.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestChecker_Health(t *testing.T) {
	t.Run("all probes pass", func(t *testing.T) {
		c := NewChecker("1.2.3")
		c.AddProbe("database", func(context.Context) error { return nil })

		rec := serve(t, c, "/health")
		assert.Equal(t, http.StatusOK, rec.Code)

		var status HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "healthy", status.Status)
		assert.Equal(t, "1.2.3", status.Version)
		assert.Equal(t, "healthy", status.Checks["database"].Status)
	})

	t.Run("one failing probe", func(t *testing.T) {
		c := NewChecker("dev")
		c.AddProbe("database", func(context.Context) error { return nil })
		c.AddProbe("redis", func(context.Context) error { return errors.New("connection refused") })

		rec := serve(t, c, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var status HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "unhealthy", status.Status)
		assert.Equal(t, "connection refused", status.Checks["redis"].Message)
	})
}

func TestChecker_Ready(t *testing.T) {
	c := NewChecker("dev")
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, c, "/health/ready").Code)

	c.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(t, c, "/health/ready").Code)
	assert.Equal(t, http.StatusOK, serve(t, c, "/health/live").Code)
}
