package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/janken/internal/pkg/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewEchoLogsRequests(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)

	e := common.NewEcho(zap.New(core))
	e.GET("/ok", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/boom", func(echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream down")
	})

	for _, path := range []string{"/ok", "/boom", "/missing"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)

	ok := entries[0].ContextMap()
	assert.Equal(t, "request", entries[0].Message)
	assert.Equal(t, "/ok", ok["uri"])
	assert.EqualValues(t, http.StatusNoContent, ok["status"])
	assert.NotEmpty(t, ok["request_id"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.EqualValues(t, http.StatusBadGateway, entries[1].ContextMap()["status"])

	assert.Equal(t, "request rejected", entries[2].Message)
	assert.EqualValues(t, http.StatusNotFound, entries[2].ContextMap()["status"])
}

func TestNewEchoRecoversPanics(t *testing.T) {
	t.Parallel()

	e := common.NewEcho(zap.NewNop())
	e.GET("/panic", func(echo.Context) error {
		panic("handler bug")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
