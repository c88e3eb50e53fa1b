package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersByResult(t *testing.T) {
	before := testutil.ToFloat64(botStarts.WithLabelValues("error"))
	ObserveBotStart(errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(botStarts.WithLabelValues("error")))

	running := testutil.ToFloat64(botsRunning)
	BotRunning(1)
	BotRunning(1)
	BotRunning(-1)
	assert.Equal(t, running+1, testutil.ToFloat64(botsRunning))
}

func TestHandlerExposesCollectors(t *testing.T) {
	UpdateReceived("message")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "botfleet_updates_total"))
}
