package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")
}

func TestStatsUpdater_IncrDecr(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.Run()
	defer su.Stop()

	su.Incr(NumConnections)
	su.Incr(NumConnections)
	su.Decr(NumConnections)
	su.Incr("NotRegistered")

	assert.Eventually(t, func() bool {
		return su.Value(NumConnections) == 1
	}, time.Second, 10*time.Millisecond, "expected connection count to settle at 1")
	assert.Zero(t, su.Value("NotRegistered"), "expected unknown metrics to be ignored")
}

func TestStatsUpdater_Handler(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.Run()
	defer su.Stop()

	su.Incr(NumParties)
	require.Eventually(t, func() bool {
		return su.Value(NumParties) == 1
	}, time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body[NumParties], "expected party count in response")
	assert.Contains(t, body, "Uptime", "expected uptime in response")
}

func TestStatsUpdater_StopUnblocksSenders(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.updateChan = make(chan *metricsUpdateReq) // unbuffered and never drained
	su.Stop()

	done := make(chan struct{})
	go func() {
		su.Incr(NumParties)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("expected Incr to return after Stop")
	}
}
