package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsPollsAndBroadcasts(t *testing.T) {
	c := NewCollector(2 * time.Second)

	c.PollCompleted(OutcomeChanged, 10*time.Millisecond)
	c.PollCompleted(OutcomeChanged, 10*time.Millisecond)
	c.PollCompleted(OutcomeDecodeError, time.Millisecond)
	c.BroadcastSent(3, 1)
	c.SetSubscribers(2)
	c.NATSSetConnected(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Polls.WithLabelValues(OutcomeChanged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Polls.WithLabelValues(OutcomeDecodeError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.DeliveredMessages))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DroppedClients))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Subscribers))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.PollInterval))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(time.Second)
	c.SetTrackedVehicles(7)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "transitlive_tracked_vehicles 7")
}
