package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(false)
	m.BlocksAcked.Inc()
	m.BlocksAcked.Inc()
	m.LiveItemsPublished.Add(5)
	m.LiveSubscribers.Set(3)
	require.EqualValues(t, 2, testutil.ToFloat64(m.BlocksAcked))
	require.EqualValues(t, 5, testutil.ToFloat64(m.LiveItemsPublished))
	require.EqualValues(t, 3, testutil.ToFloat64(m.LiveSubscribers))

	// independent registries
	other := New(false)
	require.EqualValues(t, 0, testutil.ToFloat64(other.BlocksAcked))
}

func TestMetrics_Handler(t *testing.T) {
	m := New(true)
	m.VerificationBlocksVerified.Inc()
	rec := httptest.NewRecorder()
	m.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "blocknode_verification_blocks_verified_total 1")
	require.Contains(t, string(body), "go_goroutines")
}
