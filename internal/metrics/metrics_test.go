package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveInvocation("insights_erc20", "get_erc20_token_info", "ok")
	m.ObserveInvocation("insights_erc20", "get_erc20_token_info", "ok")
	m.ObserveInvocation("insights_erc20", "get_erc20_token_info", "validation_error")
	m.ObserveTokenRequest("partnerOAuth", "acquired")
	m.ObserveUnauthenticated("network_info", "get_partner_status")
	m.ObserveExecutor("api", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.invocations.WithLabelValues("insights_erc20", "get_erc20_token_info", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tokenRequests.WithLabelValues("partnerOAuth", "acquired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unauthenticated.WithLabelValues("network_info", "get_partner_status")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.executorLatency))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveInvocation("smart_contract", "download_abi", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `insights_mcp_invocations_total{action="download_abi",outcome="ok",resource="smart_contract"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveInvocation("a", "b", "ok")
	m.ObserveTokenRequest("s", "failed")
}
