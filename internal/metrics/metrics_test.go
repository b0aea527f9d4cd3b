package metrics

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAcceptedReplacesPreviousRun(t *testing.T) {
	RecordAccepted(map[string]int{"Vless": 3, "Trojan": 1})
	assert.Equal(t, 3.0, testutil.ToFloat64(configsAccepted.WithLabelValues("Vless")))

	RecordAccepted(map[string]int{"Trojan": 2})
	assert.Equal(t, 1, testutil.CollectAndCount(configsAccepted))
	assert.Equal(t, 2.0, testutil.ToFloat64(configsAccepted.WithLabelValues("Trojan")))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(configsFilteredTotal.WithLabelValues("phrase"))
	IncFiltered("phrase")
	IncFiltered("phrase")
	assert.Equal(t, before+2, testutil.ToFloat64(configsFilteredTotal.WithLabelValues("phrase")))

	before = testutil.ToFloat64(pagesFetchedTotal.WithLabelValues(OutcomeFailure))
	IncPageFetched(OutcomeFailure)
	assert.Equal(t, before+1, testutil.ToFloat64(pagesFetchedTotal.WithLabelValues(OutcomeFailure)))
}

func TestWriteTextfile(t *testing.T) {
	RecordRun(2*time.Second, time.Unix(1700000000, 0))
	path := filepath.Join(t.TempDir(), "textfile", "v2scrape.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "v2scrape_last_success_timestamp_seconds 1.7e+09")

	assert.NoError(t, WriteTextfile(""))
}

func TestPromhttpExposure(t *testing.T) {
	RecordReachable(5)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "v2scrape_configs_reachable 5"))
}
