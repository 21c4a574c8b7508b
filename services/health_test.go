package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/models"
)

const baselineOnlyExposition = `# HELP DCGM_FI_DEV_GPU_TEMP GPU temperature (in C).
# TYPE DCGM_FI_DEV_GPU_TEMP gauge
DCGM_FI_DEV_GPU_TEMP{gpu="0"} 62
# HELP DCGM_FI_DEV_SM_CLOCK SM clock frequency (in MHz).
# TYPE DCGM_FI_DEV_SM_CLOCK gauge
DCGM_FI_DEV_SM_CLOCK{gpu="0"} 1410
`

const fullExposition = baselineOnlyExposition + `# HELP DCGM_FI_PROF_SM_ACTIVE The ratio of cycles an SM has at least 1 warp assigned.
# TYPE DCGM_FI_PROF_SM_ACTIVE gauge
DCGM_FI_PROF_SM_ACTIVE{gpu="0"} 0.45
`

func healthTestConfig() *config.HealthConfig {
	return &config.HealthConfig{
		BaselinePrefixes: []string{"DCGM_FI_DEV_"},
		ExtendedPrefixes: []string{"DCGM_FI_PROF_"},
		PollAttempts:     3,
		PollIntervalSec:  0,
	}
}

func metricsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyAvailable(t *testing.T) {
	srv := metricsServer(t, fullExposition)
	v := NewHealthVerifierForEndpoint(healthTestConfig(), srv.URL)

	result, err := v.Verify(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.HealthAvailable, result.Classification)
	assert.Contains(t, result.ObservedFamilies, "DCGM_FI_DEV_GPU_TEMP")
	assert.Contains(t, result.ObservedFamilies, "DCGM_FI_PROF_SM_ACTIVE")
}

func TestVerifyPartiallyAvailable(t *testing.T) {
	srv := metricsServer(t, baselineOnlyExposition)
	v := NewHealthVerifierForEndpoint(healthTestConfig(), srv.URL)

	result, err := v.Verify(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.HealthPartiallyAvailable, result.Classification)
}

func TestVerifyUnavailableWithoutBaseline(t *testing.T) {
	// The endpoint answers but exposes only exporter-internal go metrics.
	srv := metricsServer(t, "# TYPE go_goroutines gauge\ngo_goroutines 12\n")
	v := NewHealthVerifierForEndpoint(healthTestConfig(), srv.URL)

	result, _ := v.Verify(context.Background())

	assert.Equal(t, models.HealthUnavailable, result.Classification)
}

func TestVerifyUnavailableEndpoint(t *testing.T) {
	srv := metricsServer(t, baselineOnlyExposition)
	url := srv.URL
	srv.Close()
	v := NewHealthVerifierForEndpoint(healthTestConfig(), url)

	result, err := v.Verify(context.Background())

	require.Error(t, err)
	assert.Equal(t, models.HealthUnavailable, result.Classification)
}

func TestVerifyRequiresEveryExtendedPrefix(t *testing.T) {
	// Profiling coverage is judged per configured prefix: one matched family
	// is not enough when a second prefix stays unmatched.
	srv := metricsServer(t, fullExposition)
	cfg := healthTestConfig()
	cfg.ExtendedPrefixes = []string{"DCGM_FI_PROF_SM_", "DCGM_FI_PROF_DRAM_"}
	v := NewHealthVerifierForEndpoint(cfg, srv.URL)

	result, err := v.Verify(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.HealthPartiallyAvailable, result.Classification)
}

func TestVerifyRequiresEveryBaselinePrefix(t *testing.T) {
	srv := metricsServer(t, baselineOnlyExposition)
	cfg := healthTestConfig()
	cfg.BaselinePrefixes = []string{"DCGM_FI_DEV_GPU_", "DCGM_FI_DEV_MEM_"}
	v := NewHealthVerifierForEndpoint(cfg, srv.URL)

	result, _ := v.Verify(context.Background())

	assert.Equal(t, models.HealthUnavailable, result.Classification)
}

func TestVerifyStopsPollingOnceBaselineObserved(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(baselineOnlyExposition))
	}))
	defer srv.Close()
	v := NewHealthVerifierForEndpoint(healthTestConfig(), srv.URL)

	_, err := v.Verify(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}
