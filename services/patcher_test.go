package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/utils"
)

const promConfig = `global:
  scrape_interval: 15s
  evaluation_interval: 30s
alerting:
  alertmanagers:
    - static_configs:
        - targets: ["localhost:9093"]
scrape_configs:
  - job_name: node
    honor_labels: true
    static_configs:
      - targets: ["localhost:9100"]
`

func newTestPatcher(t *testing.T, runner *fakeRunner, content string) *ConfigPatcher {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "prometheus.yml")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	cfg := &config.PrometheusConfig{
		ConfigPath:     path,
		JobName:        "dcgm-exporter",
		TargetHost:     "localhost",
		ScrapeInterval: "15s",
		ScrapeTimeout:  "10s",
		ReloadUnit:     "prometheus.service",
	}
	lock := utils.NewFileLock(filepath.Join(dir, "keeper.lock"))
	return NewConfigPatcher(cfg, runner, lock, 9400)
}

func TestApplyAddsScrapeJobOnce(t *testing.T) {
	runner := newFakeRunner()
	p := newTestPatcher(t, runner, promConfig)
	ctx := context.Background()

	mutated, err := p.Apply(ctx)
	require.NoError(t, err)
	assert.True(t, mutated)
	assert.Equal(t, 1, runner.countCalls("systemctl reload prometheus.service"))

	afterFirst, err := os.ReadFile(p.cfg.ConfigPath)
	require.NoError(t, err)

	// Second apply sees the job, leaves the document untouched and issues
	// no reload.
	mutated, err = p.Apply(ctx)
	require.NoError(t, err)
	assert.False(t, mutated)
	assert.Equal(t, 1, runner.countCalls("systemctl reload prometheus.service"))

	afterSecond, err := os.ReadFile(p.cfg.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, afterFirst, afterSecond)
}

func TestApplyPreservesForeignSettings(t *testing.T) {
	runner := newFakeRunner()
	p := newTestPatcher(t, runner, promConfig)

	_, err := p.Apply(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(p.cfg.ConfigPath)
	require.NoError(t, err)
	var doc ScrapeConfigDocument
	require.NoError(t, yaml.Unmarshal(data, &doc))

	assert.Equal(t, "15s", doc.Global["scrape_interval"])
	assert.Equal(t, "30s", doc.Global["evaluation_interval"])
	assert.Contains(t, doc.Rest, "alerting")

	require.Len(t, doc.ScrapeConfigs, 2)
	assert.Equal(t, "node", doc.ScrapeConfigs[0].JobName)
	assert.Equal(t, true, doc.ScrapeConfigs[0].Rest["honor_labels"])
	assert.Equal(t, "dcgm-exporter", doc.ScrapeConfigs[1].JobName)
	require.Len(t, doc.ScrapeConfigs[1].StaticConfigs, 1)
	assert.Equal(t, []string{"localhost:9400"}, doc.ScrapeConfigs[1].StaticConfigs[0].Targets)
}

func TestApplyCreatesMissingDocument(t *testing.T) {
	runner := newFakeRunner()
	p := newTestPatcher(t, runner, "")

	mutated, err := p.Apply(context.Background())
	require.NoError(t, err)
	assert.True(t, mutated)
	assert.True(t, p.HasJob())
}

func TestRemoveJobReversesApply(t *testing.T) {
	runner := newFakeRunner()
	p := newTestPatcher(t, runner, promConfig)
	ctx := context.Background()

	_, err := p.Apply(ctx)
	require.NoError(t, err)
	require.True(t, p.HasJob())

	mutated, err := p.RemoveJob(ctx)
	require.NoError(t, err)
	assert.True(t, mutated)
	assert.False(t, p.HasJob())

	// Already removed: no mutation, no reload.
	mutated, err = p.RemoveJob(ctx)
	require.NoError(t, err)
	assert.False(t, mutated)
	assert.Equal(t, 2, runner.countCalls("systemctl reload prometheus.service"))

	// The foreign job survives the removal.
	data, err := os.ReadFile(p.cfg.ConfigPath)
	require.NoError(t, err)
	var doc ScrapeConfigDocument
	require.NoError(t, yaml.Unmarshal(data, &doc))
	require.Len(t, doc.ScrapeConfigs, 1)
	assert.Equal(t, "node", doc.ScrapeConfigs[0].JobName)
}
