package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/models"
	"dcgm-keeper/internal/utils"
)

func newTestPipeline(t *testing.T, runner *fakeRunner, metricsURL string) *Pipeline {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		Install: config.InstallConfig{
			Mode:           "extract",
			Dir:            filepath.Join(dir, "bin"),
			Port:           9400,
			Version:        "3.3.5-3.4.1",
			Repository:     "https://github.com/NVIDIA/dcgm-exporter",
			Trunk:          "main",
			Image:          "nvcr.io/nvidia/k8s/dcgm-exporter",
			CountersFile:   filepath.Join(dir, "etc", "default-counters.csv"),
			DebugLevel:     "info",
			DriverCommand:  "nvidia-smi",
			CompanionUnit:  "nvidia-dcgm.service",
			EphemeralRtPkg: "docker.io",
		},
		Supervisor: config.SupervisorConfig{
			UnitName:        "dcgm-exporter.service",
			UnitDir:         dir,
			ServiceUser:     "root",
			RestartDelaySec: 10,
			PollAttempts:    3,
			PollIntervalSec: 0,
			JournalLines:    50,
		},
		Prometheus: config.PrometheusConfig{
			ConfigPath:     filepath.Join(dir, "prometheus.yml"),
			JobName:        "dcgm-exporter",
			TargetHost:     "localhost",
			ScrapeInterval: "15s",
			ScrapeTimeout:  "10s",
			ReloadUnit:     "prometheus.service",
		},
		Health: config.HealthConfig{
			BaselinePrefixes: []string{"DCGM_FI_DEV_"},
			ExtendedPrefixes: []string{"DCGM_FI_PROF_"},
			PollAttempts:     2,
			PollIntervalSec:  0,
		},
	}
	lock := utils.NewFileLock(filepath.Join(dir, "keeper.lock"))
	ledger := NewAcquisitionLedger(dir)
	return &Pipeline{
		cfg:        cfg,
		stateDir:   dir,
		probe:      NewDependencyProbe(&cfg.Install, runner),
		resolver:   NewVersionResolver(&cfg.Install, runner),
		acquirer:   NewArtifactAcquirer(&cfg.Install, runner, ledger, dir),
		supervisor: NewServiceSupervisor(&cfg.Supervisor, &cfg.Install, runner, lock),
		patcher:    NewConfigPatcher(&cfg.Prometheus, runner, lock, cfg.Install.Port),
		verifier:   NewHealthVerifierForEndpoint(&cfg.Health, metricsURL),
	}
}

func TestRunShortCircuitsOnFailedPrecondition(t *testing.T) {
	// nvidia-smi missing: the probe fails and nothing after it may run.
	runner := newFakeRunner()
	p := newTestPipeline(t, runner, "http://127.0.0.1:0/metrics")

	report := p.Run(context.Background())

	assert.False(t, report.Succeeded)
	require.Len(t, report.Stages, 1)
	fatal := report.FatalStage()
	require.NotNil(t, fatal)
	assert.Equal(t, "probe", fatal.Stage)
	assert.Equal(t, models.ConditionPreconditionFailed, fatal.Condition)
	assert.NotEmpty(t, fatal.Remedy)

	assert.Equal(t, 0, runner.countCalls("git"))
	assert.Equal(t, 0, runner.countCalls("docker"))
	assert.Equal(t, 0, runner.countCalls("systemctl restart"))
	assert.Equal(t, 0, runner.countCalls("systemctl reload"))
}

func TestRunFullPipeline(t *testing.T) {
	srv := metricsServer(t, fullExposition)
	runner := newFakeRunner()
	runner.paths["nvidia-smi"] = "/usr/bin/nvidia-smi"
	runner.paths["docker"] = "/usr/bin/docker"
	runner.onRun = dockerCpToFile
	runner.stub("systemctl is-active nvidia-dcgm.service", "active", nil)
	runner.stub("systemctl is-active dcgm-exporter.service", "active", nil)
	runner.stub("git ls-remote --tags --refs https://github.com/NVIDIA/dcgm-exporter",
		"abc\trefs/tags/3.3.5-3.4.0\ndef\trefs/tags/3.3.5-3.4.1\n", nil)

	p := newTestPipeline(t, runner, srv.URL)
	report := p.Run(context.Background())

	assert.True(t, report.Succeeded)
	require.Len(t, report.Stages, 6)
	assert.Nil(t, report.FatalStage())
	assert.Equal(t, models.FallbackExact, report.Resolved.Level)
	assert.Equal(t, "3.3.5-3.4.1", report.Resolved.Reference)
	require.NotNil(t, report.Health)
	assert.Equal(t, models.HealthAvailable, report.Health.Classification)

	assert.FileExists(t, filepath.Join(p.cfg.Install.Dir, "dcgm-exporter"))
	assert.True(t, p.patcher.HasJob())
}

func TestRunRecordsDegradedResolutionWithoutAborting(t *testing.T) {
	srv := metricsServer(t, baselineOnlyExposition)
	runner := newFakeRunner()
	runner.paths["nvidia-smi"] = "/usr/bin/nvidia-smi"
	runner.paths["docker"] = "/usr/bin/docker"
	runner.onRun = dockerCpToFile
	runner.stub("systemctl is-active nvidia-dcgm.service", "active", nil)
	runner.stub("systemctl is-active dcgm-exporter.service", "active", nil)
	runner.stub("git ls-remote --tags --refs https://github.com/NVIDIA/dcgm-exporter",
		"abc\trefs/tags/3.3.5-3.4.0\ndef\trefs/tags/3.3.5-3.4.1\n", nil)

	p := newTestPipeline(t, runner, srv.URL)
	p.cfg.Install.Version = "3.3.5-3.4.2"

	report := p.Run(context.Background())

	// Prefix fallback and missing profiling metrics both degrade the run
	// without failing it.
	assert.True(t, report.Succeeded)
	require.Len(t, report.Stages, 6)
	assert.Equal(t, models.ConditionResolutionDegraded, report.Stages[1].Condition)
	assert.Equal(t, "3.3.5-3.4.1", report.Resolved.Reference)
	assert.Equal(t, models.ConditionHealthDegraded, report.Stages[5].Condition)
	require.NotNil(t, report.Health)
	assert.Equal(t, models.HealthPartiallyAvailable, report.Health.Classification)
}

func TestLoadLastReportRoundTrip(t *testing.T) {
	runner := newFakeRunner()
	p := newTestPipeline(t, runner, "http://127.0.0.1:0/metrics")

	report := p.Run(context.Background())

	// The report lands under the pipeline's own state directory.
	assert.FileExists(t, reportPath(p.stateDir))

	loaded, err := LoadLastReport(p.stateDir)
	require.NoError(t, err)
	assert.Equal(t, report.Succeeded, loaded.Succeeded)
	assert.Len(t, loaded.Stages, len(report.Stages))
}

func TestRunTreatsUnavailableHealthAsAdvisory(t *testing.T) {
	// The exporter answers but exposes no GPU metric families at all. Every
	// mutating stage completed, so the run still succeeds and the verdict is
	// recorded for the operator.
	srv := metricsServer(t, "# TYPE go_goroutines gauge\ngo_goroutines 12\n")
	runner := newFakeRunner()
	runner.paths["nvidia-smi"] = "/usr/bin/nvidia-smi"
	runner.paths["docker"] = "/usr/bin/docker"
	runner.onRun = dockerCpToFile
	runner.stub("systemctl is-active nvidia-dcgm.service", "active", nil)
	runner.stub("systemctl is-active dcgm-exporter.service", "active", nil)

	p := newTestPipeline(t, runner, srv.URL)
	report := p.Run(context.Background())

	assert.True(t, report.Succeeded)
	assert.Nil(t, report.FatalStage())
	require.Len(t, report.Stages, 6)
	verify := report.Stages[5]
	assert.Equal(t, models.ConditionHealthUnavailable, verify.Condition)
	assert.False(t, verify.Fatal)
	require.NotNil(t, report.Health)
	assert.Equal(t, models.HealthUnavailable, report.Health.Classification)
}

func TestRunFailsWhenPrometheusPatchFails(t *testing.T) {
	srv := metricsServer(t, fullExposition)
	runner := newFakeRunner()
	runner.paths["nvidia-smi"] = "/usr/bin/nvidia-smi"
	runner.paths["docker"] = "/usr/bin/docker"
	runner.onRun = dockerCpToFile
	runner.stub("systemctl is-active nvidia-dcgm.service", "active", nil)
	runner.stub("systemctl is-active dcgm-exporter.service", "active", nil)
	runner.stub("systemctl reload prometheus.service", "", errors.New("exit status 1"))

	p := newTestPipeline(t, runner, srv.URL)
	report := p.Run(context.Background())

	assert.False(t, report.Succeeded)
	fatal := report.FatalStage()
	require.NotNil(t, fatal)
	assert.Equal(t, "patch", fatal.Stage)
	// A real patch failure is distinct from the informational
	// already-present outcome.
	assert.Equal(t, models.ConditionConfigPatchFailed, fatal.Condition)
	require.Len(t, report.Stages, 5)
}
