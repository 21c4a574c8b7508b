package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/env"
	"dcgm-keeper/internal/logger"
	"dcgm-keeper/internal/models"
	"dcgm-keeper/internal/utils"
)

const lastRunFile = "last-run.json"

/**
 * Provisioning pipeline: probe, resolve, acquire, supervise, patch, verify
 * @description
 * The orchestrator runs the stages strictly in order and short-circuits on
 * the first fatal condition: no later stage runs after a fatal one, so a
 * failed precondition never mutates the host and a failed build never
 * touches systemd or Prometheus. Non-fatal conditions (degraded resolution,
 * skipped config mutation, any health classification) are recorded in the
 * run report and the run still counts as succeeded: by the time health is
 * verified every mutating stage has already completed, so the verdict is
 * advisory. Every run report is persisted so status and the management API
 * can show the last outcome.
 */
type Pipeline struct {
	cfg        *config.AppConfig
	probe      *DependencyProbe
	resolver   *VersionResolver
	acquirer   *ArtifactAcquirer
	supervisor *ServiceSupervisor
	patcher    *ConfigPatcher
	verifier   *HealthVerifier
	stateDir   string

	target *models.InstallationTarget
}

func NewPipeline(cfg *config.AppConfig, runner utils.Runner) *Pipeline {
	lock := utils.NewFileLock(config.LockPath())
	ledger := NewAcquisitionLedger(env.KeeperDir)
	return &Pipeline{
		cfg:        cfg,
		stateDir:   env.KeeperDir,
		probe:      NewDependencyProbe(&cfg.Install, runner),
		resolver:   NewVersionResolver(&cfg.Install, runner),
		acquirer:   NewArtifactAcquirer(&cfg.Install, runner, ledger, env.KeeperDir),
		supervisor: NewServiceSupervisor(&cfg.Supervisor, &cfg.Install, runner, lock),
		patcher:    NewConfigPatcher(&cfg.Prometheus, runner, lock, cfg.Install.Port),
		verifier:   NewHealthVerifier(&cfg.Health, cfg.Install.Port),
	}
}

func (p *Pipeline) Supervisor() *ServiceSupervisor { return p.supervisor }
func (p *Pipeline) Patcher() *ConfigPatcher        { return p.patcher }
func (p *Pipeline) Acquirer() *ArtifactAcquirer    { return p.acquirer }
func (p *Pipeline) Verifier() *HealthVerifier      { return p.verifier }

type stageFunc func(ctx context.Context, report *models.RunReport) models.StageResult

/**
 * Run the full provisioning pipeline
 * @param {context.Context} ctx - Context for cancellation
 * @returns {*models.RunReport} Per-stage outcomes; never nil
 * @description The report is persisted to the keeper state directory and the
 *              run counters/durations are published before returning
 */
func (p *Pipeline) Run(ctx context.Context) *models.RunReport {
	report := &models.RunReport{StartTime: time.Now(), Succeeded: true}

	// Opportunistic: remove ephemeral dependencies a crashed run left behind
	// before this run records its own.
	p.acquirer.ReplayCleanup(ctx)

	stages := []struct {
		name string
		fn   stageFunc
	}{
		{"probe", p.runProbe},
		{"resolve", p.runResolve},
		{"acquire", p.runAcquire},
		{"supervise", p.runSupervise},
		{"patch", p.runPatch},
		{"verify", p.runVerify},
	}
	for _, stage := range stages {
		start := time.Now()
		result := stage.fn(ctx, report)
		result.Stage = stage.name
		result.Duration = time.Since(start)
		report.Stages = append(report.Stages, result)
		ObserveStage(stage.name, result.Duration, result.Fatal)
		if result.Fatal {
			report.Succeeded = false
			logger.Errorf("Stage %s failed (%s): %s", stage.name, result.Condition, result.Detail)
			break
		}
		logger.Infof("Stage %s finished (%s) in %s", stage.name, result.Condition, result.Duration)
	}

	report.FinishTime = time.Now()
	if report.Succeeded {
		CountRun("success")
	} else {
		CountRun("failure")
	}
	if err := p.saveReport(report); err != nil {
		logger.Warnf("Failed to persist run report: %v", err)
	}
	return report
}

func (p *Pipeline) runProbe(ctx context.Context, _ *models.RunReport) models.StageResult {
	if err := p.probe.Check(ctx); err != nil {
		result := models.StageResult{
			Condition: models.ConditionPreconditionFailed,
			Fatal:     true,
			Detail:    err.Error(),
		}
		var pre *models.PreconditionError
		if errors.As(err, &pre) {
			result.Remedy = pre.Remedy
		}
		return result
	}
	return models.StageResult{Condition: models.ConditionOK}
}

func (p *Pipeline) runResolve(ctx context.Context, report *models.RunReport) models.StageResult {
	available, err := p.resolver.ListAvailableRefs(ctx)
	if err != nil {
		// Listing failure is survivable: resolution degrades to trunk.
		logger.Warnf("Failed to list repository tags: %v", err)
	}
	resolved := p.resolver.Resolve(p.cfg.Install.Version, available)
	report.Resolved = resolved
	if resolved.Degraded() {
		return models.StageResult{
			Condition: models.ConditionResolutionDegraded,
			Detail:    resolved.Requested + " resolved to " + resolved.Reference + " (" + string(resolved.Level) + ")",
		}
	}
	return models.StageResult{Condition: models.ConditionOK, Detail: resolved.Reference}
}

func (p *Pipeline) runAcquire(ctx context.Context, report *models.RunReport) models.StageResult {
	target, err := p.acquirer.Acquire(ctx, report.Resolved)
	if err != nil {
		condition := models.ConditionBuildFailed
		var extractErr *models.ExtractionError
		if errors.As(err, &extractErr) {
			condition = models.ConditionExtractionFailed
		}
		result := models.StageResult{Condition: condition, Fatal: true, Detail: err.Error()}
		var buildErr *models.BuildError
		if errors.As(err, &buildErr) && buildErr.Output != "" {
			result.Diagnostic = []string{buildErr.Output}
		}
		return result
	}
	p.target = target
	return models.StageResult{Condition: models.ConditionOK, Detail: target.BinaryPath}
}

func (p *Pipeline) runSupervise(ctx context.Context, _ *models.RunReport) models.StageResult {
	unit, err := p.supervisor.Install(ctx, p.target)
	if err != nil {
		result := models.StageResult{
			Condition: models.ConditionServiceStartFailed,
			Fatal:     true,
			Detail:    err.Error(),
			Remedy:    "inspect the journal tail and the exporter flags in the unit file",
		}
		var startErr *models.ServiceStartError
		if errors.As(err, &startErr) {
			result.Diagnostic = startErr.JournalTail
		}
		return result
	}
	logger.Infof("Unit %s state: %s", unit.Name, unit.State)
	return models.StageResult{Condition: models.ConditionOK, Detail: string(unit.State)}
}

func (p *Pipeline) runPatch(ctx context.Context, _ *models.RunReport) models.StageResult {
	mutated, err := p.patcher.Apply(ctx)
	if err != nil {
		return models.StageResult{
			Condition: models.ConditionConfigPatchFailed,
			Fatal:     true,
			Detail:    err.Error(),
			Remedy:    "verify the Prometheus configuration path and reload unit",
		}
	}
	if !mutated {
		return models.StageResult{
			Condition: models.ConditionConfigSkipped,
			Detail:    "scrape job already present, no reload issued",
		}
	}
	return models.StageResult{Condition: models.ConditionOK, Detail: "scrape job added"}
}

func (p *Pipeline) runVerify(ctx context.Context, report *models.RunReport) models.StageResult {
	health, err := p.verifier.Verify(ctx)
	report.Health = health
	switch health.Classification {
	case models.HealthAvailable:
		SetExporterHealth(1)
		return models.StageResult{Condition: models.ConditionOK, Detail: string(health.Classification)}
	case models.HealthPartiallyAvailable:
		SetExporterHealth(0.5)
		return models.StageResult{
			Condition: models.ConditionHealthDegraded,
			Detail:    "baseline metrics present, profiling metrics absent",
		}
	default:
		// Every mutating stage already ran; the classification is advisory
		// and must not fail the run.
		SetExporterHealth(0)
		result := models.StageResult{
			Condition: models.ConditionHealthUnavailable,
			Detail:    "baseline metric families not observed",
			Remedy:    "check the exporter journal and GPU visibility",
		}
		if err != nil {
			result.Detail = err.Error()
		}
		return result
	}
}

func reportPath(stateDir string) string {
	return filepath.Join(stateDir, "cache", lastRunFile)
}

func (p *Pipeline) saveReport(report *models.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(reportPath(p.stateDir), data, 0644)
}

// LoadLastReport reads the report the most recent run persisted under the
// given state directory.
func LoadLastReport(stateDir string) (*models.RunReport, error) {
	data, err := os.ReadFile(reportPath(stateDir))
	if err != nil {
		return nil, err
	}
	var report models.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
