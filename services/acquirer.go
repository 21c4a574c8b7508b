package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/logger"
	"dcgm-keeper/internal/models"
	"dcgm-keeper/internal/utils"
)

const exporterBinary = "dcgm-exporter"

/**
 * Artifact acquirer producing an installed exporter binary
 * @description
 * Two interchangeable strategies selected by install.mode:
 * - build: shallow clone at the resolved reference, make, verify, install
 * - extract: copy the binary out of an ephemeral container created from the
 *   packaged image; a runtime installed solely for extraction is removed
 *   again afterwards, tracked through the acquisition ledger so the host
 *   returns to its prior state even across crashes
 * Both strategies install the binary with execute permission and place the
 * default counters configuration next to the target path from the config.
 */
type ArtifactAcquirer struct {
	cfg      *config.InstallConfig
	runner   utils.Runner
	ledger   *AcquisitionLedger
	stateDir string
}

func NewArtifactAcquirer(cfg *config.InstallConfig, runner utils.Runner, ledger *AcquisitionLedger, stateDir string) *ArtifactAcquirer {
	return &ArtifactAcquirer{
		cfg:      cfg,
		runner:   runner,
		ledger:   ledger,
		stateDir: stateDir,
	}
}

/**
 * Acquire the exporter artifact for a resolved reference
 * @param {context.Context} ctx - Context for cancellation
 * @param {models.ResolvedRef} ref - Reference selected by the resolver
 * @returns {*models.InstallationTarget} Installed binary and counters paths
 * @returns {error} *models.BuildError or *models.ExtractionError on failure
 */
func (a *ArtifactAcquirer) Acquire(ctx context.Context, ref models.ResolvedRef) (*models.InstallationTarget, error) {
	switch a.cfg.Mode {
	case "build":
		return a.acquireByBuild(ctx, ref)
	case "extract":
		return a.acquireByExtract(ctx, ref)
	default:
		return nil, fmt.Errorf("unknown acquisition mode %q", a.cfg.Mode)
	}
}

func (a *ArtifactAcquirer) target(ref models.ResolvedRef) *models.InstallationTarget {
	return &models.InstallationTarget{
		Component:    exporterBinary,
		Version:      ref,
		BinaryPath:   filepath.Join(a.cfg.Dir, exporterBinary),
		ListenPort:   a.cfg.Port,
		CountersPath: a.cfg.CountersFile,
	}
}

func (a *ArtifactAcquirer) acquireByBuild(ctx context.Context, ref models.ResolvedRef) (*models.InstallationTarget, error) {
	workDir := filepath.Join(a.stateDir, "build", ref.Reference)
	if err := os.RemoveAll(workDir); err != nil {
		return nil, &models.BuildError{Ref: ref.Reference, Step: "prepare", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(workDir), 0755); err != nil {
		return nil, &models.BuildError{Ref: ref.Reference, Step: "prepare", Err: err}
	}

	logger.Infof("Cloning %s at %q", a.cfg.Repository, ref.Reference)
	out, err := a.runner.Run(ctx, "git", "clone", "--depth", "1", "--branch", ref.Reference, a.cfg.Repository, workDir)
	if err != nil {
		return nil, &models.BuildError{Ref: ref.Reference, Step: "clone", Output: out, Err: err}
	}

	logger.Infof("Building %s", exporterBinary)
	out, err = a.runner.RunDir(ctx, workDir, "make", "binary")
	if err != nil {
		return nil, &models.BuildError{Ref: ref.Reference, Step: "make", Output: out, Err: err}
	}

	// The build toolchain returns before slow filesystems settle; verify the
	// artifact with a bounded wait rather than a single stat.
	artifact := filepath.Join(workDir, "cmd", exporterBinary, exporterBinary)
	verify := utils.Retry{Attempts: 3, Interval: 2 * time.Second}
	if err := verify.Do(ctx, func(context.Context) (bool, error) {
		_, statErr := os.Stat(artifact)
		return statErr == nil, statErr
	}); err != nil {
		return nil, &models.BuildError{Ref: ref.Reference, Step: "verify", Output: out,
			Err: fmt.Errorf("expected artifact %q missing: %w", artifact, err)}
	}

	target := a.target(ref)
	if err := utils.InstallFile(artifact, target.BinaryPath, 0755); err != nil {
		return nil, &models.BuildError{Ref: ref.Reference, Step: "install", Err: err}
	}
	counters := filepath.Join(workDir, "etc", "default-counters.csv")
	if err := utils.InstallFile(counters, target.CountersPath, 0644); err != nil {
		return nil, &models.BuildError{Ref: ref.Reference, Step: "install counters", Err: err}
	}
	logger.Infof("Installed %s to %s", exporterBinary, target.BinaryPath)
	return target, nil
}

func (a *ArtifactAcquirer) acquireByExtract(ctx context.Context, ref models.ResolvedRef) (*models.InstallationTarget, error) {
	image := fmt.Sprintf("%s:%s", a.cfg.Image, ref.Reference)

	release, err := a.acquireRuntime(ctx)
	if err != nil {
		return nil, &models.ExtractionError{Image: image, Step: "runtime install", Err: err}
	}
	defer release()

	container := fmt.Sprintf("%s-extract-%d", exporterBinary, time.Now().Unix())
	if out, err := a.runner.Run(ctx, "docker", "create", "--name", container, image); err != nil {
		return nil, &models.ExtractionError{Image: image, Step: "create container",
			Err: fmt.Errorf("%v: %s", err, out)}
	}
	defer func() {
		if _, err := a.runner.Run(ctx, "docker", "rm", "-f", container); err != nil {
			logger.Warnf("Failed to remove ephemeral container %q: %v", container, err)
		}
	}()

	stage := filepath.Join(a.stateDir, "stage")
	if err := os.MkdirAll(stage, 0755); err != nil {
		return nil, &models.ExtractionError{Image: image, Step: "stage", Err: err}
	}
	stagedBinary := filepath.Join(stage, exporterBinary)
	stagedCounters := filepath.Join(stage, "default-counters.csv")

	if out, err := a.runner.Run(ctx, "docker", "cp",
		container+":/usr/bin/"+exporterBinary, stagedBinary); err != nil {
		return nil, &models.ExtractionError{Image: image, Step: "copy binary",
			Err: fmt.Errorf("%v: %s", err, out)}
	}
	if out, err := a.runner.Run(ctx, "docker", "cp",
		container+":/etc/dcgm-exporter/default-counters.csv", stagedCounters); err != nil {
		return nil, &models.ExtractionError{Image: image, Step: "copy counters",
			Err: fmt.Errorf("%v: %s", err, out)}
	}

	target := a.target(ref)
	if err := utils.InstallFile(stagedBinary, target.BinaryPath, 0755); err != nil {
		return nil, &models.ExtractionError{Image: image, Step: "install", Err: err}
	}
	if err := utils.InstallFile(stagedCounters, target.CountersPath, 0644); err != nil {
		return nil, &models.ExtractionError{Image: image, Step: "install counters", Err: err}
	}
	logger.Infof("Extracted %s from %s to %s", exporterBinary, image, target.BinaryPath)
	return target, nil
}

/**
 * Make the container runtime available for extraction
 * @param {context.Context} ctx - Context for cancellation
 * @returns {func()} Release function; removes the runtime iff this call
 *                   installed it, so the host's before/after state matches
 * @returns {error} Returns error if the runtime had to be installed and the
 *                  install failed (or its ledger record could not be written)
 */
func (a *ArtifactAcquirer) acquireRuntime(ctx context.Context) (func(), error) {
	if _, err := a.runner.LookPath("docker"); err == nil {
		// Pre-existing runtime: not ours, never removed.
		return func() {}, nil
	}

	pkg := a.cfg.EphemeralRtPkg
	// Ledger first: if the process dies after the install, a later run can
	// still find and remove the runtime.
	if err := a.ledger.Record(pkg, "apt-get install for artifact extraction"); err != nil {
		return nil, err
	}
	logger.Infof("Installing ephemeral container runtime %q", pkg)
	if out, err := a.runner.Run(ctx, "apt-get", "install", "-y", pkg); err != nil {
		a.ledger.Clear(pkg)
		return nil, fmt.Errorf("install %s: %v: %s", pkg, err, out)
	}

	return func() {
		logger.Infof("Removing ephemeral container runtime %q", pkg)
		if out, err := a.runner.Run(ctx, "apt-get", "remove", "-y", pkg); err != nil {
			logger.Errorf("Failed to remove ephemeral runtime %q: %v: %s", pkg, err, out)
			return
		}
		a.runner.Run(ctx, "apt-get", "autoremove", "-y")
		if err := a.ledger.Clear(pkg); err != nil {
			logger.Errorf("Failed to clear ledger record for %q: %v", pkg, err)
		}
	}, nil
}

/**
 * Replay cleanup of dependencies recorded by a crashed earlier run
 * @param {context.Context} ctx - Context for cancellation
 * @description
 * - Walks pending ledger records newest-first and re-attempts removal
 * - A record is cleared only after the removal command succeeded
 */
func (a *ArtifactAcquirer) ReplayCleanup(ctx context.Context) {
	pending, err := a.ledger.Pending()
	if err != nil {
		logger.Errorf("Failed to read acquisition ledger: %v", err)
		return
	}
	for i := len(pending) - 1; i >= 0; i-- {
		pkg := pending[i]
		logger.Warnf("Ephemeral dependency %q left behind by an earlier run, removing", pkg)
		if out, err := a.runner.Run(ctx, "apt-get", "remove", "-y", pkg); err != nil {
			logger.Errorf("Replay removal of %q failed: %v: %s", pkg, err, out)
			continue
		}
		a.ledger.Clear(pkg)
	}
}
