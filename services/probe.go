package services

import (
	"context"
	"fmt"
	"strings"

	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/logger"
	"dcgm-keeper/internal/models"
	"dcgm-keeper/internal/utils"
)

// Precondition is a single side-effect free check with a concrete
// remediation for the operator.
type Precondition struct {
	Name   string
	Remedy string
	Check  func(ctx context.Context) error
}

/**
 * Dependency probe verifying host preconditions before any mutation
 * @description
 * - Driver command must resolve on PATH (the exporter links against the
 *   driver's management library)
 * - The companion DCGM unit must be active (the exporter is only a frontend
 *   for it)
 * - First failing precondition wins; no partial progress is attempted
 */
type DependencyProbe struct {
	runner utils.Runner
	checks []Precondition
}

func NewDependencyProbe(cfg *config.InstallConfig, runner utils.Runner) *DependencyProbe {
	p := &DependencyProbe{runner: runner}
	p.checks = []Precondition{
		{
			Name:   fmt.Sprintf("driver command %q present", cfg.DriverCommand),
			Remedy: "install the NVIDIA driver so that " + cfg.DriverCommand + " is on PATH",
			Check: func(ctx context.Context) error {
				if _, err := runner.LookPath(cfg.DriverCommand); err != nil {
					return fmt.Errorf("%s not found on PATH", cfg.DriverCommand)
				}
				return nil
			},
		},
		{
			Name:   fmt.Sprintf("companion unit %q active", cfg.CompanionUnit),
			Remedy: "systemctl enable --now " + strings.TrimSuffix(cfg.CompanionUnit, ".service"),
			Check: func(ctx context.Context) error {
				out, err := runner.Run(ctx, "systemctl", "is-active", cfg.CompanionUnit)
				if err != nil || out != "active" {
					return fmt.Errorf("unit %s is %q, want active", cfg.CompanionUnit, out)
				}
				return nil
			},
		},
	}
	return p
}

/**
 * Run all preconditions in order
 * @param {context.Context} ctx - Context for cancellation
 * @returns {error} nil when every precondition passes; the first failure is
 *                  returned as a *models.PreconditionError
 */
func (p *DependencyProbe) Check(ctx context.Context) error {
	for _, c := range p.checks {
		if err := c.Check(ctx); err != nil {
			logger.Errorf("Precondition failed: %s: %v", c.Name, err)
			return &models.PreconditionError{
				Name:   c.Name,
				Reason: err.Error(),
				Remedy: c.Remedy,
			}
		}
		logger.Debugf("Precondition ok: %s", c.Name)
	}
	return nil
}
