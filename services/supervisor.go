package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/logger"
	"dcgm-keeper/internal/models"
	"dcgm-keeper/internal/utils"
)

const unitTemplate = `[Unit]
Description={{.Description}}
After={{.After}}
Requires={{.After}}

[Service]
User={{.User}}
ExecStart={{.ExecStart}}
Restart=always
RestartSec={{.RestartDelaySec}}

[Install]
WantedBy=multi-user.target
`

/**
 * Service supervisor installing and verifying the exporter systemd unit
 * @description
 * Responsibilities:
 * - Render the unit file from the installation target and write it to the
 *   systemd unit directory under the keeper file lock
 * - Reload the daemon, enable and restart the unit
 * - Verify activation with a bounded fixed-interval poll; a unit that never
 *   reports active within the budget is declared Failed, together with the
 *   tail of its journal for diagnosis
 */
type ServiceSupervisor struct {
	cfg           *config.SupervisorConfig
	runner        utils.Runner
	lock          *utils.FileLock
	companionUnit string
	debugLevel    string
}

func NewServiceSupervisor(cfg *config.SupervisorConfig, install *config.InstallConfig, runner utils.Runner, lock *utils.FileLock) *ServiceSupervisor {
	return &ServiceSupervisor{
		cfg:           cfg,
		runner:        runner,
		lock:          lock,
		companionUnit: install.CompanionUnit,
		debugLevel:    install.DebugLevel,
	}
}

func (s *ServiceSupervisor) unitPath() string {
	return filepath.Join(s.cfg.UnitDir, s.cfg.UnitName)
}

func (s *ServiceSupervisor) renderUnit(target *models.InstallationTarget) (*models.ServiceUnit, []byte, error) {
	unit := &models.ServiceUnit{
		Name:        s.cfg.UnitName,
		Description: "NVIDIA DCGM exporter for Prometheus",
		After:       s.companionUnit,
		User:        s.cfg.ServiceUser,
		ExecStart: fmt.Sprintf("%s -a :%d -f %s -d %s",
			target.BinaryPath, target.ListenPort, target.CountersPath, s.debugLevel),
		RestartDelaySec: s.cfg.RestartDelaySec,
		State:           models.UnitUnknown,
	}
	tmpl, err := template.New("unit").Parse(unitTemplate)
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, unit); err != nil {
		return nil, nil, err
	}
	return unit, buf.Bytes(), nil
}

/**
 * Install the unit file and bring the exporter service up
 * @param {context.Context} ctx - Context for cancellation
 * @param {*models.InstallationTarget} target - Installed binary to run
 * @returns {*models.ServiceUnit} Unit in state Running on success
 * @returns {error} *models.ServiceStartError when activation polling is
 *                  exhausted, plain error for install failures
 */
func (s *ServiceSupervisor) Install(ctx context.Context, target *models.InstallationTarget) (*models.ServiceUnit, error) {
	unit, rendered, err := s.renderUnit(target)
	if err != nil {
		return nil, fmt.Errorf("render unit %s: %w", s.cfg.UnitName, err)
	}

	if err := s.lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire keeper lock: %w", err)
	}
	installErr := func() error {
		if err := utils.AtomicWriteFile(s.unitPath(), rendered, 0644); err != nil {
			return fmt.Errorf("write unit file %s: %w", s.unitPath(), err)
		}
		if out, err := s.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
			return fmt.Errorf("daemon-reload: %v: %s", err, out)
		}
		if out, err := s.runner.Run(ctx, "systemctl", "enable", s.cfg.UnitName); err != nil {
			return fmt.Errorf("enable %s: %v: %s", s.cfg.UnitName, err, out)
		}
		if out, err := s.runner.Run(ctx, "systemctl", "restart", s.cfg.UnitName); err != nil {
			return fmt.Errorf("restart %s: %v: %s", s.cfg.UnitName, err, out)
		}
		return nil
	}()
	s.lock.Unlock()
	if installErr != nil {
		return nil, installErr
	}
	unit.State = models.UnitInstalled
	logger.Infof("Unit %s installed, waiting for activation", s.cfg.UnitName)

	poll := utils.Retry{
		Attempts: s.cfg.PollAttempts,
		Interval: time.Duration(s.cfg.PollIntervalSec) * time.Second,
	}
	err = poll.Do(ctx, func(ctx context.Context) (bool, error) {
		return s.isActive(ctx), nil
	})
	if err != nil {
		unit.State = models.UnitFailed
		return unit, &models.ServiceStartError{
			Unit:        s.cfg.UnitName,
			Attempts:    s.cfg.PollAttempts,
			JournalTail: s.journalTail(ctx),
		}
	}
	unit.State = models.UnitRunning
	logger.Infof("Unit %s is active", s.cfg.UnitName)
	return unit, nil
}

func (s *ServiceSupervisor) isActive(ctx context.Context) bool {
	out, err := s.runner.Run(ctx, "systemctl", "is-active", s.cfg.UnitName)
	return err == nil && strings.TrimSpace(out) == "active"
}

/**
 * Report the current unit state for status display
 * @param {context.Context} ctx - Context for cancellation
 * @returns {models.UnitState} Running, Installed, or Unknown
 */
func (s *ServiceSupervisor) State(ctx context.Context) models.UnitState {
	if s.isActive(ctx) {
		return models.UnitRunning
	}
	if _, err := os.Stat(s.unitPath()); err == nil {
		return models.UnitInstalled
	}
	return models.UnitUnknown
}

func (s *ServiceSupervisor) journalTail(ctx context.Context) []string {
	out, err := s.runner.Run(ctx, "journalctl", "-u", s.cfg.UnitName,
		"-n", fmt.Sprintf("%d", s.cfg.JournalLines), "--no-pager")
	if err != nil {
		logger.Warnf("Failed to read journal for %s: %v", s.cfg.UnitName, err)
		return nil
	}
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

/**
 * Remove the unit: stop, disable, delete the unit file, reload the daemon
 * @param {context.Context} ctx - Context for cancellation
 * @returns {error} Returns error if the unit file cannot be removed
 * @description Stop/disable failures are logged and tolerated so removal
 *              stays idempotent on partially installed hosts
 */
func (s *ServiceSupervisor) Remove(ctx context.Context) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire keeper lock: %w", err)
	}
	defer s.lock.Unlock()

	if out, err := s.runner.Run(ctx, "systemctl", "stop", s.cfg.UnitName); err != nil {
		logger.Warnf("Stop %s: %v: %s", s.cfg.UnitName, err, out)
	}
	if out, err := s.runner.Run(ctx, "systemctl", "disable", s.cfg.UnitName); err != nil {
		logger.Warnf("Disable %s: %v: %s", s.cfg.UnitName, err, out)
	}
	if err := os.Remove(s.unitPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit file %s: %w", s.unitPath(), err)
	}
	if out, err := s.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		logger.Warnf("daemon-reload: %v: %s", err, out)
	}
	logger.Infof("Unit %s removed", s.cfg.UnitName)
	return nil
}
