package services

import (
	"context"
	"sync"
	"time"

	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/env"
	"dcgm-keeper/internal/logger"
	"dcgm-keeper/internal/models"
	"dcgm-keeper/internal/utils"
)

/**
 * Keeper daemon state shared by the management API
 * @description
 * Holds the most recent health classification and run report, and drives the
 * periodic re-verification loop that keeps the exporter health gauge and the
 * cached classification fresh while the daemon runs.
 */
type Server struct {
	mu         sync.RWMutex
	startTime  time.Time
	version    string
	pipeline   *Pipeline
	cfg        *config.AppConfig
	lastHealth *models.HealthCheckResult
	lastReport *models.RunReport
}

var (
	serverInstance *Server
	serverOnce     sync.Once
)

// GetServer returns the process-wide daemon state, creating it on first use.
func GetServer(version string) *Server {
	serverOnce.Do(func() {
		serverInstance = &Server{
			startTime: time.Now(),
			version:   version,
			cfg:       &config.Config,
			pipeline:  NewPipeline(&config.Config, utils.NewExecRunner()),
		}
		if report, err := LoadLastReport(env.KeeperDir); err == nil {
			serverInstance.lastReport = report
			serverInstance.lastHealth = report.Health
		}
	})
	return serverInstance
}

/**
 * Run periodic exporter re-verification until the context is cancelled
 * @param {context.Context} ctx - Daemon lifetime
 */
func (s *Server) Watch(ctx context.Context) {
	interval := time.Duration(s.cfg.Server.CheckIntervalSec) * time.Second
	logger.Infof("Re-verifying exporter health every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckNow(ctx)
		}
	}
}

/**
 * Re-verify exporter health immediately
 * @param {context.Context} ctx - Context for cancellation
 * @returns {*models.HealthCheckResult} Fresh classification
 */
func (s *Server) CheckNow(ctx context.Context) *models.HealthCheckResult {
	if err := s.pipeline.probe.Check(ctx); err != nil {
		logger.Warnf("Host precondition regressed: %v", err)
	}
	health, err := s.pipeline.Verifier().Verify(ctx)
	if err != nil {
		logger.Warnf("Periodic health check: %v", err)
	}
	switch health.Classification {
	case models.HealthAvailable:
		SetExporterHealth(1)
	case models.HealthPartiallyAvailable:
		SetExporterHealth(0.5)
	default:
		SetExporterHealth(0)
	}
	s.mu.Lock()
	s.lastHealth = health
	s.mu.Unlock()
	return health
}

/**
 * Build the aggregated status view for the management API and status command
 * @param {context.Context} ctx - Context for cancellation
 * @returns {*models.KeeperStatus} Unit state, scrape-job presence, health,
 *                                 last run report, pending ephemeral deps
 */
func (s *Server) Status(ctx context.Context) *models.KeeperStatus {
	s.mu.RLock()
	health := s.lastHealth
	report := s.lastReport
	s.mu.RUnlock()

	unitState := s.pipeline.Supervisor().State(ctx)
	pending, err := NewAcquisitionLedger(env.KeeperDir).Pending()
	if err != nil {
		logger.Warnf("Failed to read acquisition ledger: %v", err)
	}

	status := &models.KeeperStatus{
		Timestamp:   time.Now(),
		UnitState:   unitState,
		Installed:   unitState != models.UnitUnknown,
		ScrapeJob:   s.pipeline.Patcher().HasJob(),
		Health:      health,
		LastRun:     report,
		PendingDeps: pending,
	}
	if report != nil && report.Succeeded {
		status.BinaryPath = s.cfg.Install.Dir + "/" + exporterBinary
	}
	return status
}

// Health returns the /healthz payload.
func (s *Server) Health() *models.ServerHealth {
	return &models.ServerHealth{
		Version:   s.version,
		StartTime: s.startTime.Format(time.RFC3339),
		Status:    "running",
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	}
}
