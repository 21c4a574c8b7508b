package models

import "time"

// KeeperStatus is the management API's view of the host.
// @Description Aggregated exporter provisioning status
type KeeperStatus struct {
	Timestamp   time.Time          `json:"timestamp"`
	UnitState   UnitState          `json:"unitState"`
	Installed   bool               `json:"installed"`
	BinaryPath  string             `json:"binaryPath,omitempty"`
	ScrapeJob   bool               `json:"scrapeJob"`
	Health      *HealthCheckResult `json:"health,omitempty"`
	LastRun     *RunReport         `json:"lastRun,omitempty"`
	PendingDeps []string           `json:"pendingDeps,omitempty"`
}

// ServerHealth is the /healthz payload of the management server.
// @Description Management server health response
type ServerHealth struct {
	Version   string `json:"version"`
	StartTime string `json:"startTime"`
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
}
