package models

/**
 * Installation target produced by the artifact acquirer
 * @property {string} component - Component name (dcgm-exporter)
 * @property {ResolvedRef} version - Resolved version the artifact was taken from
 * @property {string} binaryPath - Installed binary location
 * @property {int} listenPort - Exporter listen port
 * @property {string} countersPath - Installed counters configuration file
 */
type InstallationTarget struct {
	Component    string      `json:"component"`
	Version      ResolvedRef `json:"version"`
	BinaryPath   string      `json:"binaryPath"`
	ListenPort   int         `json:"listenPort"`
	CountersPath string      `json:"countersPath"`
}
