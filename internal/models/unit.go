package models

type UnitState string

const (
	// 	unit file not yet written for this run
	UnitUnknown UnitState = "unknown"
	//	unit file written and the manager's view reloaded
	UnitInstalled UnitState = "installed"
	//	unit confirmed active by the poll loop
	UnitRunning UnitState = "running"
	//	poll budget exhausted without an active confirmation
	UnitFailed UnitState = "failed"
)

/**
 * Managed service unit description
 * @property {string} name - Unit name (e.g. dcgm-exporter.service)
 * @property {string} description - Human-readable unit description
 * @property {string} after - Ordering dependency on the prerequisite unit
 * @property {string} user - Service account the unit runs as
 * @property {string} execStart - Full command line including bind address,
 *                    counters path and debug flag
 * @property {int} restartDelaySec - Fixed delay of the "always" restart policy
 * @property {UnitState} state - Lifecycle state; transitions only
 *                    unknown->installed->running or ->failed
 */
type ServiceUnit struct {
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	After           string    `json:"after"`
	User            string    `json:"user"`
	ExecStart       string    `json:"execStart"`
	RestartDelaySec int       `json:"restartDelaySec"`
	State           UnitState `json:"state"`
}
