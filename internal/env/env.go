package env

import (
	"os"
	"strconv"
)

// Overrides recognized by every command. Each falls back to a documented
// default when the variable is unset or unparsable.
//
//	DCGM_EXPORTER_PORT  exporter listen port        (default 9400)
//	DCGM_INSTALL_DIR    binary install directory    (default /usr/local/bin)
//	DCGM_SERVICE_USER   unit service account        (default root)
//	DCGM_KEEPER_DIR     keeper state directory      (default /var/lib/dcgm-keeper)
var (
	ExporterPort = GetIntEnv("DCGM_EXPORTER_PORT", 9400)
	InstallDir   = GetEnv("DCGM_INSTALL_DIR", "/usr/local/bin")
	ServiceUser  = GetEnv("DCGM_SERVICE_USER", "root")
	KeeperDir    = GetEnv("DCGM_KEEPER_DIR", "/var/lib/dcgm-keeper")
)

/**
 * Get string environment variable with default
 * @param {string} key - Environment variable name
 * @param {string} def - Default value used when the variable is unset
 * @returns {string} Returns the variable value or the default
 */
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

/**
 * Get integer environment variable with default
 * @param {string} key - Environment variable name
 * @param {int} def - Default value used when unset or not an integer
 * @returns {int} Returns the parsed value or the default
 */
func GetIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
