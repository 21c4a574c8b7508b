package models

type HealthClass string

const (
	// HealthAvailable means all baseline and extended families were observed
	HealthAvailable HealthClass = "available"
	// HealthPartiallyAvailable means the baseline families were observed but
	// one or more extended families are absent (e.g. profiling metrics on
	// unsupported hardware). Not a failure.
	HealthPartiallyAvailable HealthClass = "partially_available"
	// HealthUnavailable means baseline families stayed absent for the whole
	// polling window. Advisory: mutating stages have already completed.
	HealthUnavailable HealthClass = "unavailable"
)

/**
 * Health verification result
 * @property {string} endpoint - Polled metrics endpoint
 * @property {[]string} baselinePrefixes - Family prefixes required for availability
 * @property {[]string} extendedPrefixes - Optional family prefixes
 * @property {[]string} observedFamilies - Families seen in the last scrape
 * @property {HealthClass} classification - available/partially_available/unavailable
 */
type HealthCheckResult struct {
	Endpoint         string      `json:"endpoint"`
	BaselinePrefixes []string    `json:"baselinePrefixes"`
	ExtendedPrefixes []string    `json:"extendedPrefixes"`
	ObservedFamilies []string    `json:"observedFamilies"`
	Classification   HealthClass `json:"classification"`
}
