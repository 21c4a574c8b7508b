package models

// FallbackLevel records how far a requested version had to be relaxed to
// find an installable reference.
type FallbackLevel string

const (
	// FallbackExact means the requested specifier matched a reference as-is
	FallbackExact FallbackLevel = "exact"
	// FallbackPrefix means the trailing patch component was dropped and the
	// greatest reference sharing the remaining prefix was selected
	FallbackPrefix FallbackLevel = "prefix"
	// FallbackTrunk means no related reference existed and the trunk/default
	// reference is used instead
	FallbackTrunk FallbackLevel = "trunk"
)

/**
 * Resolved installable reference
 * @property {string} requested - Version specifier as given by the operator
 * @property {string} reference - Reference the acquirer will install
 * @property {FallbackLevel} level - Degree of relaxation applied (exact/prefix/trunk)
 */
type ResolvedRef struct {
	Requested string        `json:"requested"`
	Reference string        `json:"reference"`
	Level     FallbackLevel `json:"level"`
}

// Degraded reports whether the resolution had to fall back below an exact
// match. Degraded resolutions proceed but are surfaced in the run report.
func (r ResolvedRef) Degraded() bool {
	return r.Level != FallbackExact
}
