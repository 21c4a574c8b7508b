package services

import (
	"context"
	"strings"

	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/logger"
	"dcgm-keeper/internal/models"
	"dcgm-keeper/internal/utils"

	goversion "github.com/hashicorp/go-version"
)

/**
 * Version resolver mapping a requested specifier to an installable reference
 * @description
 * - Exact match wins
 * - Otherwise the trailing patch component is stripped and the greatest
 *   available reference sharing the remaining prefix is selected
 * - Otherwise the trunk reference is used
 * - Resolution never fails outright: it always terminates on one of the
 *   three fallback levels
 */
type VersionResolver struct {
	runner     utils.Runner
	repository string
	trunk      string
}

func NewVersionResolver(cfg *config.InstallConfig, runner utils.Runner) *VersionResolver {
	return &VersionResolver{
		runner:     runner,
		repository: cfg.Repository,
		trunk:      cfg.Trunk,
	}
}

/**
 * List candidate references (tags) published by the artifact source
 * @param {context.Context} ctx - Context for cancellation
 * @returns {[]string} Tag names without the refs/tags/ prefix
 * @returns {error} Returns error if the remote cannot be listed
 */
func (r *VersionResolver) ListAvailableRefs(ctx context.Context) ([]string, error) {
	out, err := r.runner.Run(ctx, "git", "ls-remote", "--tags", "--refs", r.repository)
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		tags = append(tags, strings.TrimPrefix(fields[1], "refs/tags/"))
	}
	return tags, nil
}

/**
 * Resolve a requested specifier against the available references
 * @param {string} requested - Requested version specifier (may be empty)
 * @param {[]string} available - Candidate references from the artifact source
 * @returns {models.ResolvedRef} Always non-empty; carries the fallback level
 */
func (r *VersionResolver) Resolve(requested string, available []string) models.ResolvedRef {
	if requested == "" {
		return models.ResolvedRef{Requested: requested, Reference: r.trunk, Level: models.FallbackTrunk}
	}
	for _, ref := range available {
		if ref == requested {
			return models.ResolvedRef{Requested: requested, Reference: ref, Level: models.FallbackExact}
		}
	}
	if prefix, ok := relaxPatch(requested); ok {
		best := ""
		for _, ref := range available {
			if !strings.HasPrefix(ref, prefix) {
				continue
			}
			if best == "" || refLess(best, ref) {
				best = ref
			}
		}
		if best != "" {
			logger.Warnf("Version %q not available, degraded to prefix match %q", requested, best)
			return models.ResolvedRef{Requested: requested, Reference: best, Level: models.FallbackPrefix}
		}
	}
	logger.Warnf("Version %q not available, degraded to trunk %q", requested, r.trunk)
	return models.ResolvedRef{Requested: requested, Reference: r.trunk, Level: models.FallbackTrunk}
}

// relaxPatch drops the trailing patch component of a specifier:
// "3.3.5-3.4.2" becomes the prefix "3.3.5-3.4.".
func relaxPatch(requested string) (string, bool) {
	idx := strings.LastIndex(requested, ".")
	if idx <= 0 {
		return "", false
	}
	return requested[:idx+1], true
}

// refLess orders two references, preferring semantic ordering when both
// parse as versions and falling back to plain string ordering otherwise.
func refLess(a, b string) bool {
	va, errA := goversion.NewVersion(a)
	vb, errB := goversion.NewVersion(b)
	if errA == nil && errB == nil {
		return va.LessThan(vb)
	}
	return a < b
}
