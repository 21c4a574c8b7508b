package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/logger"
	"dcgm-keeper/internal/models"
	"dcgm-keeper/internal/utils"
)

/**
 * Health verifier classifying the exporter's metrics exposition
 * @description
 * Fetches the exporter's /metrics endpoint with a bounded poll and parses
 * the exposition into metric families. Classification is by family-name
 * prefix, and every configured prefix must be matched by at least one
 * observed family:
 * - all baseline and all extended prefixes matched => available
 * - all baseline matched, one or more extended absent => partially_available
 *   (profiling metrics need a supported GPU and DCP mode, their absence is
 *   tolerable)
 * - any baseline prefix unmatched after the whole poll budget => unavailable
 * Polling stops at the first scrape covering the baseline set.
 */
type HealthVerifier struct {
	cfg      *config.HealthConfig
	endpoint string
	client   *http.Client
}

func NewHealthVerifier(cfg *config.HealthConfig, port int) *HealthVerifier {
	return &HealthVerifier{
		cfg:      cfg,
		endpoint: fmt.Sprintf("http://127.0.0.1:%d/metrics", port),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// NewHealthVerifierForEndpoint targets an explicit URL, used by the daemon
// re-check loop and by tests.
func NewHealthVerifierForEndpoint(cfg *config.HealthConfig, endpoint string) *HealthVerifier {
	return &HealthVerifier{
		cfg:      cfg,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

/**
 * Verify exporter health
 * @param {context.Context} ctx - Context for cancellation
 * @returns {*models.HealthCheckResult} Classification with the observed
 *                                      family names; never nil
 * @returns {error} Last scrape error when the endpoint stayed unreachable
 */
func (h *HealthVerifier) Verify(ctx context.Context) (*models.HealthCheckResult, error) {
	result := &models.HealthCheckResult{
		Endpoint:         h.endpoint,
		BaselinePrefixes: h.cfg.BaselinePrefixes,
		ExtendedPrefixes: h.cfg.ExtendedPrefixes,
		Classification:   models.HealthUnavailable,
	}

	poll := utils.Retry{
		Attempts: h.cfg.PollAttempts,
		Interval: time.Duration(h.cfg.PollIntervalSec) * time.Second,
	}
	var lastErr error
	err := poll.Do(ctx, func(ctx context.Context) (bool, error) {
		exposed, err := h.scrape(ctx)
		if err != nil {
			lastErr = err
			return false, err
		}
		families := familyNames(exposed)
		result.ObservedFamilies = families
		if !coversAllPrefixes(families, h.cfg.BaselinePrefixes) {
			// Exporter answers but GPU metrics are not up yet; keep polling.
			return false, fmt.Errorf("baseline metric families incomplete, %d observed", len(families))
		}
		if coversAllPrefixes(families, h.cfg.ExtendedPrefixes) {
			result.Classification = models.HealthAvailable
		} else {
			result.Classification = models.HealthPartiallyAvailable
		}
		return true, nil
	})
	if err != nil && result.Classification == models.HealthUnavailable {
		logger.Errorf("Exporter at %s unavailable: %v", h.endpoint, err)
		return result, lastErr
	}
	logger.Infof("Exporter at %s classified %s (%d metric families)",
		h.endpoint, result.Classification, len(result.ObservedFamilies))
	return result, nil
}

func (h *HealthVerifier) scrape(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics endpoint returned %s", resp.Status)
	}

	parser := expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse exposition: %w", err)
	}
	return families, nil
}

func familyNames(families map[string]*dto.MetricFamily) []string {
	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// coversAllPrefixes reports whether every configured prefix is matched by at
// least one observed family name.
func coversAllPrefixes(families []string, prefixes []string) bool {
	for _, prefix := range prefixes {
		matched := false
		for _, name := range families {
			if strings.HasPrefix(name, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
