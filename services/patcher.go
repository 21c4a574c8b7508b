package services

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/logger"
	"dcgm-keeper/internal/utils"
)

// StaticConfig is one static_configs entry of a Prometheus scrape job.
type StaticConfig struct {
	Targets []string          `yaml:"targets"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

// ScrapeJob is a single scrape_configs entry. Fields this tool does not
// manage are kept through the inline map so a patched document round-trips
// without losing operator customizations.
type ScrapeJob struct {
	JobName        string                 `yaml:"job_name"`
	ScrapeInterval string                 `yaml:"scrape_interval,omitempty"`
	ScrapeTimeout  string                 `yaml:"scrape_timeout,omitempty"`
	StaticConfigs  []StaticConfig         `yaml:"static_configs,omitempty"`
	Rest           map[string]interface{} `yaml:",inline"`
}

// ScrapeConfigDocument is a Prometheus configuration file, modeled just
// deeply enough to append a scrape job.
type ScrapeConfigDocument struct {
	Global        map[string]interface{} `yaml:"global,omitempty"`
	ScrapeConfigs []ScrapeJob            `yaml:"scrape_configs"`
	Rest          map[string]interface{} `yaml:",inline"`
}

/**
 * Config patcher inserting the exporter scrape job into Prometheus
 * @description
 * The patch is idempotent on the job name: when a job with the configured
 * name already exists the document is left byte-for-byte untouched and no
 * reload is issued. Only a real mutation triggers an atomic rewrite followed
 * by a reload of the Prometheus unit. The read-modify-write runs under the
 * keeper file lock.
 */
type ConfigPatcher struct {
	cfg    *config.PrometheusConfig
	runner utils.Runner
	lock   *utils.FileLock
	port   int
}

func NewConfigPatcher(cfg *config.PrometheusConfig, runner utils.Runner, lock *utils.FileLock, port int) *ConfigPatcher {
	return &ConfigPatcher{cfg: cfg, runner: runner, lock: lock, port: port}
}

func (p *ConfigPatcher) load() (*ScrapeConfigDocument, error) {
	data, err := os.ReadFile(p.cfg.ConfigPath)
	if os.IsNotExist(err) {
		logger.Warnf("Prometheus config %s missing, creating a minimal one", p.cfg.ConfigPath)
		return &ScrapeConfigDocument{
			Global: map[string]interface{}{"scrape_interval": p.cfg.ScrapeInterval},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.cfg.ConfigPath, err)
	}
	var doc ScrapeConfigDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.cfg.ConfigPath, err)
	}
	return &doc, nil
}

func (p *ConfigPatcher) scrapeJob() ScrapeJob {
	return ScrapeJob{
		JobName:        p.cfg.JobName,
		ScrapeInterval: p.cfg.ScrapeInterval,
		ScrapeTimeout:  p.cfg.ScrapeTimeout,
		StaticConfigs: []StaticConfig{{
			Targets: []string{fmt.Sprintf("%s:%d", p.cfg.TargetHost, p.port)},
			Labels:  p.cfg.Labels,
		}},
	}
}

/**
 * Apply the scrape job to the Prometheus configuration
 * @param {context.Context} ctx - Context for cancellation
 * @returns {bool} true when the document was mutated and reloaded,
 *                 false when the job already existed
 * @returns {error} Returns error if load, write, or reload fails
 */
func (p *ConfigPatcher) Apply(ctx context.Context) (bool, error) {
	if err := p.lock.Lock(); err != nil {
		return false, fmt.Errorf("acquire keeper lock: %w", err)
	}
	defer p.lock.Unlock()

	doc, err := p.load()
	if err != nil {
		return false, err
	}
	for _, job := range doc.ScrapeConfigs {
		if job.JobName == p.cfg.JobName {
			logger.Infof("Scrape job %q already present, leaving %s untouched",
				p.cfg.JobName, p.cfg.ConfigPath)
			return false, nil
		}
	}

	doc.ScrapeConfigs = append(doc.ScrapeConfigs, p.scrapeJob())
	if err := p.write(doc); err != nil {
		return false, err
	}
	logger.Infof("Added scrape job %q to %s", p.cfg.JobName, p.cfg.ConfigPath)
	return true, p.reload(ctx)
}

/**
 * Remove the scrape job during uninstall
 * @param {context.Context} ctx - Context for cancellation
 * @returns {bool} true when the document was mutated and reloaded
 * @returns {error} Returns error if load, write, or reload fails
 */
func (p *ConfigPatcher) RemoveJob(ctx context.Context) (bool, error) {
	if err := p.lock.Lock(); err != nil {
		return false, fmt.Errorf("acquire keeper lock: %w", err)
	}
	defer p.lock.Unlock()

	if _, err := os.Stat(p.cfg.ConfigPath); os.IsNotExist(err) {
		return false, nil
	}
	doc, err := p.load()
	if err != nil {
		return false, err
	}
	kept := doc.ScrapeConfigs[:0]
	removed := false
	for _, job := range doc.ScrapeConfigs {
		if job.JobName == p.cfg.JobName {
			removed = true
			continue
		}
		kept = append(kept, job)
	}
	if !removed {
		return false, nil
	}
	doc.ScrapeConfigs = kept
	if err := p.write(doc); err != nil {
		return false, err
	}
	logger.Infof("Removed scrape job %q from %s", p.cfg.JobName, p.cfg.ConfigPath)
	return true, p.reload(ctx)
}

// HasJob reports whether the scrape job is present, for status display.
func (p *ConfigPatcher) HasJob() bool {
	doc, err := p.load()
	if err != nil {
		return false
	}
	for _, job := range doc.ScrapeConfigs {
		if job.JobName == p.cfg.JobName {
			return true
		}
	}
	return false
}

func (p *ConfigPatcher) write(doc *ScrapeConfigDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("serialize prometheus config: %w", err)
	}
	if err := utils.AtomicWriteFile(p.cfg.ConfigPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", p.cfg.ConfigPath, err)
	}
	return nil
}

func (p *ConfigPatcher) reload(ctx context.Context) error {
	if out, err := p.runner.Run(ctx, "systemctl", "reload", p.cfg.ReloadUnit); err != nil {
		return fmt.Errorf("reload %s: %v: %s", p.cfg.ReloadUnit, err, out)
	}
	logger.Infof("Reloaded %s", p.cfg.ReloadUnit)
	return nil
}
