package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dcgm-keeper/internal/logger"

	"github.com/iancoleman/orderedmap"
)

// AcquisitionLedger persists which ephemeral dependencies this keeper
// installed on the host. A record is written *before* the install mutates
// the host and cleared only *after* a confirmed removal, so cleanup can be
// replayed by a later run even if the process crashed in between. Records
// keep acquisition order, and cleanup replays them newest-first.
type AcquisitionLedger struct {
	path string
}

type acquisitionRecord struct {
	InstalledAt string `json:"installedAt"`
	Detail      string `json:"detail,omitempty"`
}

func NewAcquisitionLedger(stateDir string) *AcquisitionLedger {
	return &AcquisitionLedger{path: filepath.Join(stateDir, "acquisitions.json")}
}

func (l *AcquisitionLedger) load() (*orderedmap.OrderedMap, error) {
	om := orderedmap.New()
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return om, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, om); err != nil {
		return nil, fmt.Errorf("parse ledger '%s': %w", l.path, err)
	}
	return om, nil
}

func (l *AcquisitionLedger) save(om *orderedmap.OrderedMap) error {
	data, err := json.MarshalIndent(om, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(l.path, data, 0644)
}

/**
 * Record an ephemeral dependency about to be installed
 * @param {string} name - Dependency name (e.g. the runtime package)
 * @param {string} detail - How it was installed, for the operator
 * @returns {error} Returns error if the ledger cannot be persisted; callers
 *                  must not install the dependency in that case
 */
func (l *AcquisitionLedger) Record(name, detail string) error {
	om, err := l.load()
	if err != nil {
		return err
	}
	om.Set(name, acquisitionRecord{
		InstalledAt: time.Now().Format(time.RFC3339),
		Detail:      detail,
	})
	if err := l.save(om); err != nil {
		return err
	}
	logger.Infof("Recorded ephemeral dependency %q in acquisition ledger", name)
	return nil
}

/**
 * Clear a dependency record after its confirmed removal
 * @param {string} name - Dependency name
 * @returns {error} Returns error if the ledger cannot be persisted
 */
func (l *AcquisitionLedger) Clear(name string) error {
	om, err := l.load()
	if err != nil {
		return err
	}
	om.Delete(name)
	if err := l.save(om); err != nil {
		return err
	}
	logger.Infof("Cleared ephemeral dependency %q from acquisition ledger", name)
	return nil
}

/**
 * Pending returns recorded dependencies in acquisition order
 * @returns {[]string} Dependency names still awaiting removal
 */
func (l *AcquisitionLedger) Pending() ([]string, error) {
	om, err := l.load()
	if err != nil {
		return nil, err
	}
	return om.Keys(), nil
}
