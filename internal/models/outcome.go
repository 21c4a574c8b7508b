package models

import (
	"fmt"
	"time"
)

// Condition tags the outcome of a pipeline stage. Fatal conditions abort the
// remaining pipeline; the others are recorded and reported only.
type Condition string

const (
	ConditionOK                 Condition = "ok"
	ConditionPreconditionFailed Condition = "precondition_failed"
	ConditionResolutionDegraded Condition = "resolution_degraded"
	ConditionBuildFailed        Condition = "build_failed"
	ConditionExtractionFailed   Condition = "extraction_failed"
	ConditionServiceStartFailed Condition = "service_start_failed"
	ConditionConfigSkipped      Condition = "config_mutation_skipped"
	ConditionConfigPatchFailed  Condition = "config_patch_failed"
	ConditionHealthDegraded     Condition = "health_degraded"
	ConditionHealthUnavailable  Condition = "health_unavailable"
)

/**
 * Result of one pipeline stage
 * @property {string} stage - Stage name (probe/resolve/acquire/supervise/patch/verify)
 * @property {Condition} condition - Tagged outcome
 * @property {bool} fatal - Whether the orchestrator short-circuited here
 * @property {string} detail - Human-readable outcome description
 * @property {string} remedy - Concrete remediation for fatal outcomes
 * @property {[]string} diagnostic - Captured log tail or similar evidence
 */
type StageResult struct {
	Stage      string        `json:"stage"`
	Condition  Condition     `json:"condition"`
	Fatal      bool          `json:"fatal"`
	Detail     string        `json:"detail,omitempty"`
	Remedy     string        `json:"remedy,omitempty"`
	Diagnostic []string      `json:"diagnostic,omitempty"`
	Duration   time.Duration `json:"duration"`
}

/**
 * Report of a whole provisioning run, persisted after every run
 * @property {bool} succeeded - False when any stage was fatal
 * @property {ResolvedRef} resolved - Reference the run installed (when reached)
 * @property {*HealthCheckResult} health - Final health classification (when reached)
 */
type RunReport struct {
	StartTime  time.Time          `json:"startTime"`
	FinishTime time.Time          `json:"finishTime"`
	Succeeded  bool               `json:"succeeded"`
	Resolved   ResolvedRef        `json:"resolved,omitempty"`
	Health     *HealthCheckResult `json:"health,omitempty"`
	Stages     []StageResult      `json:"stages"`
}

// FatalStage returns the stage the run aborted on, or nil.
func (r *RunReport) FatalStage() *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Fatal {
			return &r.Stages[i]
		}
	}
	return nil
}

// PreconditionError is returned by the dependency probe before any mutation
// was attempted. Always fatal.
type PreconditionError struct {
	Name   string
	Reason string
	Remedy string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition %q failed: %s", e.Name, e.Reason)
}

// BuildError means the build strategy did not produce the expected artifact.
type BuildError struct {
	Ref    string
	Step   string
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build of %q failed at %s: %v", e.Ref, e.Step, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// ExtractionError means the extraction strategy could not copy the artifact
// out of the packaged image. The ephemeral runtime cleanup has still run.
type ExtractionError struct {
	Image string
	Step  string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction from %q failed at %s: %v", e.Image, e.Step, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ServiceStartError means the unit never reached active within the bounded
// poll budget. JournalTail carries the recent diagnostic log lines.
type ServiceStartError struct {
	Unit        string
	Attempts    int
	JournalTail []string
}

func (e *ServiceStartError) Error() string {
	return fmt.Sprintf("unit %q did not become active after %d attempts", e.Unit, e.Attempts)
}
