package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/models"
)

func probeTestConfig() *config.InstallConfig {
	return &config.InstallConfig{
		DriverCommand: "nvidia-smi",
		CompanionUnit: "nvidia-dcgm.service",
	}
}

func TestProbePassesWhenHostIsReady(t *testing.T) {
	runner := newFakeRunner()
	runner.paths["nvidia-smi"] = "/usr/bin/nvidia-smi"
	runner.stub("systemctl is-active nvidia-dcgm.service", "active", nil)

	err := NewDependencyProbe(probeTestConfig(), runner).Check(context.Background())

	assert.NoError(t, err)
}

func TestProbeFailsWithoutDriver(t *testing.T) {
	runner := newFakeRunner()
	runner.stub("systemctl is-active nvidia-dcgm.service", "active", nil)

	err := NewDependencyProbe(probeTestConfig(), runner).Check(context.Background())

	var pre *models.PreconditionError
	require.True(t, errors.As(err, &pre))
	assert.Contains(t, pre.Name, "nvidia-smi")
	assert.Contains(t, pre.Remedy, "NVIDIA driver")
}

func TestProbeFailsWithInactiveCompanionUnit(t *testing.T) {
	runner := newFakeRunner()
	runner.paths["nvidia-smi"] = "/usr/bin/nvidia-smi"
	runner.stub("systemctl is-active nvidia-dcgm.service", "inactive", errors.New("exit status 3"))

	err := NewDependencyProbe(probeTestConfig(), runner).Check(context.Background())

	var pre *models.PreconditionError
	require.True(t, errors.As(err, &pre))
	assert.Contains(t, pre.Remedy, "systemctl enable --now nvidia-dcgm")
}
