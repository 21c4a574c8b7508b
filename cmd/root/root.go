package root

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "dcgm-keeper",
	Short: "NVIDIA DCGM exporter provisioner",
	Long:  `dcgm-keeper installs the DCGM exporter on a GPU host, supervises its systemd unit, wires it into Prometheus and verifies the exposed GPU metrics`,
}
