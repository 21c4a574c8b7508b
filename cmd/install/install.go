package install

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"dcgm-keeper/cmd/root"
	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/models"
	"dcgm-keeper/internal/utils"
	"dcgm-keeper/services"
)

var (
	optVersion      string
	optMode         string
	optInstallDir   string
	optPort         int
	optYes          bool
	optStrictHealth bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Provision the DCGM exporter on this host",
	Long: `The 'install' command runs the full provisioning pipeline:
probe GPU driver and DCGM preconditions, resolve the requested exporter
version against the upstream repository, acquire the binary (build from
source or extract from the packaged image), install and start the systemd
unit, wire the scrape job into Prometheus and verify the exposed metrics.
Re-running it on an already provisioned host changes nothing.`,
	Run: func(cmd *cobra.Command, args []string) {
		applyFlags()
		if !optYes && !confirm() {
			fmt.Println("Aborted")
			return
		}
		if err := runInstall(cmd.Context()); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func applyFlags() {
	cfg := &config.Config.Install
	if optVersion != "" {
		cfg.Version = optVersion
	}
	if optMode != "" {
		cfg.Mode = optMode
	}
	if optInstallDir != "" {
		cfg.Dir = optInstallDir
	}
	if optPort != 0 {
		cfg.Port = optPort
	}
}

func confirm() bool {
	// Non-interactive invocations (pipes, provisioning scripts) proceed as
	// if confirmed.
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return true
	}
	cfg := &config.Config.Install
	fmt.Printf("Install DCGM exporter (version %q, mode %s) to %s and patch %s. Continue? [y/N] ",
		cfg.Version, cfg.Mode, cfg.Dir, config.Config.Prometheus.ConfigPath)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func runInstall(ctx context.Context) error {
	pipeline := services.NewPipeline(&config.Config, utils.NewExecRunner())
	report := pipeline.Run(ctx)

	for _, stage := range report.Stages {
		marker := "ok"
		if stage.Condition != models.ConditionOK {
			marker = string(stage.Condition)
		}
		fmt.Printf("  %-10s %-25s %s\n", stage.Stage, marker, stage.Detail)
	}

	if fatal := report.FatalStage(); fatal != nil {
		if fatal.Remedy != "" {
			fmt.Printf("Remedy: %s\n", fatal.Remedy)
		}
		for _, line := range fatal.Diagnostic {
			fmt.Println("  | " + line)
		}
		return fmt.Errorf("installation failed at stage %s", fatal.Stage)
	}

	if report.Health != nil {
		fmt.Printf("Exporter health: %s\n", report.Health.Classification)
		if err := strictHealthError(report.Health, optStrictHealth); err != nil {
			return err
		}
	}
	fmt.Println("Installation complete")
	return nil
}

// strictHealthError maps an unavailable exporter to a command failure when
// --strict-health is given. Partial availability (profiling metrics absent)
// never fails the command: the install itself completed.
func strictHealthError(health *models.HealthCheckResult, strict bool) error {
	if strict && health.Classification == models.HealthUnavailable {
		return fmt.Errorf("exporter is %s and --strict-health was given", health.Classification)
	}
	return nil
}

func init() {
	installCmd.Flags().SortFlags = false
	installCmd.Flags().StringVarP(&optVersion, "version", "v", "", "Exporter version to install (empty means repository trunk)")
	installCmd.Flags().StringVarP(&optMode, "mode", "m", "", "Acquisition mode: build or extract")
	installCmd.Flags().StringVarP(&optInstallDir, "install-dir", "d", "", "Directory to install the exporter binary to")
	installCmd.Flags().IntVarP(&optPort, "port", "p", 0, "Exporter listen port")
	installCmd.Flags().BoolVarP(&optYes, "yes", "y", false, "Skip the confirmation prompt")
	installCmd.Flags().BoolVar(&optStrictHealth, "strict-health", false, "Exit non-zero when the exporter exposes no baseline GPU metrics")
	root.RootCmd.AddCommand(installCmd)

	installCmd.Example = `  dcgm-keeper install --version 3.3.5-3.4.1 --mode extract --yes`
}
