package uninstall

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dcgm-keeper/cmd/root"
	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/utils"
	"dcgm-keeper/services"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the DCGM exporter from this host",
	Long: `The 'uninstall' command reverses a previous install: it stops and
removes the systemd unit, deletes the scrape job from the Prometheus
configuration and removes the installed binary. Ephemeral dependencies
recorded by interrupted runs are cleaned up as well.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runUninstall(cmd.Context()); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func runUninstall(ctx context.Context) error {
	pipeline := services.NewPipeline(&config.Config, utils.NewExecRunner())

	pipeline.Acquirer().ReplayCleanup(ctx)

	if err := pipeline.Supervisor().Remove(ctx); err != nil {
		return err
	}
	mutated, err := pipeline.Patcher().RemoveJob(ctx)
	if err != nil {
		return err
	}
	if mutated {
		fmt.Println("Scrape job removed from Prometheus")
	}

	binary := config.Config.Install.Dir + "/dcgm-exporter"
	if err := os.Remove(binary); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", binary, err)
	}
	counters := config.Config.Install.CountersFile
	if err := os.Remove(counters); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", counters, err)
	}
	fmt.Println("Uninstall complete")
	return nil
}

func init() {
	root.RootCmd.AddCommand(uninstallCmd)

	uninstallCmd.Example = `  dcgm-keeper uninstall`
}
