package status

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"dcgm-keeper/cmd/root"
	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/env"
	"dcgm-keeper/internal/models"
	"dcgm-keeper/internal/utils"
	"dcgm-keeper/services"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show exporter provisioning status",
	Long:  `The 'status' command prints the unit state, scrape-job presence, last run outcome and any ephemeral dependencies a crashed run left behind`,
	Run: func(cmd *cobra.Command, args []string) {
		showStatus(cmd.Context())
	},
}

func showStatus(ctx context.Context) {
	pipeline := services.NewPipeline(&config.Config, utils.NewExecRunner())
	unitState := pipeline.Supervisor().State(ctx)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Item", "Value"})
	t.AppendRow(table.Row{"Unit", config.Config.Supervisor.UnitName})
	t.AppendRow(table.Row{"Unit state", string(unitState)})
	t.AppendRow(table.Row{"Scrape job", formatBool(pipeline.Patcher().HasJob())})

	if report, err := services.LoadLastReport(env.KeeperDir); err == nil {
		t.AppendRow(table.Row{"Last run", report.FinishTime.Format("2006-01-02 15:04:05")})
		t.AppendRow(table.Row{"Last outcome", formatOutcome(report)})
		if report.Resolved.Reference != "" {
			t.AppendRow(table.Row{"Version", fmt.Sprintf("%s (%s)", report.Resolved.Reference, report.Resolved.Level)})
		}
		if report.Health != nil {
			t.AppendRow(table.Row{"Health", string(report.Health.Classification)})
		}
	} else {
		t.AppendRow(table.Row{"Last run", "never"})
	}

	pending, _ := services.NewAcquisitionLedger(env.KeeperDir).Pending()
	if len(pending) > 0 {
		t.AppendRow(table.Row{"Pending deps", strings.Join(pending, ", ")})
	}
	t.Render()
}

func formatBool(v bool) string {
	if v {
		return "present"
	}
	return "absent"
}

func formatOutcome(report *models.RunReport) string {
	if report.Succeeded {
		return "succeeded"
	}
	if fatal := report.FatalStage(); fatal != nil {
		return fmt.Sprintf("failed at %s (%s)", fatal.Stage, fatal.Condition)
	}
	return "failed"
}

func init() {
	root.RootCmd.AddCommand(statusCmd)

	statusCmd.Example = `  dcgm-keeper status`
}
