package server

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"dcgm-keeper/cmd/root"
	"dcgm-keeper/controllers"
	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/env"
	"dcgm-keeper/internal/middleware"
	"dcgm-keeper/services"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the management HTTP server",
	Long:  `The 'server' command starts a long-running daemon that re-verifies exporter health periodically and serves status, on-demand checks and the keeper's own metrics over HTTP`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := startServer(cmd.Context()); err != nil {
			log.Fatal(err)
		}
	},
}

func startServer(ctx context.Context) error {
	gin.SetMode(config.Config.Server.Mode)
	router := gin.Default()
	router.Use(middleware.MetricsMiddleware())

	server := services.GetServer(env.SoftwareVer)

	apiController := controllers.NewAPIController(server)
	apiController.RegisterRoutes(router)

	go server.Watch(ctx)

	if err := router.Run(config.Config.Server.Address); err != nil {
		return fmt.Errorf("management server: %w", err)
	}
	return nil
}

func init() {
	root.RootCmd.AddCommand(serverCmd)
}
