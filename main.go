package main

import (
	"os"

	_ "dcgm-keeper/cmd"
	"dcgm-keeper/cmd/root"
	"dcgm-keeper/internal/config"
	"dcgm-keeper/internal/logger"
)

func main() {
	// Server mode also writes the log to a file under the keeper state
	// directory; one-shot commands log to the console only.
	isServerMode := len(os.Args) > 1 && os.Args[1] == "server"
	logger.InitLogger(&config.Config.Log, isServerMode)

	if err := root.RootCmd.Execute(); err != nil {
		logger.Fatal(err)
	}
	os.Exit(0)
}
