package cmd

import (
	_ "dcgm-keeper/cmd/install"
	_ "dcgm-keeper/cmd/root"
	_ "dcgm-keeper/cmd/server"
	_ "dcgm-keeper/cmd/status"
	_ "dcgm-keeper/cmd/uninstall"
)
