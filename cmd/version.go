package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tranvictor/walletfactory/config"
)

const (
	VERSION string = "0.1.0"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show walletfactory version",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.JSONOutput {
			return appUI.JSON(map[string]string{"version": VERSION})
		}
		appUI.Info("Version: %s", VERSION)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
