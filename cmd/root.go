package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thetimii/dashboard-sub001/cmd/worker"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "onboard",
		Short: "Lifecycle notification and conversion tracking dispatcher",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}
