package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var dispatcherURL string

var rootCmd = &cobra.Command{
	Use:   "herd-cli",
	Short: "herd-cli is the command-line interface for the testherd pipeline.",
	Long:  `A CLI for inspecting and driving a testherd dispatcher: queueing commits, checking pipeline status, and reading test results.`,
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&dispatcherURL, "dispatcher", "d", "http://localhost:8888", "Base URL of the dispatcher API")

	if err := viper.BindPFlag("DISPATCHER_URL", rootCmd.PersistentFlags().Lookup("dispatcher")); err != nil {
		slog.Error("Error binding flag", "error", err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetEnvPrefix("TESTHERD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if v := viper.GetString("DISPATCHER_URL"); v != "" {
		dispatcherURL = v
	}
}
