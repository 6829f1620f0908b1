package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shipway/shipway/pkg/config"
	"github.com/shipway/shipway/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

// exitStatus carries the deployment outcome out of the command handlers so
// that os.Exit runs only after their deferred cleanup has completed.
var exitStatus int

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitStatus)
}

var rootCmd = &cobra.Command{
	Use:   "shipway",
	Short: "Shipway - build, ship, and verify deployments with automatic rollback",
	Long: `Shipway deploys a source tree to a remote target as an immutable,
content-addressed artifact: build, transfer, activate, verify, then commit.
A deployment that activates but fails verification is rolled back to the
previous version automatically.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Shipway version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile,
		"path to the shipway configuration file")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(artifactsCmd)
}

// loadConfig reads the configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
	return cfg, nil
}
