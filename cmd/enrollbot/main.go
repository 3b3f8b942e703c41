// Command enrollbot runs the course intake Telegram bot.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/m3rciful/enrollbot/core/buildinfo"
	corecmd "github.com/m3rciful/enrollbot/core/cmd"
	coredatabase "github.com/m3rciful/enrollbot/core/database"
	"github.com/m3rciful/enrollbot/core/logger"
	"github.com/m3rciful/enrollbot/intake/app"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "enrollbot",
	Short:         "Telegram bot that collects course enrollment requests",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return corecmd.Run(app.RunOptions(configPath))
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply Postgres migrations for the submissions table",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = os.Getenv("CONFIG_PATH")
		}
		if path == "" {
			path = "configs/config.yaml"
		}
		cfg, err := app.LoadConfig(path)
		if err != nil {
			return err
		}
		if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
			return err
		}
		defer logger.Shutdown()
		return coredatabase.RunMigrations(cfg.Database)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "enrollbot", buildinfo.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (overrides CONFIG_PATH)")
	rootCmd.AddCommand(runCmd, migrateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
