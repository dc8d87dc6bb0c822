// Package cli implements the greenroom command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "greenroom",
	Short: "Task attempt orchestrator with per-attempt git worktrees",
	Long: `greenroom runs coding-agent task attempts in isolated git worktrees
and manages their branch lifecycle.

Each attempt gets its own branch and one worktree per linked repository.
Agents, setup scripts, and dev servers run inside the worktrees; the
branch is merged, rebased, pushed, or attached to a pull request from
there without ever touching your main checkout.

Quick start:
  greenroom init     Initialize greenroom in the current directory
  greenroom serve    Start the API server`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .greenroom/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".greenroom")
		viper.AddConfigPath("$HOME/.greenroom")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("GREENROOM")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
