package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/greenroomhq/greenroom/internal/config"
)

// newInitCmd creates the init command.
func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize greenroom in the current directory",
		Long: `Create the .greenroom directory with a default config.yaml.

The config controls the server port, database location, the worktree
arena directory, and the GitHub integration. Edit it afterwards or
override individual values with GREENROOM_* environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(config.GreenroomDir, config.ConfigFileName)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.Default()
			if err := cfg.Save(path); err != nil {
				return err
			}
			fmt.Printf("Initialized greenroom in %s\n", config.GreenroomDir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
