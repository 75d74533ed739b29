package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/guoyu07/rocketeer/internal/app"
	"github.com/guoyu07/rocketeer/internal/daemon"
)

func init() {
	initCmd.Flags().StringVar(&initRoot, "root", "/var/www/app", "Application root directory on the target")
	initCmd.Flags().StringVar(&initName, "name", "", "Application name (default: current directory name)")
	initCmd.Flags().StringVar(&initFormat, "format", "toml", "File format: toml or yaml")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing project file")
	rootCmd.AddCommand(initCmd)
}

var (
	initRoot   string
	initName   string
	initFormat string
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter project file",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		switch initFormat {
		case "toml":
			path = "rocketeer.toml"
		case "yaml", "yml":
			path = "rocketeer.yaml"
		default:
			return fmt.Errorf("unknown format %q: want toml or yaml", initFormat)
		}
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := sampleConfig(initName, initRoot)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := daemon.SaveConfig(cfg, path); err != nil {
		return err
	}
	writeLine(cmd.OutOrStdout(), "Wrote %s", path)
	return nil
}

// sampleConfig is the starter project: a dependency step, one shared folder
// and a hook on swap-symlink.
func sampleConfig(name, root string) daemon.Config {
	if name == "" {
		if wd, err := os.Getwd(); err == nil {
			name = filepath.Base(wd)
		}
	}
	cfg := daemon.DefaultConfig()
	cfg.Application.Name = name
	cfg.Application.RootDirectory = root
	cfg.Application.Shared = []string{"storage"}
	cfg.Tasks = map[string]app.TaskConfig{
		"dependencies": {
			Description: "install dependencies",
			Commands:    []string{"echo install dependencies here"},
		},
	}
	cfg.Hooks = []app.HookConfig{{
		Event:    "before.swap-symlink",
		Commands: []string{"echo about to go live"},
	}}
	// Leave history.dir to the default so the file stays portable.
	cfg.History.Dir = ""
	return cfg
}
