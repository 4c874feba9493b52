package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbusd/dbusd/pkg/config"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a commented sample configuration to the default location
($XDG_CONFIG_HOME/dbusd/config.yaml) or to the path given by --config.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	var (
		path string
		err  error
	)
	if cfg := GetConfigFile(); cfg != "" {
		path, err = config.InitConfigToPath(cfg, forceInit)
	} else {
		path, err = config.InitConfig(forceInit)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Wrote sample configuration to %s\n", path)
	return nil
}
