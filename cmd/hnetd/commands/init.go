package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hnetwork/hnetd/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Create a configuration file with default values.

Writes to $XDG_CONFIG_HOME/hnetd/config.yaml unless --config points
elsewhere. Refuses to overwrite an existing file without --force.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	var (
		path string
		err  error
	)

	if cfg := GetConfigFile(); cfg != "" {
		path = cfg
		err = config.InitConfigToPath(cfg, initForce)
	} else {
		path, err = config.InitConfig(initForce)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: hnetd start")
	fmt.Printf("  3. Or specify custom config: hnetd start --config %s\n", path)
	return nil
}
