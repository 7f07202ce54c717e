// Command catalogctl 管理药品目录：导入目录存储，以及把目录索引构建到持久化后端。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"medimate-go/internal/config"
	"medimate-go/pkg/log"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "catalogctl",
	Short:         "Manage the MediMate medicine catalog",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		log.Init(loaded.Log.Level, loaded.Log.Format, loaded.Log.OutputPath)
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "path to config file")
}

func main() {
	defer log.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
