package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string
var logger *zap.SugaredLogger
var dataDir string

var rootCmd = &cobra.Command{
	Use:   "jswatch",
	Short: "Monitor JavaScript files for changes, endpoints and renamed copies",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init config
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath("$HOME")
			viper.SetConfigName(".jswatch")
			viper.SetConfigType("yaml")
		}

		_ = viper.ReadInConfig()

		if dataDir == "" {
			dataDir = viper.GetString("data_dir")
		}
		if dataDir == "" {
			dataDir = "./data"
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %s", err.Error())
		}
		if abs, err := filepath.Abs(dataDir); err == nil {
			dataDir = abs
		}

		// init logger
		l, _ := zap.NewProduction()
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			l, _ = zap.NewDevelopment()
		}
		logger = l.Sugar()

		applyConfigDefaults(cmd)

		logger.Infof("data_dir=%s", dataDir)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.jswatch.yaml)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "directory for the content store (default ./data)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(clustersCmd)
	rootCmd.AddCommand(endpointsCmd)
	rootCmd.AddCommand(versionCmd)
}
