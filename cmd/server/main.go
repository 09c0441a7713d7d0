package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/trapcam/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "trapcam",
	Short: "Camera-trap gallery with an ONNX animal/empty classifier",
	Long: `trapcam lists a folder of camera-trap images from a static file server,
shows them four at a time and labels each one ANIMAL or EMPTY with a
classifier loaded from the same server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "trapcam.yml", "config file path")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
