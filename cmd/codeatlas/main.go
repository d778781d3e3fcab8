// cmd/codeatlas/main.go
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeatlas-dev/codeatlas/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "codeatlas",
	Short: "Semantic code chunking and retrieval",
	Long:  `Turn source files into retrievable semantic chunks and query them by similarity.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("codeatlas v0.1.0")
	},
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}
	return config.LoadConfig(path)
}

func defaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".codeatlas.yaml"
	}
	return homeDir + "/.config/codeatlas/config.yaml"
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
