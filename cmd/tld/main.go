package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/trackforge/tld/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tld",
		Short: "Scale-space detection cascade for visual tracking",
		Long: `tld runs the multi-stage sliding-window detection cascade over video
frames: variance filter, fern ensemble and nearest-neighbor stages narrow a
dense multi-scale window grid down to a handful of clustered detections.`,
		Version: version.String(),
	}

	rootCmd.AddCommand(newScanCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
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
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
