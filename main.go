package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildDate = "unknown"
)

var (
	// Global flags
	modelFlag    string
	endpointFlag string
	verbose      bool
)

// errReported marks a failure the active surface has already shown to the user
var errReported = errors.New("analysis failed")

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "vantage",
		Short: "Firmware code review with a local language model",
		Long: `vantage sends a UEFI/EDK II source selection, together with the headers that sit
next to it, to a local Ollama model and streams the critique as it is written.

Reasoning emitted between <think> tags is shown separately from the answer.
Completed analyses are saved as markdown next to the source file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Ollama model (default from settings or VANTAGE_MODEL)")
	rootCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", "", "Ollama endpoint (default http://localhost:11434)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging to ~/.vantage/logs")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprint(os.Stderr, FormatUserError(err))
		}
		os.Exit(1)
	}
}
