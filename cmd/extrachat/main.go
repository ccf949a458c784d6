package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"PersonaChat/internal/config"
)

var (
	cfgFile string
	debug   bool
	version = "1.0.0"
)

var rootCmd = &cobra.Command{
	Use:     "extrachat",
	Short:   "Chat with interchangeable LLM backends",
	Version: version,
	Long: `extrachat serves a single chat endpoint in front of several LLM providers
(claude, gemini, openai, grok, ollama) and ships a terminal client with a
per-session system instruction and JSON export/import.`,
	Example: `  # Start the HTTP server
  $ extrachat serve

  # Chat against a running server
  $ extrachat chat

  # Chat without a server
  $ extrachat chat --local

  # Show recent completions
  $ extrachat ledger --limit 10`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file (default ./extrachat.{yaml,json,toml})")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(ledgerCmd)
}

// loadConfig reads configuration and applies persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Debug = true
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
