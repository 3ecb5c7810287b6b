package cmd

import (
	"github.com/BikramMondal5/MediVerify/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootOptions carries the resolved configuration to subcommands.
type rootOptions struct {
	configPath string
	verbose    bool
	cfg        *config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "mediverify",
		Short: "Medicine packaging authenticity checks with per-user scan history",
		Long: `MediVerify checks photos of medicine packaging for signs of counterfeiting.

Capture or upload a photo, analyze it, and every verdict is recorded in a
scan history kept per identity. The verdict comes from a mock generator
unless a vision model (Ollama, OpenAI or Gemini) is configured.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.verbose {
				cfg.LogLevel = "debug"
			}
			config.SetupLogging(cfg.LogLevel)
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newTokenCmd(opts))

	return cmd
}
