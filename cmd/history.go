package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/history"
	"github.com/BikramMondal5/MediVerify/internal/identity"
	"github.com/BikramMondal5/MediVerify/internal/storage"
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the scan history of the current identity",
	}

	cmd.AddCommand(newHistoryListCmd(opts))
	cmd.AddCommand(newHistoryExportCmd(opts))

	return cmd
}

func newHistoryListCmd(opts *rootOptions) *cobra.Command {
	var identityFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scans, newest first, with authentic and counterfeit totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			token, err := resolveIdentity(cmd, store, identityFlag)
			if err != nil {
				return err
			}
			entries, err := history.NewRecorder(store).List(ctx, token)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			summary := history.Aggregate(entries)
			fmt.Fprintf(out, "Identity:    %s\n", token)
			fmt.Fprintf(out, "Scans:       %d\n", summary.Total)
			fmt.Fprintf(out, "Authentic:   %d\n", summary.Authentic)
			fmt.Fprintf(out, "Counterfeit: %d\n", summary.Counterfeit)
			if len(entries) == 0 {
				fmt.Fprintln(out, "\nNo scans yet.")
				return nil
			}
			fmt.Fprintln(out)
			for i, e := range entries {
				ts := e.Timestamp
				if ts == "" {
					ts = "-"
				}
				fmt.Fprintf(out, "[%d] %-16s %s\n", i+1, e.Result, ts)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&identityFlag, "identity", "", "Identity token to read (defaults to the current one)")

	return cmd
}

func newHistoryExportCmd(opts *rootOptions) *cobra.Command {
	var (
		identityFlag  string
		format        string
		output        string
		includeImages bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the scan history as JSON, YAML, CSV or Parquet",
		Example: `  # Print as YAML
  mediverify history export --format yaml

  # Write a Parquet file including the images
  mediverify history export --format parquet --images -o history.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if format == history.FormatParquet && output == "" {
				return fmt.Errorf("parquet export requires --output")
			}

			store, err := openStore(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			token, err := resolveIdentity(cmd, store, identityFlag)
			if err != nil {
				return err
			}
			entries, err := history.NewRecorder(store).List(ctx, token)
			if err != nil {
				return err
			}
			report := history.NewReport(token, entries, includeImages, time.Now())

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return report.Write(w, format)
		},
	}

	cmd.Flags().StringVar(&identityFlag, "identity", "", "Identity token to export (defaults to the current one)")
	cmd.Flags().StringVarP(&format, "format", "f", history.FormatJSON, "Output format: json, yaml, csv or parquet")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	cmd.Flags().BoolVar(&includeImages, "images", false, "Include image data URIs")

	return cmd
}

// resolveIdentity prefers an explicit token and otherwise uses (creating if
// needed) the stored one.
func resolveIdentity(cmd *cobra.Command, store storage.Port, explicit string) (identity.Token, error) {
	if explicit != "" {
		if err := identity.ValidateToken(explicit); err != nil {
			return "", err
		}
		return identity.Token(explicit), nil
	}
	return identity.NewProvider(store).Current(cmd.Context())
}
