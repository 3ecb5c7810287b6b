package cmd

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/history"
	"github.com/BikramMondal5/MediVerify/internal/identity"
	"github.com/BikramMondal5/MediVerify/internal/media"
	"github.com/BikramMondal5/MediVerify/internal/workflow"
	"github.com/spf13/cobra"
)

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var (
		capture bool
		facing  string
		delay   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "verify <image>",
		Short: "Analyze a photo of medicine packaging and record the verdict",
		Long: `Runs one capture, analyze and record cycle for the current identity.

By default the image is treated as an upload. With --capture it is served
through a still-frame camera instead, exercising the camera path: the frame
is grabbed, re-encoded as JPEG and the camera released before analysis.`,
		Example: `  # Upload a photo
  mediverify verify box.png

  # Capture it through the camera path, skipping the simulated delay
  mediverify verify box.jpg --capture --delay 0s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("delay") {
				cfg.Analysis.Delay = delay
			}
			ctx := cmd.Context()
			path := args[0]
			mode, err := media.ParseFacing(facing)
			if err != nil {
				return err
			}

			analyzer, err := newAnalyzer(cfg)
			if err != nil {
				return err
			}
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var camera media.Camera
			if capture {
				still, err := media.NewStillCameraFromFile(path)
				if err != nil {
					return err
				}
				camera = still
			}

			wopts := workflowOptions(cfg)
			wopts.Facing = mode
			ids := identity.NewProvider(store)
			ctrl := workflow.New(media.NewAdapter(camera), analyzer, history.NewRecorder(store), ids, wopts)
			defer ctrl.Close()

			if capture {
				if err := ctrl.StartCamera(ctx); err != nil {
					return err
				}
				if err := ctrl.Capture(ctx); err != nil {
					return err
				}
			} else {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read image: %w", err)
				}
				if err := ctrl.Upload(data, mime.TypeByExtension(filepath.Ext(path))); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Analyzing...")
			v, err := ctrl.Analyze(ctx)
			if err != nil {
				return fmt.Errorf("unable to analyze image, please try again: %w", err)
			}

			token, err := ids.Current(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, v.Message())
			fmt.Fprintf(out, "Confidence: %d%%\n", v.Confidence)
			if v.Notes != "" {
				fmt.Fprintf(out, "Notes:      %s\n", v.Notes)
			}
			fmt.Fprintf(out, "Identity:   %s\n", token)
			return nil
		},
	}

	cmd.Flags().BoolVar(&capture, "capture", false, "Acquire the image through the camera path")
	cmd.Flags().StringVar(&facing, "facing", string(media.FacingBack), "Camera to use with --capture (user or environment)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Simulated analysis delay (overrides config)")

	return cmd
}
