package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance/internal/camera"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/events"
	"github.com/kozaktomas/attendance/internal/ledger"
	"github.com/kozaktomas/attendance/internal/metrics"
	"github.com/kozaktomas/attendance/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Recognize faces from the camera and record attendance",
	Long: `Load the reference images, open the camera and record attendance for
every recognized person, at most once per day.

Recognized faces are framed in green, unknown faces in red. Press 'q' in
the window to quit.

Examples:
  # Default camera, reference images in ./images, ledger in ./attendance.csv
  attendance run

  # Second camera with a stricter tolerance
  attendance run --device 1 --tolerance 0.45`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("device", 0, "Camera device index (env CAMERA_DEVICE)")
	runCmd.Flags().Float64("tolerance", 0, "Maximum embedding distance for a match (default from the model profile)")
	runCmd.Flags().Float64("scale", 0, "Downscale factor applied before detection (env FRAME_SCALE)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig(cmd)
	if changed(cmd, "device") {
		cfg.Camera.Device = mustGetInt(cmd, "device")
	}
	if err := applyTolerance(cmd, cfg); err != nil {
		return err
	}
	if changed(cmd, "scale") {
		cfg.Camera.FrameScale = mustGetFloat64(cmd, "scale")
	}
	log := newLogger(cfg)

	detector, closeDetector, err := newDetector(cfg, log)
	if err != nil {
		return err
	}
	defer closeDetector()

	r, _, err := buildRoster(ctx, cfg, detector, log, false)
	if err != nil {
		return err
	}
	log.Info("known identities loaded", "count", r.Len(), "references", r.References())

	m := metrics.NewManager()
	m.SetRoster(r.Len(), r.References())
	flushMetrics := func() {
		if cfg.Metrics.TextfilePath == "" {
			return
		}
		if err := m.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			log.Warn("failed to write metrics", "error", err)
		}
	}
	defer flushMetrics()

	publisher := newPublisher(cfg, log)
	defer publisher.Close()

	l, where, err := openLedger(ctx, cfg, log,
		ledger.WithHook(events.LedgerHook(publisher, cfg.Camera.Name, log)))
	if err != nil {
		return err
	}
	defer l.Close()

	matcher := newMatcher(cfg, r)
	log.Info("matcher ready", "tolerance", matcher.Tolerance(), "indexed", matcher.Indexed())

	cam, err := camera.Open(cfg.Camera.Device)
	if err != nil {
		return err
	}
	defer cam.Close()

	win := camera.NewWindow(constants.WindowTitle, constants.QuitKey)
	defer win.Close()

	p := pipeline.New(detector, matcher, l,
		pipeline.WithScale(cfg.Camera.FrameScale),
		pipeline.WithLogger(log),
		pipeline.WithMetrics(m),
		pipeline.WithFrameHook(func(frames int) {
			if frames%constants.MetricsFlushInterval == 0 {
				flushMetrics()
			}
		}),
	)

	log.Info("camera started, press 'q' to quit", "device", cfg.Camera.Device)
	if err := p.Run(ctx, cam, win); err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}

	log.Info("camera closed", "frames", p.Frames(), "ledger", where)
	return nil
}
