package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yahallo-auth/yahallo/internal/camera"
	"github.com/yahallo-auth/yahallo/internal/domain"
	"github.com/yahallo-auth/yahallo/internal/imaging"
)

var (
	testTimeout     time.Duration
	testExitOnMatch bool
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Print live match results for the camera feed",
	Args:  cobra.NoArgs,
	RunE:  runTest,
}

func init() {
	testCmd.Flags().DurationVar(&testTimeout, "timeout", 10*time.Second, "How long to run")
	testCmd.Flags().BoolVar(&testExitOnMatch, "exit-on-match", false, "Stop at the first match")
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rec, err := newRecognizer(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rec.Close() }()

	if !rec.HasEnrollments() {
		return domain.ErrNoData
	}

	cam, err := camera.Start(cfg.CameraDevice, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cam.Stop() }()

	res := cam.Resolution()
	fmt.Printf("Camera %s at %dx%d, %s per frame\n", cam.Device(), res.Width, res.Height, cam.Interval())

	deadline := time.Now().Add(testTimeout)
	for n := 1; time.Now().Before(deadline); n++ {
		if err := ctx.Err(); err != nil {
			return nil
		}

		frame, err := cam.Capture()
		if err != nil {
			return err
		}
		img, err := frame.Image()
		if err != nil {
			return err
		}

		dark, err := imaging.IsDark(img, cfg.DarkThreshold)
		if err != nil {
			return err
		}
		if dark {
			fmt.Printf("frame %d: too dark\n", n)
			continue
		}

		result, err := rec.Analyze(ctx, img)
		switch {
		case errors.Is(err, domain.ErrMultipleFaces):
			fmt.Printf("frame %d: multiple faces\n", n)
		case err != nil:
			return err
		case result.Rect == nil:
			fmt.Printf("frame %d: no face\n", n)
		case result.Match == nil:
			fmt.Printf("frame %d: unknown face at %s\n", n, result.Rect.Scale(frame.Resolution()))
		default:
			m := result.Match
			fmt.Printf("frame %d: %s (#%d) distance %.4f at %s\n",
				n, m.Face.Label, m.Face.ID, m.Distance, result.Rect.Scale(frame.Resolution()))
			if testExitOnMatch {
				return nil
			}
		}
	}
	return nil
}
