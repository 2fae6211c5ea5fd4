package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/yahallo-auth/yahallo/internal/audit"
	"github.com/yahallo-auth/yahallo/internal/camera"
	"github.com/yahallo-auth/yahallo/internal/domain"
	"github.com/yahallo-auth/yahallo/internal/imaging"
)

var (
	addLabel   string
	addTimeout time.Duration
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Enroll the face in front of the camera",
	Long: `Waits for a frame showing exactly one face, encodes it and appends it
to the face store. A running daemon picks the new face up on SIGHUP.`,
	Args: cobra.NoArgs,
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addLabel, "label", "l", "", "Label for the new face (default: \"Model #<id>\")")
	addCmd.Flags().DurationVar(&addTimeout, "timeout", 30*time.Second, "How long to wait for a usable frame")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rec, err := newRecognizer(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rec.Close() }()

	cam, err := camera.Start(cfg.CameraDevice, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cam.Stop() }()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Looking for a face"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
	)

	deadline := time.Now().Add(addTimeout)
	for {
		if time.Now().After(deadline) {
			_ = bar.Clear()
			return domain.ErrTimeout
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := cam.Capture()
		if err != nil {
			return err
		}
		_ = bar.Add(1)

		img, err := frame.Image()
		if err != nil {
			return err
		}
		dark, err := imaging.IsDark(img, cfg.DarkThreshold)
		if err != nil {
			return err
		}
		if dark {
			bar.Describe("Too dark, add some light")
			continue
		}

		emb, rect, err := rec.Encode(ctx, img)
		if errors.Is(err, domain.ErrNoFace) {
			bar.Describe("Looking for a face")
			continue
		}
		if err != nil {
			_ = bar.Clear()
			return err
		}

		enrolled, err := rec.Enroll(emb, addLabel)
		if err != nil {
			return err
		}
		if err := rec.Export(); err != nil {
			return err
		}
		_ = bar.Finish()

		_ = audit.NewSlogLogger(logger).Log(ctx, audit.Event{
			EventType: audit.EventFaceEnrolled,
			Result:    domain.ResultSuccess,
			Success:   true,
			FaceID:    enrolled.ID,
			Label:     enrolled.Label,
			Model:     string(enrolled.Embedding.Model),
		})

		fmt.Printf("\nEnrolled face #%d %q at %s\n", enrolled.ID, enrolled.Label, rect.Scale(frame.Resolution()))
		return nil
	}
}
