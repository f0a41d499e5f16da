package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Build the face gallery from a folder of reference images",
	Long: `Build the face gallery from a folder of reference images.

Every image in the folder is one person; the file name without extension
becomes the identity recorded in the logs. Images that cannot be read or
contain no face are skipped with a warning unless --strict is set.

Examples:
  # Encode ./images into ./encodefile.gob
  attendance encode

  # Custom folders, fail on the first bad image
  attendance encode --source /srv/staff --output /srv/gallery.gob --strict`,
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)

	encodeCmd.Flags().String("source", "", "Folder with one reference image per person (default from GALLERY_SOURCE)")
	encodeCmd.Flags().String("output", "", "Gallery file to write (default from GALLERY_PATH)")
	encodeCmd.Flags().Bool("strict", false, "Fail on unreadable images and duplicate identities instead of skipping them")
	encodeCmd.Flags().Duration("timeout", 0, "Embedding request timeout (default from EMBEDDING_TIMEOUT)")
	encodeCmd.Flags().Bool("no-progress", false, "Disable the progress bar")
}

func runEncode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(cfg *config.Config) {
		if changed(cmd, "source") {
			cfg.Gallery.SourceDir = mustGetString(cmd, "source")
		}
		if changed(cmd, "output") {
			cfg.Gallery.Path = mustGetString(cmd, "output")
		}
		if changed(cmd, "timeout") {
			cfg.Embedding.Timeout = mustGetDuration(cmd, "timeout")
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	encoder := fingerprint.NewFaceEncoder(fingerprint.NewEmbeddingClient(cfg.Embedding.URL, cfg.Embedding.Timeout))

	opts := gallery.BuilderOptions{
		Strict: mustGetBool(cmd, "strict"),
		Logger: log.Default(),
	}
	if !mustGetBool(cmd, "no-progress") {
		opts.Progress = os.Stderr
	}

	fmt.Printf("Encoding faces from %s using %s\n", cfg.Gallery.SourceDir, cfg.Embedding.URL)
	g, report, err := gallery.NewBuilder(encoder, opts).Build(ctx, cfg.Gallery.SourceDir)
	if err != nil {
		switch {
		case errors.Is(err, gallery.ErrSourceUnavailable):
			return fmt.Errorf("gallery source unavailable: %w", err)
		case errors.Is(err, gallery.ErrEmpty):
			return fmt.Errorf("gallery would be empty: %w", err)
		}
		return fmt.Errorf("building gallery: %w", err)
	}

	if err := g.Save(cfg.Gallery.Path); err != nil {
		return fmt.Errorf("saving gallery: %w", err)
	}

	fmt.Printf("\nEncoded %d of %d images into %s\n", report.Encoded, report.Files, cfg.Gallery.Path)
	if report.Unreadable > 0 || report.NoFace > 0 || report.Duplicates > 0 {
		fmt.Printf("  Skipped: %d unreadable, %d without a face, %d duplicate identities\n",
			report.Unreadable, report.NoFace, report.Duplicates)
	}
	if g.Model() != "" {
		fmt.Printf("  Model:   %s (%d dimensions)\n", g.Model(), g.Dim())
	}
	return nil
}
