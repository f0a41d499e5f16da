package gallery

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/schollz/progressbar/v3"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

// Encoder turns a reference image into a feature vector. A nil vector with a
// nil error means no face was found in the image.
type Encoder interface {
	Encode(ctx context.Context, img image.Image) ([]float32, error)
}

// BuilderOptions configure a Builder.
type BuilderOptions struct {
	Strict   bool      // fail on the first unreadable image or duplicate identity
	Model    string    // recorded in the artifact; defaults to the encoder's Model() if it has one
	Progress io.Writer // progress bar output; nil disables the bar
	Logger   *log.Logger
	Now      func() time.Time
}

// BuildReport summarizes one gallery build.
type BuildReport struct {
	Files      int
	Unreadable int
	Duplicates int
	NoFace     int
	Encoded    int
}

// Builder scans a folder of reference images, one identity per file, and
// produces a gallery.
type Builder struct {
	encoder Encoder
	opts    BuilderOptions
}

// NewBuilder creates a gallery builder.
func NewBuilder(enc Encoder, opts BuilderOptions) *Builder {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Builder{encoder: enc, opts: opts}
}

// listImages returns the regular, non-hidden files of dir in name order.
func listImages(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: folder %q not found", ErrSourceUnavailable, dir)
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrSourceUnavailable, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the gallery folder listing
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// Build encodes every image in dir. Unreadable images, images without a face
// and duplicate identities are reported and skipped unless Strict is set.
// It fails with ErrSourceUnavailable if dir is missing and with ErrEmpty if no
// image could be read or no face could be encoded.
func (b *Builder) Build(ctx context.Context, dir string) (*Gallery, BuildReport, error) {
	var report BuildReport

	files, err := listImages(dir)
	if err != nil {
		return nil, report, err
	}
	report.Files = len(files)
	if len(files) == 0 {
		return nil, report, fmt.Errorf("%w: no images in %q", ErrEmpty, dir)
	}

	var bar *progressbar.ProgressBar
	if b.opts.Progress != nil {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(b.opts.Progress),
			progressbar.OptionSetDescription("Encoding faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	var ids []identity.Identity
	var vectors [][]float32
	seen := make(map[identity.Identity]string)
	readable := 0

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, report, fmt.Errorf("gallery build cancelled: %w", err)
		}
		if bar != nil {
			_ = bar.Add(1)
		}

		name := filepath.Base(path)
		img, err := decodeImage(path)
		if err != nil {
			if b.opts.Strict {
				return nil, report, fmt.Errorf("could not read image %s: %w", name, err)
			}
			b.opts.Logger.Printf("WARNING: could not read image %s, skipping: %v", name, err)
			report.Unreadable++
			continue
		}
		readable++

		id := identity.FromFilename(name)
		if prev, dup := seen[id]; dup {
			if b.opts.Strict {
				return nil, report, fmt.Errorf("duplicate identity %q (%s and %s)", id, prev, name)
			}
			b.opts.Logger.Printf("WARNING: identity %q already taken by %s, skipping %s", id, prev, name)
			report.Duplicates++
			continue
		}

		vec, err := b.encoder.Encode(ctx, img)
		if err != nil {
			return nil, report, fmt.Errorf("encoding %s: %w", name, err)
		}
		if len(vec) == 0 {
			b.opts.Logger.Printf("WARNING: no face detected in image %s, skipping", name)
			report.NoFace++
			continue
		}

		seen[id] = name
		ids = append(ids, id)
		vectors = append(vectors, vec)
		report.Encoded++
		b.opts.Logger.Printf("Face encoded for image: %s", id)
	}

	if bar != nil {
		_ = bar.Finish()
	}

	if readable == 0 {
		return nil, report, fmt.Errorf("%w: no readable images in %q", ErrEmpty, dir)
	}
	if len(ids) == 0 {
		return nil, report, fmt.Errorf("%w: no faces encoded from %d images", ErrEmpty, readable)
	}

	g, err := New(ids, vectors, Options{})
	if err != nil {
		return nil, report, err
	}
	g.model = b.opts.Model
	if m, ok := b.encoder.(interface{ Model() string }); ok && g.model == "" {
		g.model = m.Model()
	}
	g.builtAt = b.opts.Now()
	return g, report, nil
}
