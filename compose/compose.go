// Package compose stacks per-target screenshots into one image.
package compose

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log/slog"

	"github.com/use-agent/propsnap/models"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // decode WebP captures
)

// Output formats.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// ErrNoImage is returned when no outcome carries a usable image.
var ErrNoImage = models.NewScrapeError(models.ErrCodeNoImage, "no target produced a screenshot", nil)

// CompositeImage is the encoded vertical stack.
type CompositeImage struct {
	Width, Height int
	Data          []byte
	Format        string

	// Targets lists the targets included, top to bottom.
	Targets []string
}

// ContentType is the MIME type of Data.
func (c *CompositeImage) ContentType() string {
	if c.Format == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Compositor encodes stacks in one format.
type Compositor struct {
	Format      string
	JPEGQuality int
	Logger      *slog.Logger
}

// New returns a Compositor; an empty format means PNG.
func New(format string, jpegQuality int, logger *slog.Logger) *Compositor {
	if format == "" {
		format = FormatPNG
	}
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 85
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{Format: format, JPEGQuality: jpegQuality, Logger: logger}
}

type capture struct {
	name string
	img  image.Image
}

// Compose stacks the successful outcomes in their given order, left-aligned
// on a white canvas as wide as the widest capture. Failures are skipped and so
// are captures that fail to decode. With nothing left it returns ErrNoImage.
func (c *Compositor) Compose(outcomes []models.ScrapeOutcome) (*CompositeImage, error) {
	return c.ComposeAs(outcomes, c.Format)
}

// ComposeAs is Compose with a per-call output format.
func (c *Compositor) ComposeAs(outcomes []models.ScrapeOutcome, format string) (*CompositeImage, error) {
	if format == "" {
		format = c.Format
	}
	if format != FormatPNG && format != FormatJPEG {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, fmt.Sprintf("unsupported format %q", format), nil)
	}

	var captures []capture
	width, height := 0, 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(o.Image))
		if err != nil {
			c.Logger.Warn("dropping undecodable capture", "target", o.TargetName, "error", err)
			continue
		}
		b := img.Bounds()
		if b.Dx() == 0 || b.Dy() == 0 {
			continue
		}
		captures = append(captures, capture{name: o.TargetName, img: img})
		width = max(width, b.Dx())
		height += b.Dy()
	}
	if len(captures) == 0 {
		return nil, ErrNoImage
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	names := make([]string, 0, len(captures))
	y := 0
	for _, cp := range captures {
		b := cp.img.Bounds()
		dst := image.Rect(0, y, b.Dx(), y+b.Dy())
		draw.Draw(canvas, dst, cp.img, b.Min, draw.Over)
		y += b.Dy()
		names = append(names, cp.name)
	}

	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: c.JPEGQuality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		if err := png.Encode(&buf, canvas); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	}

	return &CompositeImage{
		Width:   width,
		Height:  height,
		Data:    buf.Bytes(),
		Format:  format,
		Targets: names,
	}, nil
}
