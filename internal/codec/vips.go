package codec

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log"
	"sync"
	"time"

	"github.com/davidbyttow/govips/v2/vips"
	"golang.org/x/image/bmp"
)

var vipsOnce sync.Once

// Startup initializes the libvips runtime. Safe to call more than once;
// Shutdown must be called once at process exit.
func Startup() {
	vipsOnce.Do(func() {
		vips.LoggingSettings(func(messageDomain string, messageLevel vips.LogLevel, message string) {
			log.Printf("vips [%s]: %s", messageDomain, message)
		}, vips.LogLevelError)
		vips.Startup(nil)
	})
}

// Shutdown releases the libvips runtime.
func Shutdown() {
	vips.Shutdown()
}

// VipsConverter converts HEIC/HEIF files through libvips. PNG, JPEG and
// WEBP are exported by vips directly; BMP is re-encoded in Go because
// vips has no BMP saver.
type VipsConverter struct{}

// NewVipsConverter returns the production Converter. Startup must have
// been called before the first Convert.
func NewVipsConverter() *VipsConverter {
	return &VipsConverter{}
}

func (c *VipsConverter) Convert(ctx context.Context, srcPath, destPath string, opts Options) Result {
	start := time.Now()

	fail := func(err error) Result {
		return Result{
			SourcePath: srcPath,
			DestPath:   destPath,
			Success:    false,
			Duration:   time.Since(start),
			Error:      err.Error(),
		}
	}

	img, err := vips.NewImageFromFile(srcPath)
	if err != nil {
		return fail(fmt.Errorf("decode %s: %w", srcPath, err))
	}
	defer img.Close()

	quality := ClampQuality(opts.Quality)

	var data []byte
	switch opts.Format {
	case FormatJPEG:
		// JPEG carries no alpha channel; composite transparent or
		// palette-backed images onto opaque white before encoding.
		if img.HasAlpha() {
			if err := img.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
				return fail(fmt.Errorf("flatten alpha for jpeg: %w", err))
			}
		}
		params := vips.NewJpegExportParams()
		params.Quality = quality
		params.OptimizeCoding = true
		data, _, err = img.ExportJpeg(params)
	case FormatPNG:
		params := vips.NewPngExportParams()
		params.Compression = 9
		data, _, err = img.ExportPng(params)
	case FormatWEBP:
		params := vips.NewWebpExportParams()
		params.Quality = quality
		data, _, err = img.ExportWebp(params)
	case FormatBMP:
		data, err = exportBMP(img)
	default:
		return fail(fmt.Errorf("unsupported output format %q", opts.Format))
	}
	if err != nil {
		return fail(fmt.Errorf("encode %s as %s: %w", srcPath, opts.Format, err))
	}

	if err := writeFileAtomic(destPath, data); err != nil {
		return fail(fmt.Errorf("write %s: %w", destPath, err))
	}

	return Result{
		SourcePath: srcPath,
		DestPath:   destPath,
		Success:    true,
		Duration:   time.Since(start),
	}
}

// exportBMP round-trips the decoded image through a lossless PNG export
// and re-encodes it with the pure-Go BMP encoder.
func exportBMP(img *vips.ImageRef) ([]byte, error) {
	params := vips.NewPngExportParams()
	pngData, _, err := img.ExportPng(params)
	if err != nil {
		return nil, err
	}
	decoded, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, decoded); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
