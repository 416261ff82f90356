// Package codec converts a single HEIC/HEIF file into one of the
// supported raster output formats. All failures are captured in the
// returned Result; nothing escapes the Convert boundary.
package codec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Format is a supported output image format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWEBP Format = "webp"
	FormatBMP  Format = "bmp"
)

// ParseFormat maps a user-supplied format string to a Format.
// Matching is case-insensitive and "jpg" is accepted as an alias.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "webp":
		return FormatWEBP, nil
	case "bmp":
		return FormatBMP, nil
	}
	return "", fmt.Errorf("unsupported output format %q (must be png, jpeg, webp or bmp)", s)
}

// Formats lists every supported output format.
func Formats() []Format {
	return []Format{FormatPNG, FormatJPEG, FormatWEBP, FormatBMP}
}

// Ext returns the file extension (with dot) used for output files.
func (f Format) Ext() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return "." + string(f)
}

// UsesQuality reports whether the encoder for this format honors the
// quality setting. PNG and BMP are lossless and ignore it.
func (f Format) UsesQuality() bool {
	return f == FormatJPEG || f == FormatWEBP
}

// Options carries the encode parameters for one conversion.
type Options struct {
	Format  Format
	Quality int // 1-100; ignored by lossless formats
}

// ClampQuality forces a quality value into the valid [1,100] range.
func ClampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// Result is the outcome of converting one source file. It is immutable
// once produced.
type Result struct {
	SourcePath string        `json:"source_path"`
	DestPath   string        `json:"dest_path"`
	Success    bool          `json:"success"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Converter converts one source file to one destination file.
// Implementations must never panic and must always return a Result,
// capturing every failure in Result.Error.
type Converter interface {
	Convert(ctx context.Context, srcPath, destPath string, opts Options) Result
}

// DestPath builds the output path for a source file name:
// <destDir>/<basename>.<target extension>.
func DestPath(destDir, srcName string, f Format) string {
	base := strings.TrimSuffix(srcName, filepath.Ext(srcName))
	return filepath.Join(destDir, base+f.Ext())
}

// writeFileAtomic writes data to a temporary file in the destination
// directory and renames it over path, so a failed or interrupted write
// never leaves a partial destination file behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".heifconv-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
