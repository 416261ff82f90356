package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heiftools/heifconv/internal/codec"
)

// WriteFakeHeic creates a file with a .heic payload stand-in in dir.
// When corrupt is true the content marks the file as undecodable for
// StubConverter.
func WriteFakeHeic(t *testing.T, dir, name string, corrupt bool) string {
	t.Helper()
	content := "fake-heic-payload"
	if corrupt {
		content = "corrupt"
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fixture %s: %v", path, err)
	}
	return path
}

// StubConverter is a file-backed Converter for pipeline tests. It
// copies the source to the destination unless the source content is
// "corrupt", in which case it reports a decode failure. An optional
// Gate blocks every conversion until the channel is closed, which lets
// tests cancel runs while work is in flight.
type StubConverter struct {
	Gate chan struct{}
}

func (s *StubConverter) Convert(ctx context.Context, srcPath, destPath string, opts codec.Options) codec.Result {
	if s.Gate != nil {
		<-s.Gate
	}
	start := time.Now()

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return codec.Result{SourcePath: srcPath, DestPath: destPath, Duration: time.Since(start), Error: err.Error()}
	}
	if strings.Contains(string(data), "corrupt") {
		return codec.Result{SourcePath: srcPath, DestPath: destPath, Duration: time.Since(start),
			Error: "decode " + srcPath + ": bad heif data"}
	}
	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return codec.Result{SourcePath: srcPath, DestPath: destPath, Duration: time.Since(start), Error: err.Error()}
	}
	return codec.Result{SourcePath: srcPath, DestPath: destPath, Success: true, Duration: time.Since(start) + time.Millisecond}
}
