// Command heifconv-cli converts a directory of HEIC/HEIF files without
// the web front end: one run, progress on stdout, exit code 1 on
// failure to start.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heiftools/heifconv/internal/codec"
	"github.com/heiftools/heifconv/internal/progress"
	"github.com/heiftools/heifconv/internal/runner"
)

func main() {
	inputDir := flag.String("input", "./input", "Input directory containing HEIC/HEIF files")
	outputDir := flag.String("output", "./output", "Output directory for converted files")
	format := flag.String("format", "png", "Output format: png, jpeg, webp or bmp")
	quality := flag.Int("quality", 90, "Encode quality 1-100 (jpeg/webp only)")
	workers := flag.Int("workers", 0, "Worker count (0 = CPUs minus one)")
	batchSize := flag.Int("batch-size", 10, "Files per worker batch")
	flag.Parse()

	log.SetFlags(0)

	codec.Startup()
	defer codec.Shutdown()

	ctrl := runner.New(codec.NewVipsConverter(), nil)
	ctrl.Subscribe(func(snap progress.Snapshot) {
		if snap.Terminal {
			return
		}
		fmt.Printf("Converted %d/%d files...\n", snap.Succeeded+snap.Failed, snap.Total)
	})

	err := ctrl.Start(runner.Request{
		SourceDir: *inputDir,
		DestDir:   *outputDir,
		Format:    *format,
		Quality:   *quality,
		Workers:   *workers,
		BatchSize: *batchSize,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		os.Exit(1)
	}

	// Ctrl-C cancels cooperatively; in-flight conversions finish.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		fmt.Println("Cancelling...")
		ctrl.Cancel()
	}()

	<-ctrl.Done()

	summary := ctrl.Summary()
	if summary == nil {
		fmt.Fprintln(os.Stderr, "[ERROR]: run finished without a summary")
		os.Exit(1)
	}
	fmt.Printf("%s: %d succeeded, %d failed of %d files in %s\n",
		summary.State, summary.Succeeded, summary.Failed, summary.Total,
		summary.Duration.Round(time.Millisecond))
	if summary.State == runner.StateCancelled || summary.Failed > 0 {
		os.Exit(1)
	}
}
