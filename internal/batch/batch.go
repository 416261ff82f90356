// Package batch partitions a conversion job into fixed-size batches and
// executes them across a bounded worker pool.
package batch

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/heiftools/heifconv/internal/codec"
)

// Job is the immutable description of one conversion run.
type Job struct {
	SourceDir string
	DestDir   string
	Files     []string // ordered candidate file names, relative to SourceDir
	Format    codec.Format
	Quality   int
	Workers   int
	BatchSize int
}

// NewJob builds a Job, clamping quality to [1,100] and workers and batch
// size to a minimum of 1. Workers <= 0 selects the default worker count.
func NewJob(sourceDir, destDir string, files []string, format codec.Format, quality, workers, batchSize int) Job {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return Job{
		SourceDir: sourceDir,
		DestDir:   destDir,
		Files:     files,
		Format:    format,
		Quality:   codec.ClampQuality(quality),
		Workers:   workers,
		BatchSize: batchSize,
	}
}

// DefaultWorkers is the number of workers used when none is configured:
// available CPUs minus one, but at least 1.
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// Partition splits files into contiguous batches of at most size
// elements. The last batch may be shorter. Batching only amortizes
// scheduling overhead; it never changes per-file outcomes.
func Partition(files []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var batches [][]string
	for start := 0; start < len(files); start += size {
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[start:end])
	}
	return batches
}

// Runner executes jobs through a Converter.
type Runner struct {
	conv codec.Converter
}

func NewRunner(conv codec.Converter) *Runner {
	return &Runner{conv: conv}
}

// Run converts every file in the job, invoking onResult exactly once per
// file as soon as its conversion finishes. Results arrive in no
// particular order across workers. Cancellation via ctx is cooperative:
// it is checked between batches and between files, and an in-flight
// conversion is allowed to complete. Run returns only after every
// worker has exited.
func (r *Runner) Run(ctx context.Context, job Job, onResult func(codec.Result)) {
	batches := Partition(job.Files, job.BatchSize)
	batchCh := make(chan []string)

	var wg sync.WaitGroup
	for i := 0; i < job.Workers; i++ {
		wg.Add(1)
		go r.worker(ctx, &wg, i, job, batchCh, onResult)
	}

feed:
	for _, b := range batches {
		select {
		case batchCh <- b:
		case <-ctx.Done():
			break feed
		}
	}
	close(batchCh)
	wg.Wait()
}

func (r *Runner) worker(ctx context.Context, wg *sync.WaitGroup, id int, job Job, batchCh <-chan []string, onResult func(codec.Result)) {
	defer wg.Done()

	for batch := range batchCh {
		for _, name := range batch {
			select {
			case <-ctx.Done():
				log.Printf("conversion worker %d stopping: run cancelled", id)
				return
			default:
			}

			src := filepath.Join(job.SourceDir, name)
			dst := codec.DestPath(job.DestDir, name, job.Format)
			onResult(r.convertOne(ctx, src, dst, job))
		}
	}
}

// convertOne calls the converter for a single file. A panic escaping the
// converter contract is contained here and recorded as that file's
// failed result, so one misbehaving file never takes down the run.
func (r *Runner) convertOne(ctx context.Context, src, dst string, job Job) (res codec.Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("panic converting %s: %v", src, p)
			res = codec.Result{
				SourcePath: src,
				DestPath:   dst,
				Success:    false,
				Error:      fmt.Sprintf("internal error: panic during conversion: %v", p),
			}
		}
	}()
	return r.conv.Convert(ctx, src, dst, codec.Options{Format: job.Format, Quality: job.Quality})
}
