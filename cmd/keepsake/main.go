package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"keepsake/internal/core"

	"golang.org/x/sync/errgroup"
)

const (
	chunkThreshold = 50 * 1024 * 1024 // files above this take the chunked path
	batchWidth     = 3                // small files per upload request
	maxInFlight    = 2                // concurrent batch requests
)

func main() {
	server := flag.String("server", "http://localhost:8080", "keepsake server URL")
	flag.Parse()

	paths, err := core.ParseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Usage: keepsake [-server URL] <files or directories>\n")
		os.Exit(1)
	}

	// Ctrl-C aborts in-flight transfers; the server sweeps the leftovers.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workDir, err := os.MkdirTemp("", "keepsake-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(workDir)

	// Phase 1: pre-process (HEIC conversion, oversized video re-encode).
	// Failures fall back to the original file and are reported at the end.
	pre := core.NewPreprocessor(workDir)
	results := make([]core.Result, 0, len(paths))
	var warnings []error

	for i, p := range paths {
		fmt.Printf("\r[%3.0f%%] Processing %s", core.PhaseProgress(true, i, len(paths)), p)
		r := pre.Process(ctx, p)
		if r.Warning != nil {
			warnings = append(warnings, r.Warning)
		}
		results = append(results, r)
	}
	fmt.Printf("\r[ 50%%] Processed %d file(s)              \n", len(results))

	plan, err := core.BuildPlan(results, chunkThreshold, batchWidth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Phase 2: transfer. Small files go in fixed-width batches with bounded
	// concurrency; large files take the chunked path one at a time.
	client := core.NewClient(*server)
	total := plan.FileCount()
	var mu sync.Mutex
	uploaded := 0

	report := func(n int) {
		mu.Lock()
		uploaded += n
		fmt.Printf("\r[%3.0f%%] Uploading %d/%d file(s)", core.PhaseProgress(false, uploaded, total), uploaded, total)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for _, batch := range plan.Batches {
		batch := batch
		g.Go(func() error {
			if err := client.UploadBatch(gctx, batch); err != nil {
				return err
			}
			report(len(batch))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}

	for _, f := range plan.Chunked {
		err := client.UploadChunked(ctx, f, func(sent, chunks int) {
			fmt.Printf("\r[%3.0f%%] Uploading %s (chunk %d/%d)",
				core.PhaseProgress(false, uploaded, total), f.Name, sent, chunks)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
			os.Exit(1)
		}
		report(1)
	}

	fmt.Printf("\r[100%%] Uploaded %d file(s)              \n", total)

	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %v (original file was uploaded instead)\n", w)
	}
}
