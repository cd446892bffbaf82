// Command pdfmerge concatenates PDF files into one document, remapping
// internal links and preserving form widgets.
//
// Usage:
//
//	pdfmerge -o merged.pdf a.pdf b.pdf c.pdf
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pdfuse/pdfuse/observability"
	"github.com/pdfuse/pdfuse/optimize"
	"github.com/pdfuse/pdfuse/worker"
)

func main() {
	var (
		output      = flag.String("o", "merged.pdf", "output file")
		profileSpec = flag.String("profile", optimize.Default().String(), "compression profile")
		timeout     = flag.Duration("timeout", 30*time.Second, "per-document open timeout")
		verbose     = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: pdfmerge [-o out.pdf] input.pdf [input.pdf ...]")
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	profile, err := optimize.Parse(*profileSpec)
	if err != nil {
		log.Error("bad profile", "err", err)
		os.Exit(2)
	}

	buffers := make([][]byte, 0, flag.NArg())
	for _, name := range flag.Args() {
		data, err := os.ReadFile(name)
		if err != nil {
			log.Error("read input", "file", name, "err", err)
			os.Exit(1)
		}
		buffers = append(buffers, data)
	}

	w := worker.New(worker.Config{
		OpenTimeout: *timeout,
		Profile:     profile,
		Logger:      observability.NewSlog(log),
	})
	merged, err := w.MergeDocuments(context.Background(), buffers)
	if err != nil {
		log.Error("merge failed", "err", err)
		os.Exit(1)
	}
	for _, warning := range w.Warnings() {
		log.Warn("merge warning", "warning", warning.String())
	}
	if err := os.WriteFile(*output, merged, 0o644); err != nil {
		log.Error("write output", "file", *output, "err", err)
		os.Exit(1)
	}
	log.Info("merged", "inputs", len(buffers), "output", *output, "bytes", len(merged))
}
