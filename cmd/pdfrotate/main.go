// Command pdfrotate turns every page of a PDF a quarter turn clockwise.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pdfuse/pdfuse/observability"
	"github.com/pdfuse/pdfuse/worker"
)

func main() {
	var (
		output  = flag.String("o", "", "output file (default: overwrite input)")
		turns   = flag.Int("turns", 1, "number of clockwise quarter turns")
		timeout = flag.Duration("timeout", 30*time.Second, "document open timeout")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pdfrotate [-o out.pdf] [-turns n] input.pdf")
		os.Exit(2)
	}
	input := flag.Arg(0)
	if *output == "" {
		*output = input
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	data, err := os.ReadFile(input)
	if err != nil {
		log.Error("read input", "file", input, "err", err)
		os.Exit(1)
	}

	w := worker.New(worker.Config{
		OpenTimeout: *timeout,
		Logger:      observability.NewSlog(log),
	})
	for i := 0; i < ((*turns%4)+4)%4; i++ {
		data, err = w.RotateDocument(context.Background(), data)
		if err != nil {
			log.Error("rotate failed", "err", err)
			os.Exit(1)
		}
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		log.Error("write output", "file", *output, "err", err)
		os.Exit(1)
	}
	log.Info("rotated", "file", *output, "turns", *turns)
}
