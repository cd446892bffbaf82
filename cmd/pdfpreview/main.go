// Command pdfpreview renders the first page of a PDF to a PNG preview.
// By default it prints the image as a data URI; with -o it writes the
// decoded PNG to a file.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pdfuse/pdfuse/observability"
	"github.com/pdfuse/pdfuse/worker"
)

const dataURIPrefix = "data:image/png;base64,"

func main() {
	var (
		output  = flag.String("o", "", "write decoded PNG to this file instead of printing the data URI")
		timeout = flag.Duration("timeout", 30*time.Second, "document open timeout")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pdfpreview [-o out.png] input.pdf")
		os.Exit(2)
	}
	input := flag.Arg(0)

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
	uri, err := w.RenderFirstPage(context.Background(), data)
	if err != nil {
		log.Error("render failed", "err", err)
		os.Exit(1)
	}

	if *output == "" {
		fmt.Println(uri)
		return
	}
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, dataURIPrefix))
	if err != nil {
		log.Error("decode preview", "err", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, png, 0o644); err != nil {
		log.Error("write output", "file", *output, "err", err)
		os.Exit(1)
	}
	log.Info("preview written", "file", *output, "bytes", len(png))
}
