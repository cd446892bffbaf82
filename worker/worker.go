// Package worker is the operation surface over the merge engine: one
// operation in flight at a time, warnings from the last run retained for
// inspection.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pdfuse/pdfuse/merge"
	"github.com/pdfuse/pdfuse/observability"
	"github.com/pdfuse/pdfuse/optimize"
	"github.com/pdfuse/pdfuse/render"
)

// ErrBusy is returned when an operation is requested while another is
// still running on the same worker.
var ErrBusy = errors.New("worker: operation already in flight")

// Config controls a Worker. Zero values mean the engine defaults.
type Config struct {
	OpenTimeout time.Duration
	Profile     optimize.Profile
	Logger      observability.Logger
}

// Worker serializes document operations. Concurrent calls do not queue;
// they fail fast with ErrBusy.
type Worker struct {
	mu          sync.Mutex
	engine      *merge.Engine
	openTimeout time.Duration

	warnMu   sync.Mutex
	warnings []merge.Warning
}

func New(cfg Config) *Worker {
	timeout := cfg.OpenTimeout
	if timeout == 0 {
		timeout = merge.DefaultOpenTimeout
	}
	return &Worker{
		engine: merge.NewEngine(merge.Config{
			OpenTimeout: cfg.OpenTimeout,
			Profile:     cfg.Profile,
			Logger:      cfg.Logger,
		}),
		openTimeout: timeout,
	}
}

// MergeDocuments merges the buffers in order into one document.
func (w *Worker) MergeDocuments(ctx context.Context, buffers [][]byte) ([]byte, error) {
	if !w.mu.TryLock() {
		return nil, ErrBusy
	}
	defer w.mu.Unlock()
	w.setWarnings(nil)
	res, err := w.engine.Merge(ctx, buffers)
	if err != nil {
		return nil, err
	}
	w.setWarnings(res.Warnings)
	return res.Data, nil
}

// RotateDocument turns every page of buf a quarter turn clockwise.
func (w *Worker) RotateDocument(ctx context.Context, buf []byte) ([]byte, error) {
	if !w.mu.TryLock() {
		return nil, ErrBusy
	}
	defer w.mu.Unlock()
	w.setWarnings(nil)
	return w.engine.Rotate(ctx, buf)
}

// RenderFirstPage returns a PNG preview of page 0 as a data URI. The
// render is bounded by the open timeout; there is no separate guard
// goroutine because rendering holds no handle past its return.
func (w *Worker) RenderFirstPage(ctx context.Context, buf []byte) (string, error) {
	if !w.mu.TryLock() {
		return "", ErrBusy
	}
	defer w.mu.Unlock()
	w.setWarnings(nil)
	if w.openTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.openTimeout)
		defer cancel()
	}
	return render.FirstPage(ctx, buf)
}

// Warnings returns the diagnostics accumulated by the last completed
// operation.
func (w *Worker) Warnings() []merge.Warning {
	w.warnMu.Lock()
	defer w.warnMu.Unlock()
	out := make([]merge.Warning, len(w.warnings))
	copy(out, w.warnings)
	return out
}

func (w *Worker) setWarnings(ws []merge.Warning) {
	w.warnMu.Lock()
	w.warnings = ws
	w.warnMu.Unlock()
}
