// Package merge is the document merge and link-remapping engine. Pages
// from N source documents are grafted into one output, link annotations
// are reclassified and rewritten so internal destinations survive page
// renumbering, non-link annotations are carried over, and the result is
// flattened under a compression profile.
package merge

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/pdfuse/pdfuse/document"
	"github.com/pdfuse/pdfuse/extractor"
	"github.com/pdfuse/pdfuse/geo"
	"github.com/pdfuse/pdfuse/observability"
	"github.com/pdfuse/pdfuse/optimize"
	"github.com/pdfuse/pdfuse/writer"
)

// DefaultOpenTimeout bounds how long a single document open may take.
const DefaultOpenTimeout = 30 * time.Second

// Config controls an Engine. Zero values mean the defaults.
type Config struct {
	// OpenTimeout bounds each document open. Negative disables the guard.
	OpenTimeout time.Duration
	// Profile is the compression profile applied on serialization.
	Profile optimize.Profile
	// Logger receives progress and warning diagnostics.
	Logger observability.Logger
	// TrimBlankLeadingPage enables a best-effort drop of a textless,
	// annotation-free first output page. Off by default: the merged
	// output never loses a page the sources supplied.
	TrimBlankLeadingPage bool
}

// PageMapping records where one source page landed in the output.
type PageMapping struct {
	Source     int // 1-indexed input ordinal
	SourcePage int // 0-indexed page within the source
	OutputPage int // 0-indexed page within the output
}

// Result is a completed merge: the serialized output, the final
// source-to-output page mapping, and any non-fatal diagnostics.
type Result struct {
	Data     []byte
	Mapping  []PageMapping
	Warnings []Warning
}

// pendingInternalLink is an internal link held back until every page has
// its final number. Consumed exactly once during resolution.
type pendingInternalLink struct {
	source     int // 1-indexed input ordinal
	outputPage int
	rect       geo.Rect
	uri        string
	targetPage int // 1-indexed page within the source
}

// Engine runs merge and rotate operations. Not safe for concurrent use;
// callers serialize access (see the worker package).
type Engine struct {
	cfg Config
	log observability.Logger
}

func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if (cfg.Profile == optimize.Profile{}) {
		cfg.Profile = optimize.Default()
	}
	return &Engine{cfg: cfg, log: cfg.Logger}
}

// Merge grafts the pages of every source, in order, into a fresh output
// document, rewrites links, and serializes. Sources are closed as soon as
// their pages are grafted; the output is released on every exit path.
func (e *Engine) Merge(ctx context.Context, sources [][]byte) (*Result, error) {
	if len(sources) == 0 {
		return nil, ErrNoDocuments
	}
	out := document.New()
	defer out.Close()

	var (
		mapping  []PageMapping
		pending  []pendingInternalLink
		warnings []Warning
	)
	warn := func(w Warning) {
		warnings = append(warnings, w)
		e.log.Warn("merge warning",
			observability.String("kind", string(w.Kind)),
			observability.Int("document", w.Source),
			observability.Int("page", w.Page),
			observability.String("detail", w.Detail))
	}

	for i, data := range sources {
		ordinal := i + 1
		m, p, err := e.graftSource(ctx, out, data, ordinal, warn)
		if err != nil {
			return nil, err
		}
		mapping = append(mapping, m...)
		pending = append(pending, p...)
	}

	if e.cfg.TrimBlankLeadingPage {
		mapping, pending = e.trimLeadingBlank(out, mapping, pending)
	}
	e.resolveInternalLinks(out, mapping, pending, warn)

	data, err := e.serialize(ctx, out)
	if err != nil {
		return nil, err
	}
	e.log.Info("merge complete",
		observability.Int("documents", len(sources)),
		observability.Int("pages", out.PageCount()),
		observability.Int("warnings", len(warnings)))
	return &Result{Data: data, Mapping: mapping, Warnings: warnings}, nil
}

// graftSource opens one source, grafts all of its pages, records the
// mapping, collects its links, and closes it.
func (e *Engine) graftSource(ctx context.Context, out *document.Document, data []byte, ordinal int, warn func(Warning)) ([]PageMapping, []pendingInternalLink, error) {
	src, err := e.openWithTimeout(ctx, data)
	if err != nil {
		return nil, nil, &DocumentOpenError{Source: ordinal, Err: err}
	}
	defer src.Close()

	ex, err := extractor.New(src)
	if err != nil {
		return nil, nil, &DocumentOpenError{Source: ordinal, Err: err}
	}

	var (
		mapping []PageMapping
		pending []pendingInternalLink
	)
	for p := 0; p < src.PageCount(); p++ {
		outIdx, err := out.GraftPage(src, p)
		if err != nil {
			return nil, nil, &GraftError{Source: ordinal, Page: p, Err: err}
		}
		mapping = append(mapping, PageMapping{Source: ordinal, SourcePage: p, OutputPage: outIdx})

		links, err := ex.PageLinks(p)
		if err != nil {
			return nil, nil, &GraftError{Source: ordinal, Page: p, Err: err}
		}
		for _, link := range links {
			switch {
			case link.External:
				if err := out.AppendLink(outIdx, link.Rect, link.URI); err != nil {
					return nil, nil, &GraftError{Source: ordinal, Page: p, Err: err}
				}
			case link.TargetPage > 0:
				pending = append(pending, pendingInternalLink{
					source:     ordinal,
					outputPage: outIdx,
					rect:       link.Rect,
					uri:        link.URI,
					targetPage: link.TargetPage,
				})
			default:
				warn(Warning{
					Kind:   LinkResolution,
					Source: ordinal,
					Page:   p,
					Detail: fmt.Sprintf("unresolvable link destination %q", link.URI),
				})
			}
		}

		annots, err := ex.NonLinkAnnotations(p)
		if err != nil {
			return nil, nil, &GraftError{Source: ordinal, Page: p, Err: err}
		}
		for _, annot := range annots {
			if err := out.CopyAnnotation(src, annot, outIdx); err != nil {
				warn(Warning{
					Kind:   AnnotationCopy,
					Source: ordinal,
					Page:   p,
					Detail: err.Error(),
				})
			}
		}
	}
	e.log.Debug("source grafted",
		observability.Int("document", ordinal),
		observability.Int("pages", src.PageCount()))
	return mapping, pending, nil
}

// resolveInternalLinks rewrites every pending link against the final
// mapping. Runs only after all sources are grafted; each pending link is
// consumed exactly once.
func (e *Engine) resolveInternalLinks(out *document.Document, mapping []PageMapping, pending []pendingInternalLink, warn func(Warning)) {
	type key struct{ source, page int }
	index := make(map[key]int, len(mapping))
	for _, m := range mapping {
		index[key{m.Source, m.SourcePage}] = m.OutputPage
	}
	for _, link := range pending {
		target, ok := index[key{link.source, link.targetPage - 1}]
		if !ok {
			warn(Warning{
				Kind:   LinkResolution,
				Source: link.source,
				Page:   link.outputPage,
				Detail: fmt.Sprintf("target page %d not present in output", link.targetPage),
			})
			continue
		}
		uri := extractor.RewriteFragmentPage(link.uri, target+1)
		if err := out.AppendLink(link.outputPage, link.rect, uri); err != nil {
			warn(Warning{
				Kind:   LinkResolution,
				Source: link.source,
				Page:   link.outputPage,
				Detail: err.Error(),
			})
		}
	}
}

// trimLeadingBlank drops an empty first output page: no extracted text,
// no annotations, no XObjects. Runs before link resolution so rewritten
// fragments use the final page numbers. Best-effort: any inspection
// failure keeps the page.
func (e *Engine) trimLeadingBlank(out *document.Document, mapping []PageMapping, pending []pendingInternalLink) ([]PageMapping, []pendingInternalLink) {
	if out.PageCount() < 2 {
		return mapping, pending
	}
	ex, err := extractor.New(out)
	if err != nil {
		return mapping, pending
	}
	text, err := ex.PageText(0)
	if err != nil || text != "" {
		return mapping, pending
	}
	if has, err := ex.HasAnnotations(0); err != nil || has {
		return mapping, pending
	}
	if has, err := ex.PageHasGraphics(0); err != nil || has {
		return mapping, pending
	}
	if err := out.RemovePage(0); err != nil {
		return mapping, pending
	}
	e.log.Debug("dropped blank leading page")

	trimmedMapping := mapping[:0]
	for _, m := range mapping {
		if m.OutputPage == 0 {
			continue
		}
		m.OutputPage--
		trimmedMapping = append(trimmedMapping, m)
	}
	trimmedPending := pending[:0]
	for _, p := range pending {
		if p.outputPage == 0 {
			// The link's host page is gone; nothing to rewrite.
			continue
		}
		p.outputPage--
		trimmedPending = append(trimmedPending, p)
	}
	return trimmedMapping, trimmedPending
}

// Rotate applies one clockwise quarter turn to every page's orientation
// metadata and reserializes. Content, annotations and page count are
// untouched.
func (e *Engine) Rotate(ctx context.Context, data []byte) ([]byte, error) {
	doc, err := e.openWithTimeout(ctx, data)
	if err != nil {
		return nil, &DocumentOpenError{Source: 1, Err: err}
	}
	defer doc.Close()
	if err := doc.RotatePages(1); err != nil {
		return nil, err
	}
	return e.serialize(ctx, doc)
}

func (e *Engine) serialize(ctx context.Context, doc *document.Document) ([]byte, error) {
	opt := optimize.New(e.cfg.Profile)
	if err := opt.Apply(ctx, doc.Raw()); err != nil {
		return nil, &SerializationError{Err: err}
	}
	var buf bytes.Buffer
	w := writer.NewWriter()
	if err := w.Write(ctx, doc.Raw(), &buf, writer.Config{Garbage: e.cfg.Profile.Garbage}); err != nil {
		return nil, &SerializationError{Err: err}
	}
	return buf.Bytes(), nil
}

// openWithTimeout opens a buffer under the configured deadline. On
// timeout or cancellation the late handle is closed by the guard
// goroutine and never escapes.
func (e *Engine) openWithTimeout(ctx context.Context, data []byte) (*document.Document, error) {
	if e.cfg.OpenTimeout < 0 {
		return document.Open(ctx, data)
	}
	type opened struct {
		doc *document.Document
		err error
	}
	ch := make(chan opened, 1)
	go func() {
		doc, err := document.Open(ctx, data)
		ch <- opened{doc: doc, err: err}
	}()

	timer := time.NewTimer(e.cfg.OpenTimeout)
	defer timer.Stop()
	reap := func() {
		if r := <-ch; r.doc != nil {
			r.doc.Close()
		}
	}
	select {
	case r := <-ch:
		return r.doc, r.err
	case <-timer.C:
		go reap()
		return nil, ErrTimeout
	case <-ctx.Done():
		go reap()
		return nil, ctx.Err()
	}
}
