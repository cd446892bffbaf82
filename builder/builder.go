// Package builder provides a fluent API for constructing PDF documents:
// pages with text and simple graphics, link annotations and text form
// widgets. The CLI demo generator and the test suites build their inputs
// with it.
package builder

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfuse/pdfuse/geo"
	"github.com/pdfuse/pdfuse/ir/raw"
	"github.com/pdfuse/pdfuse/writer"
)

// Builder accumulates pages and produces a serialized document.
type Builder struct {
	pages []*PageBuilder
	info  map[string]string
}

func NewBuilder() *Builder { return &Builder{} }

// SetInfo records a document information entry (Title, Author, ...).
func (b *Builder) SetInfo(key, value string) *Builder {
	if b.info == nil {
		b.info = make(map[string]string)
	}
	b.info[key] = value
	return b
}

// NewPage starts a page of the given size in points.
func (b *Builder) NewPage(width, height float64) *PageBuilder {
	p := &PageBuilder{
		builder: b,
		width:   width,
		height:  height,
	}
	b.pages = append(b.pages, p)
	return p
}

// TextOptions configures text drawing.
type TextOptions struct {
	FontSize float64
}

// RectOptions configures rectangle drawing (stroke by default).
type RectOptions struct {
	Fill      bool
	LineWidth float64
}

// PageBuilder accumulates one page's content and annotations.
type PageBuilder struct {
	builder *Builder
	width   float64
	height  float64
	rotate  int
	content bytes.Buffer
	annots  []annotSpec
}

type annotSpec struct {
	rect  geo.Rect
	uri   string // link target; empty for widgets
	field string // widget field name; empty for links
}

// DrawText shows text at (x, y) in the page's base font.
func (p *PageBuilder) DrawText(text string, x, y float64, opts TextOptions) *PageBuilder {
	size := opts.FontSize
	if size <= 0 {
		size = 12
	}
	fmt.Fprintf(&p.content, "BT /F1 %g Tf %g %g Td (%s) Tj ET\n", size, x, y, escapeText(text))
	return p
}

// DrawRectangle strokes or fills an axis-aligned rectangle.
func (p *PageBuilder) DrawRectangle(x, y, width, height float64, opts RectOptions) *PageBuilder {
	lw := opts.LineWidth
	if lw <= 0 {
		lw = 1
	}
	op := "S"
	if opts.Fill {
		op = "f"
	}
	fmt.Fprintf(&p.content, "%g w %g %g %g %g re %s\n", lw, x, y, width, height, op)
	return p
}

// AddExternalLink places a link annotation targeting an absolute URI.
func (p *PageBuilder) AddExternalLink(rect geo.Rect, uri string) *PageBuilder {
	p.annots = append(p.annots, annotSpec{rect: rect, uri: uri})
	return p
}

// AddInternalLink places a link annotation targeting a page of this
// document, 1-indexed, encoded as a page fragment.
func (p *PageBuilder) AddInternalLink(rect geo.Rect, pageNumber int) *PageBuilder {
	p.annots = append(p.annots, annotSpec{rect: rect, uri: fmt.Sprintf("#page=%d", pageNumber)})
	return p
}

// AddTextWidget places an empty text form field.
func (p *PageBuilder) AddTextWidget(name string, rect geo.Rect) *PageBuilder {
	p.annots = append(p.annots, annotSpec{rect: rect, field: name})
	return p
}

// SetRotation sets the page's display rotation in degrees.
func (p *PageBuilder) SetRotation(degrees int) *PageBuilder {
	p.rotate = degrees
	return p
}

// Finish returns to the document builder.
func (p *PageBuilder) Finish() *Builder { return p.builder }

// Build assembles and serializes the document.
func (b *Builder) Build(ctx context.Context) ([]byte, error) {
	if len(b.pages) == 0 {
		return nil, fmt.Errorf("builder: no pages")
	}
	doc := raw.NewDocument()

	font := raw.Dict()
	font.Set("Type", raw.Name("Font"))
	font.Set("Subtype", raw.Name("Type1"))
	font.Set("BaseFont", raw.Name("Helvetica"))
	fontRef := doc.Add(font)

	pagesDict := raw.Dict()
	pagesRef := doc.Add(pagesDict)

	var fieldRefs []raw.Object
	kids := raw.NewArray()
	for _, p := range b.pages {
		contentStream := raw.NewStream(raw.Dict(), append([]byte(nil), p.content.Bytes()...))
		contentRef := doc.Add(contentStream)

		resources := raw.Dict()
		fontRes := raw.Dict()
		fontRes.Set("F1", raw.Ref(fontRef.Num, fontRef.Gen))
		resources.Set("Font", fontRes)

		pageDict := raw.Dict()
		pageDict.Set("Type", raw.Name("Page"))
		pageDict.Set("Parent", raw.Ref(pagesRef.Num, pagesRef.Gen))
		pageDict.Set("MediaBox", raw.RectArray(geo.Rect{URX: p.width, URY: p.height}))
		pageDict.Set("Resources", resources)
		pageDict.Set("Contents", raw.Ref(contentRef.Num, contentRef.Gen))
		if p.rotate != 0 {
			pageDict.Set("Rotate", raw.Int(int64(p.rotate)))
		}
		pageRef := doc.Add(pageDict)

		if len(p.annots) > 0 {
			annots := raw.NewArray()
			for _, spec := range p.annots {
				ref := buildAnnot(doc, spec, pageRef)
				annots.Append(raw.Ref(ref.Num, ref.Gen))
				if spec.field != "" {
					fieldRefs = append(fieldRefs, raw.Ref(ref.Num, ref.Gen))
				}
			}
			pageDict.Set("Annots", annots)
		}
		kids.Append(raw.Ref(pageRef.Num, pageRef.Gen))
	}
	pagesDict.Set("Type", raw.Name("Pages"))
	pagesDict.Set("Kids", kids)
	pagesDict.Set("Count", raw.Int(int64(len(b.pages))))

	catalog := raw.Dict()
	catalog.Set("Type", raw.Name("Catalog"))
	catalog.Set("Pages", raw.Ref(pagesRef.Num, pagesRef.Gen))
	if len(fieldRefs) > 0 {
		acroForm := raw.Dict()
		acroForm.Set("Fields", raw.NewArray(fieldRefs...))
		acroForm.Set("NeedAppearances", raw.Bool(true))
		catalog.Set("AcroForm", acroForm)
	}
	catalogRef := doc.Add(catalog)
	doc.Trailer.Set("Root", raw.Ref(catalogRef.Num, catalogRef.Gen))

	if len(b.info) > 0 {
		info := raw.Dict()
		for k, v := range b.info {
			info.Set(k, raw.Str([]byte(v)))
		}
		infoRef := doc.Add(info)
		doc.Trailer.Set("Info", raw.Ref(infoRef.Num, infoRef.Gen))
	}

	var buf bytes.Buffer
	w := writer.NewWriter()
	if err := w.Write(ctx, doc, &buf, writer.Config{}); err != nil {
		return nil, fmt.Errorf("builder: %w", err)
	}
	return buf.Bytes(), nil
}

func buildAnnot(doc *raw.Document, spec annotSpec, pageRef raw.ObjectRef) raw.ObjectRef {
	annot := raw.Dict()
	annot.Set("Type", raw.Name("Annot"))
	annot.Set("Rect", raw.RectArray(spec.rect))
	annot.Set("P", raw.Ref(pageRef.Num, pageRef.Gen))
	if spec.field != "" {
		annot.Set("Subtype", raw.Name("Widget"))
		annot.Set("FT", raw.Name("Tx"))
		annot.Set("T", raw.Str([]byte(spec.field)))
		annot.Set("V", raw.Str(nil))
		annot.Set("F", raw.Int(4))
		annot.Set("DA", raw.Str([]byte("/Helv 0 Tf 0 g")))
	} else {
		annot.Set("Subtype", raw.Name("Link"))
		annot.Set("Border", raw.NewArray(raw.Int(0), raw.Int(0), raw.Int(0)))
		action := raw.Dict()
		action.Set("Type", raw.Name("Action"))
		action.Set("S", raw.Name("URI"))
		action.Set("URI", raw.Str([]byte(spec.uri)))
		annot.Set("A", action)
	}
	return doc.Add(annot)
}

func escapeText(s string) string {
	var out bytes.Buffer
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', ')', '\\':
			out.WriteByte('\\')
		}
		out.WriteByte(s[i])
	}
	return out.String()
}
