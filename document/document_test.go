package document

import (
	"bytes"
	"context"
	"testing"

	"github.com/pdfuse/pdfuse/builder"
	"github.com/pdfuse/pdfuse/geo"
	"github.com/pdfuse/pdfuse/ir/raw"
	"github.com/pdfuse/pdfuse/writer"
)

func buildDoc(t *testing.T, pages int) []byte {
	t.Helper()
	b := builder.NewBuilder()
	for i := 0; i < pages; i++ {
		b.NewPage(612, 792).
			DrawText("page", 72, 700, builder.TextOptions{}).
			Finish()
	}
	data, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return data
}

func open(t *testing.T, data []byte) *Document {
	t.Helper()
	doc, err := Open(context.Background(), data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return doc
}

func TestOpenCountsPages(t *testing.T) {
	doc := open(t, buildDoc(t, 3))
	defer doc.Close()
	if got := doc.PageCount(); got != 3 {
		t.Errorf("PageCount = %d, want 3", got)
	}
	page, err := doc.Page(0)
	if err != nil {
		t.Fatalf("Page(0): %v", err)
	}
	want := geo.Rect{URX: 612, URY: 792}
	if page.MediaBox != want {
		t.Errorf("MediaBox = %v, want %v", page.MediaBox, want)
	}
}

func TestCloseIsIdempotentAndFinal(t *testing.T) {
	doc := open(t, buildDoc(t, 1))
	doc.Close()
	doc.Close()
	if !doc.Closed() {
		t.Error("Closed() = false after Close")
	}
	if _, err := doc.Page(0); err != ErrClosed {
		t.Errorf("Page after Close = %v, want ErrClosed", err)
	}
}

// serializeTree writes a handcrafted page tree so inheritance can be
// exercised; the builder always writes page-level attributes.
func inheritanceDoc(t *testing.T) []byte {
	t.Helper()
	doc := raw.NewDocument()

	kid := raw.Dict()
	kid.Set("Type", raw.Name("Page"))
	kidRef := doc.Add(kid)

	pages := raw.Dict()
	pages.Set("Type", raw.Name("Pages"))
	pages.Set("Kids", raw.NewArray(raw.Ref(kidRef.Num, kidRef.Gen)))
	pages.Set("Count", raw.Int(1))
	pages.Set("MediaBox", raw.RectArray(geo.Rect{URX: 400, URY: 500}))
	pages.Set("Rotate", raw.Int(90))
	pagesRef := doc.Add(pages)
	kid.Set("Parent", raw.Ref(pagesRef.Num, pagesRef.Gen))

	catalog := raw.Dict()
	catalog.Set("Type", raw.Name("Catalog"))
	catalog.Set("Pages", raw.Ref(pagesRef.Num, pagesRef.Gen))
	catalogRef := doc.Add(catalog)
	doc.Trailer.Set("Root", raw.Ref(catalogRef.Num, catalogRef.Gen))

	var buf bytes.Buffer
	if err := writer.NewWriter().Write(context.Background(), doc, &buf, writer.Config{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.Bytes()
}

func TestPageAttributeInheritance(t *testing.T) {
	doc := open(t, inheritanceDoc(t))
	defer doc.Close()
	page, err := doc.Page(0)
	if err != nil {
		t.Fatalf("Page(0): %v", err)
	}
	if page.MediaBox != (geo.Rect{URX: 400, URY: 500}) {
		t.Errorf("inherited MediaBox = %v, want 400x500", page.MediaBox)
	}
	if page.Rotate != 90 {
		t.Errorf("inherited Rotate = %d, want 90", page.Rotate)
	}
}

func TestGraftPagePreservesDimensions(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(300, 400).Finish()
	narrow, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	src := open(t, narrow)
	defer src.Close()

	out := New()
	defer out.Close()
	idx, err := out.GraftPage(src, 0)
	if err != nil {
		t.Fatalf("GraftPage: %v", err)
	}
	if idx != 0 {
		t.Errorf("grafted index = %d, want 0", idx)
	}
	page, err := out.Page(0)
	if err != nil {
		t.Fatalf("Page(0): %v", err)
	}
	if page.MediaBox.Width() != 300 || page.MediaBox.Height() != 400 {
		t.Errorf("grafted MediaBox = %v, want 300x400", page.MediaBox)
	}
}

func TestGraftInlinesInheritedAttributes(t *testing.T) {
	src := open(t, inheritanceDoc(t))
	defer src.Close()
	out := New()
	defer out.Close()
	if _, err := out.GraftPage(src, 0); err != nil {
		t.Fatalf("GraftPage: %v", err)
	}
	page, _ := out.Page(0)
	if _, ok := page.Dict.Get("MediaBox"); !ok {
		t.Error("inherited MediaBox not inlined on grafted page")
	}
	if rot, _ := out.Raw().GetInt(page.Dict, "Rotate"); rot != 90 {
		t.Errorf("inlined Rotate = %d, want 90", rot)
	}
}

func TestGraftStripsAnnots(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(612, 792).
		AddExternalLink(geo.Rect{LLX: 10, LLY: 10, URX: 100, URY: 30}, "https://example.com").
		Finish()
	data, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	src := open(t, data)
	defer src.Close()
	out := New()
	defer out.Close()
	if _, err := out.GraftPage(src, 0); err != nil {
		t.Fatalf("GraftPage: %v", err)
	}
	page, _ := out.Page(0)
	if _, ok := page.Dict.Get("Annots"); ok {
		t.Error("grafted page kept /Annots; annotation transfer is explicit")
	}
}

func TestAppendLinkAndAnnotations(t *testing.T) {
	out := New()
	defer out.Close()
	src := open(t, buildDoc(t, 1))
	defer src.Close()
	if _, err := out.GraftPage(src, 0); err != nil {
		t.Fatalf("GraftPage: %v", err)
	}
	rect := geo.Rect{LLX: 10, LLY: 10, URX: 200, URY: 40}
	if err := out.AppendLink(0, rect, "https://example.com/a"); err != nil {
		t.Fatalf("AppendLink: %v", err)
	}
	annots, err := out.PageAnnotations(0)
	if err != nil {
		t.Fatalf("PageAnnotations: %v", err)
	}
	if len(annots) != 1 {
		t.Fatalf("annotation count = %d, want 1", len(annots))
	}
	dict, ok := out.Raw().Resolve(annots[0]).(*raw.DictObj)
	if !ok {
		t.Fatal("annotation is not a dict")
	}
	if subtype, _ := out.Raw().GetName(dict, "Subtype"); subtype != "Link" {
		t.Errorf("Subtype = %q, want Link", subtype)
	}
}

func TestCopyAnnotationKeepsFieldGraph(t *testing.T) {
	b := builder.NewBuilder()
	b.NewPage(612, 792).
		AddTextWidget("name", geo.Rect{LLX: 50, LLY: 600, URX: 250, URY: 630}).
		Finish()
	data, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	src := open(t, data)
	defer src.Close()
	out := New()
	defer out.Close()
	if _, err := out.GraftPage(src, 0); err != nil {
		t.Fatalf("GraftPage: %v", err)
	}
	annots, _ := src.PageAnnotations(0)
	if len(annots) != 1 {
		t.Fatalf("source widget count = %d, want 1", len(annots))
	}
	if err := out.CopyAnnotation(src, annots[0], 0); err != nil {
		t.Fatalf("CopyAnnotation: %v", err)
	}
	copied, _ := out.PageAnnotations(0)
	if len(copied) != 1 {
		t.Fatalf("copied annotation count = %d, want 1", len(copied))
	}
	dict, _ := out.Raw().Resolve(copied[0]).(*raw.DictObj)
	if ft, _ := out.Raw().GetName(dict, "FT"); ft != "Tx" {
		t.Errorf("copied widget FT = %q, want Tx", ft)
	}
	if s, ok := out.Raw().GetString(dict, "T"); !ok || string(s) != "name" {
		t.Errorf("copied widget name = %q, want name", s)
	}
	if _, ok := dict.Get("P"); ok {
		t.Error("stale page back-reference survived the copy")
	}

	root, _ := out.Raw().GetDict(out.Raw().Trailer, "Root")
	acro, ok := out.Raw().GetDict(root, "AcroForm")
	if !ok {
		t.Fatal("copied widget not registered in AcroForm")
	}
	fields, _ := out.Raw().GetArray(acro, "Fields")
	if fields == nil || fields.Len() != 1 {
		t.Errorf("AcroForm Fields = %v, want one entry", fields)
	}
}

func TestRotatePages(t *testing.T) {
	doc := open(t, buildDoc(t, 2))
	defer doc.Close()
	if err := doc.RotatePages(1); err != nil {
		t.Fatalf("RotatePages: %v", err)
	}
	for i := 0; i < doc.PageCount(); i++ {
		page, _ := doc.Page(i)
		if page.Rotate != 90 {
			t.Errorf("page %d Rotate = %d, want 90", i, page.Rotate)
		}
	}
	// Three more turns wrap back to zero.
	for i := 0; i < 3; i++ {
		if err := doc.RotatePages(1); err != nil {
			t.Fatalf("RotatePages: %v", err)
		}
	}
	page, _ := doc.Page(0)
	if page.Rotate != 0 {
		t.Errorf("Rotate after full cycle = %d, want 0", page.Rotate)
	}
}

func TestRemovePage(t *testing.T) {
	out := New()
	defer out.Close()
	src := open(t, buildDoc(t, 3))
	defer src.Close()
	for i := 0; i < 3; i++ {
		if _, err := out.GraftPage(src, i); err != nil {
			t.Fatalf("GraftPage(%d): %v", i, err)
		}
	}
	if err := out.RemovePage(0); err != nil {
		t.Fatalf("RemovePage: %v", err)
	}
	if got := out.PageCount(); got != 2 {
		t.Errorf("PageCount after removal = %d, want 2", got)
	}
	pagesDict, _ := out.Raw().GetDict(out.Raw().Trailer, "Root")
	tree, _ := out.Raw().GetDict(pagesDict, "Pages")
	if count, _ := out.Raw().GetInt(tree, "Count"); count != 2 {
		t.Errorf("tree Count = %d, want 2", count)
	}
}
