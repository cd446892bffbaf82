package merge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pdfuse/pdfuse/builder"
	"github.com/pdfuse/pdfuse/document"
	"github.com/pdfuse/pdfuse/extractor"
	"github.com/pdfuse/pdfuse/geo"
	"github.com/pdfuse/pdfuse/ir/raw"
)

var linkRect = geo.Rect{LLX: 72, LLY: 100, URX: 300, URY: 120}

func docWithPages(t *testing.T, label string, pages int) []byte {
	t.Helper()
	b := builder.NewBuilder()
	for i := 1; i <= pages; i++ {
		b.NewPage(612, 792).
			DrawText(fmt.Sprintf("%s page %d", label, i), 72, 700, builder.TextOptions{}).
			Finish()
	}
	data, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build %s: %v", label, err)
	}
	return data
}

func build(t *testing.T, b *builder.Builder) []byte {
	t.Helper()
	data, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return data
}

func openOutput(t *testing.T, data []byte) (*document.Document, *extractor.Extractor) {
	t.Helper()
	doc, err := document.Open(context.Background(), data)
	if err != nil {
		t.Fatalf("open merged output: %v", err)
	}
	t.Cleanup(doc.Close)
	ex, err := extractor.New(doc)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	return doc, ex
}

func TestMergeRejectsEmptyInput(t *testing.T) {
	_, err := NewEngine(Config{}).Merge(context.Background(), nil)
	if !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("Merge(nil) = %v, want ErrNoDocuments", err)
	}
}

func TestMergePageCountAdditivityAndOrder(t *testing.T) {
	a := docWithPages(t, "A", 3)
	b := docWithPages(t, "B", 4)
	res, err := NewEngine(Config{}).Merge(context.Background(), [][]byte{a, b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	doc, ex := openOutput(t, res.Data)
	if doc.PageCount() != 7 {
		t.Fatalf("PageCount = %d, want 7", doc.PageCount())
	}
	wantTexts := []string{
		"A page 1", "A page 2", "A page 3",
		"B page 1", "B page 2", "B page 3", "B page 4",
	}
	for i, want := range wantTexts {
		text, err := ex.PageText(i)
		if err != nil {
			t.Fatalf("PageText(%d): %v", i, err)
		}
		if text != want {
			t.Errorf("page %d text = %q, want %q", i, text, want)
		}
	}
}

func TestMergeMappingIsContiguousAndUnique(t *testing.T) {
	a := docWithPages(t, "A", 2)
	b := docWithPages(t, "B", 3)
	res, err := NewEngine(Config{}).Merge(context.Background(), [][]byte{a, b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(res.Mapping) != 5 {
		t.Fatalf("mapping length = %d, want 5", len(res.Mapping))
	}
	seen := make(map[int]bool)
	for i, m := range res.Mapping {
		if m.OutputPage != i {
			t.Errorf("mapping[%d].OutputPage = %d, want %d", i, m.OutputPage, i)
		}
		if seen[m.OutputPage] {
			t.Errorf("output page %d mapped twice", m.OutputPage)
		}
		seen[m.OutputPage] = true
	}
	if res.Mapping[0].Source != 1 || res.Mapping[2].Source != 2 {
		t.Errorf("source ordinals wrong: %+v", res.Mapping)
	}
}

func TestMergeRemapsInternalLinks(t *testing.T) {
	a := docWithPages(t, "A", 3)
	bb := builder.NewBuilder()
	bb.NewPage(612, 792).
		DrawText("B page 1", 72, 700, builder.TextOptions{}).
		AddInternalLink(linkRect, 3).
		Finish()
	for i := 2; i <= 4; i++ {
		bb.NewPage(612, 792).
			DrawText(fmt.Sprintf("B page %d", i), 72, 700, builder.TextOptions{}).
			Finish()
	}
	b := build(t, bb)

	res, err := NewEngine(Config{}).Merge(context.Background(), [][]byte{a, b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	doc, ex := openOutput(t, res.Data)

	// B's page 1 landed on output page 4 (index 3); its link to B page 3
	// must now point at output page 6.
	links, err := ex.PageLinks(3)
	if err != nil {
		t.Fatalf("PageLinks: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("link count on output page 4 = %d, want 1", len(links))
	}
	if links[0].URI != "#page=6" || links[0].TargetPage != 6 {
		t.Errorf("remapped link = %+v, want #page=6", links[0])
	}
	if links[0].TargetPage > doc.PageCount() {
		t.Error("internal link escapes the document")
	}
}

func TestMergeInternalLinksStayValid(t *testing.T) {
	bb := builder.NewBuilder()
	bb.NewPage(612, 792).
		DrawText("one", 72, 700, builder.TextOptions{}).
		AddInternalLink(linkRect, 2).
		Finish().
		NewPage(612, 792).
		DrawText("two", 72, 700, builder.TextOptions{}).
		AddInternalLink(linkRect, 1).
		Finish()
	a := build(t, bb)

	res, err := NewEngine(Config{}).Merge(context.Background(), [][]byte{a, a, a})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	doc, ex := openOutput(t, res.Data)
	for i := 0; i < doc.PageCount(); i++ {
		links, err := ex.PageLinks(i)
		if err != nil {
			t.Fatalf("PageLinks(%d): %v", i, err)
		}
		for _, link := range links {
			if link.External {
				continue
			}
			if link.TargetPage < 1 || link.TargetPage > doc.PageCount() {
				t.Errorf("page %d: link target %d out of range", i, link.TargetPage)
			}
		}
	}
	// Each copy's links stay within that copy: page 1 of copy 2 (output
	// index 2) points at output page 4, not back into copy 1.
	links, _ := ex.PageLinks(2)
	if len(links) != 1 || links[0].TargetPage != 4 {
		t.Errorf("copy 2 first-page link = %+v, want target 4", links)
	}
}

func TestMergeConservesExternalLinks(t *testing.T) {
	bb := builder.NewBuilder()
	bb.NewPage(612, 792).
		DrawText("x", 72, 700, builder.TextOptions{}).
		AddExternalLink(linkRect, "https://example.com/a").
		AddExternalLink(linkRect, "mailto:team@example.com").
		Finish()
	a := build(t, bb)
	b := docWithPages(t, "B", 1)

	res, err := NewEngine(Config{}).Merge(context.Background(), [][]byte{a, b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	_, ex := openOutput(t, res.Data)
	links, err := ex.PageLinks(0)
	if err != nil {
		t.Fatalf("PageLinks: %v", err)
	}
	uris := make(map[string]bool)
	for _, link := range links {
		if !link.External {
			t.Errorf("link %+v should be external", link)
		}
		uris[link.URI] = true
	}
	if len(links) != 2 || !uris["https://example.com/a"] || !uris["mailto:team@example.com"] {
		t.Errorf("external links = %v", links)
	}
}

func TestMergeConservesWidgets(t *testing.T) {
	bb := builder.NewBuilder()
	bb.NewPage(612, 792).DrawText("x", 72, 700, builder.TextOptions{}).Finish().
		NewPage(612, 792).
		DrawText("y", 72, 700, builder.TextOptions{}).
		AddTextWidget("applicant-name", linkRect).
		Finish()
	a := build(t, bb)

	res, err := NewEngine(Config{}).Merge(context.Background(), [][]byte{docWithPages(t, "C", 2), a})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	doc, ex := openOutput(t, res.Data)
	widgets, err := ex.NonLinkAnnotations(3)
	if err != nil {
		t.Fatalf("NonLinkAnnotations: %v", err)
	}
	if len(widgets) != 1 {
		t.Fatalf("widget count on output page 4 = %d, want 1", len(widgets))
	}
	dict, ok := doc.Raw().Resolve(widgets[0]).(*raw.DictObj)
	if !ok {
		t.Fatal("widget did not survive as a dictionary")
	}
	if name, ok := doc.Raw().GetString(dict, "T"); !ok || string(name) != "applicant-name" {
		t.Errorf("widget field name = %q, want applicant-name", name)
	}
}

func TestMergePreservesDimensionsAndRotation(t *testing.T) {
	bb := builder.NewBuilder()
	bb.NewPage(300, 400).DrawText("small", 20, 40, builder.TextOptions{}).Finish().
		NewPage(841.89, 595.28).
		DrawText("a4 landscape", 20, 40, builder.TextOptions{}).
		SetRotation(270).
		Finish()
	a := build(t, bb)

	res, err := NewEngine(Config{}).Merge(context.Background(), [][]byte{a})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	doc, _ := openOutput(t, res.Data)
	first, _ := doc.Page(0)
	if first.MediaBox.Width() != 300 || first.MediaBox.Height() != 400 {
		t.Errorf("page 0 box = %v, want 300x400", first.MediaBox)
	}
	second, _ := doc.Page(1)
	if second.Rotate != 270 {
		t.Errorf("page 1 rotate = %d, want 270", second.Rotate)
	}
	if second.MediaBox.Width() != 841.89 {
		t.Errorf("page 1 width = %v, want 841.89", second.MediaBox.Width())
	}
}

func TestMergeOrderMatters(t *testing.T) {
	a := docWithPages(t, "A", 1)
	b := docWithPages(t, "B", 1)
	engine := NewEngine(Config{})

	ab, err := engine.Merge(context.Background(), [][]byte{a, b})
	if err != nil {
		t.Fatalf("Merge [A,B]: %v", err)
	}
	ba, err := engine.Merge(context.Background(), [][]byte{b, a})
	if err != nil {
		t.Fatalf("Merge [B,A]: %v", err)
	}
	_, exAB := openOutput(t, ab.Data)
	_, exBA := openOutput(t, ba.Data)
	abText, _ := exAB.PageText(0)
	baText, _ := exBA.PageText(0)
	if abText != "A page 1" || baText != "B page 1" {
		t.Errorf("first pages = %q / %q, want A page 1 / B page 1", abText, baText)
	}
}

func TestRotateThenMergeCommutesOnGeometry(t *testing.T) {
	a := docWithPages(t, "A", 2)
	b := docWithPages(t, "B", 1)
	engine := NewEngine(Config{})

	rotA, err := engine.Rotate(context.Background(), a)
	if err != nil {
		t.Fatalf("Rotate A: %v", err)
	}
	rotB, err := engine.Rotate(context.Background(), b)
	if err != nil {
		t.Fatalf("Rotate B: %v", err)
	}
	mergedRot, err := engine.Merge(context.Background(), [][]byte{rotA, rotB})
	if err != nil {
		t.Fatalf("Merge rotated: %v", err)
	}

	merged, err := engine.Merge(context.Background(), [][]byte{a, b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	rotMerged, err := engine.Rotate(context.Background(), merged.Data)
	if err != nil {
		t.Fatalf("Rotate merged: %v", err)
	}

	docA, _ := openOutput(t, mergedRot.Data)
	docB, _ := openOutput(t, rotMerged)
	if docA.PageCount() != docB.PageCount() {
		t.Fatalf("page counts differ: %d vs %d", docA.PageCount(), docB.PageCount())
	}
	for i := 0; i < docA.PageCount(); i++ {
		pa, _ := docA.Page(i)
		pb, _ := docB.Page(i)
		if pa.Rotate != pb.Rotate {
			t.Errorf("page %d rotate: %d vs %d", i, pa.Rotate, pb.Rotate)
		}
		if pa.MediaBox != pb.MediaBox {
			t.Errorf("page %d box: %v vs %v", i, pa.MediaBox, pb.MediaBox)
		}
	}
}

func TestRotateSetsQuarterTurn(t *testing.T) {
	a := docWithPages(t, "A", 2)
	engine := NewEngine(Config{})
	rotated, err := engine.Rotate(context.Background(), a)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	doc, _ := openOutput(t, rotated)
	if doc.PageCount() != 2 {
		t.Fatalf("rotation changed page count: %d", doc.PageCount())
	}
	for i := 0; i < 2; i++ {
		page, _ := doc.Page(i)
		if page.Rotate != 90 {
			t.Errorf("page %d rotate = %d, want 90", i, page.Rotate)
		}
	}
	// A second pass lands on 180.
	again, err := engine.Rotate(context.Background(), rotated)
	if err != nil {
		t.Fatalf("Rotate twice: %v", err)
	}
	doc2, _ := openOutput(t, again)
	page, _ := doc2.Page(0)
	if page.Rotate != 180 {
		t.Errorf("double rotate = %d, want 180", page.Rotate)
	}
}

func TestMergePreservesBlankLeadingPageByDefault(t *testing.T) {
	bb := builder.NewBuilder()
	bb.NewPage(612, 792).Finish() // blank, but the caller's page
	bb.NewPage(612, 792).DrawText("content", 72, 700, builder.TextOptions{}).Finish()
	a := build(t, bb)
	b := docWithPages(t, "B", 1)

	res, err := NewEngine(Config{}).Merge(context.Background(), [][]byte{a, b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	doc, _ := openOutput(t, res.Data)
	if doc.PageCount() != 3 {
		t.Fatalf("PageCount = %d, want 3 (every source page kept)", doc.PageCount())
	}
	if len(res.Mapping) != 3 {
		t.Fatalf("mapping = %+v, want 3 entries", res.Mapping)
	}
	if res.Mapping[0] != (PageMapping{Source: 1, SourcePage: 0, OutputPage: 0}) {
		t.Errorf("mapping[0] = %+v", res.Mapping[0])
	}
}

func TestMergeTrimsBlankLeadingPageWhenAsked(t *testing.T) {
	bb := builder.NewBuilder()
	bb.NewPage(612, 792).Finish() // blank
	bb.NewPage(612, 792).DrawText("content", 72, 700, builder.TextOptions{}).Finish()
	a := build(t, bb)
	b := docWithPages(t, "B", 1)

	res, err := NewEngine(Config{TrimBlankLeadingPage: true}).Merge(context.Background(), [][]byte{a, b})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	doc, ex := openOutput(t, res.Data)
	if doc.PageCount() != 2 {
		t.Fatalf("PageCount = %d, want 2 (blank leading page dropped)", doc.PageCount())
	}
	text, _ := ex.PageText(0)
	if text != "content" {
		t.Errorf("first page text = %q, want content", text)
	}
	if len(res.Mapping) != 2 {
		t.Fatalf("mapping = %+v, want 2 entries", res.Mapping)
	}
	if res.Mapping[0] != (PageMapping{Source: 1, SourcePage: 1, OutputPage: 0}) {
		t.Errorf("mapping[0] = %+v", res.Mapping[0])
	}
}

func TestMergeTrimKeepsBlankPageWithAnnotations(t *testing.T) {
	bb := builder.NewBuilder()
	bb.NewPage(612, 792).AddTextWidget("w", linkRect).Finish()
	bb.NewPage(612, 792).DrawText("content", 72, 700, builder.TextOptions{}).Finish()
	a := build(t, bb)

	res, err := NewEngine(Config{TrimBlankLeadingPage: true}).Merge(context.Background(), [][]byte{a})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	doc, _ := openOutput(t, res.Data)
	if doc.PageCount() != 2 {
		t.Errorf("PageCount = %d, want 2 (textless page carries a widget)", doc.PageCount())
	}
}

func TestMergeWarnsOnUnresolvableInternalLink(t *testing.T) {
	bb := builder.NewBuilder()
	bb.NewPage(612, 792).
		DrawText("x", 72, 700, builder.TextOptions{}).
		AddInternalLink(linkRect, 99).
		Finish()
	a := build(t, bb)

	res, err := NewEngine(Config{}).Merge(context.Background(), [][]byte{a})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", res.Warnings)
	}
	w := res.Warnings[0]
	if w.Kind != LinkResolution || w.Source != 1 {
		t.Errorf("warning = %+v", w)
	}
	_, ex := openOutput(t, res.Data)
	links, _ := ex.PageLinks(0)
	if len(links) != 0 {
		t.Errorf("dropped link still present: %v", links)
	}
}

func TestMergeAbortsOnBadSource(t *testing.T) {
	good := docWithPages(t, "A", 1)
	bad := []byte("this is not a pdf at all")
	_, err := NewEngine(Config{}).Merge(context.Background(), [][]byte{good, bad})
	var openErr *DocumentOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("Merge = %v, want *DocumentOpenError", err)
	}
	if openErr.Source != 2 {
		t.Errorf("Source = %d, want 2", openErr.Source)
	}
}

func TestOpenTimeoutFires(t *testing.T) {
	big := docWithPages(t, "big", 80)
	engine := NewEngine(Config{OpenTimeout: time.Nanosecond})
	_, err := engine.Merge(context.Background(), [][]byte{big})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Merge = %v, want ErrTimeout", err)
	}
	var openErr *DocumentOpenError
	if !errors.As(err, &openErr) || openErr.Source != 1 {
		t.Errorf("timeout not attributed to source 1: %v", err)
	}
}

func TestMergeHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(Config{}).Merge(ctx, [][]byte{docWithPages(t, "A", 1)})
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
