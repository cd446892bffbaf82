package writer

import (
	"bytes"
	"context"
	"testing"

	"github.com/pdfuse/pdfuse/ir/raw"
	"github.com/pdfuse/pdfuse/parser"
)

func minimalDoc() *raw.Document {
	doc := raw.NewDocument()
	page := raw.Dict()
	page.Set("Type", raw.Name("Page"))
	pageRef := doc.Add(page)

	pages := raw.Dict()
	pages.Set("Type", raw.Name("Pages"))
	pages.Set("Kids", raw.NewArray(raw.Ref(pageRef.Num, pageRef.Gen)))
	pages.Set("Count", raw.Int(1))
	pagesRef := doc.Add(pages)
	page.Set("Parent", raw.Ref(pagesRef.Num, pagesRef.Gen))
	page.Set("MediaBox", raw.NewArray(raw.Int(0), raw.Int(0), raw.Int(612), raw.Int(792)))

	catalog := raw.Dict()
	catalog.Set("Type", raw.Name("Catalog"))
	catalog.Set("Pages", raw.Ref(pagesRef.Num, pagesRef.Gen))
	catalogRef := doc.Add(catalog)
	doc.Trailer.Set("Root", raw.Ref(catalogRef.Num, catalogRef.Gen))
	return doc
}

func write(t *testing.T, doc *raw.Document, cfg Config) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := NewWriter().Write(context.Background(), doc, &buf, cfg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return buf.Bytes()
}

func TestWriteParseRoundTrip(t *testing.T) {
	data := write(t, minimalDoc(), Config{})
	if !bytes.HasPrefix(data, []byte("%PDF-1.7\n")) {
		t.Errorf("output does not start with header: %q", data[:16])
	}
	if !bytes.HasSuffix(data, []byte("%%EOF\n")) {
		t.Errorf("output does not end with %s", "%%EOF")
	}

	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse written output: %v", err)
	}
	root, ok := doc.GetDict(doc.Trailer, "Root")
	if !ok {
		t.Fatal("round-tripped trailer has no Root")
	}
	pages, ok := doc.GetDict(root, "Pages")
	if !ok {
		t.Fatal("round-tripped catalog has no Pages")
	}
	if count, _ := doc.GetInt(pages, "Count"); count != 1 {
		t.Errorf("Count = %d, want 1", count)
	}
	size, _ := doc.GetInt(doc.Trailer, "Size")
	if size != int64(len(doc.Objects)+1) {
		t.Errorf("trailer Size = %d, want %d", size, len(doc.Objects)+1)
	}
}

func TestGarbageCollectionDropsOrphans(t *testing.T) {
	doc := minimalDoc()
	doc.Add(raw.Str([]byte("orphan payload")))

	kept := write(t, doc, Config{Garbage: true})
	if bytes.Contains(kept, []byte("orphan payload")) {
		t.Error("unreachable object survived garbage collection")
	}
	full := write(t, doc, Config{})
	if !bytes.Contains(full, []byte("orphan payload")) {
		t.Error("object missing without garbage collection")
	}
}

func TestStreamLengthMatchesPayload(t *testing.T) {
	doc := minimalDoc()
	stream := raw.NewStream(raw.Dict(), []byte("0123456789"))
	streamRef := doc.Add(stream)
	root, _ := doc.GetDict(doc.Trailer, "Root")
	root.Set("Extra", raw.Ref(streamRef.Num, streamRef.Gen))

	data := write(t, doc, Config{})
	back, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	backRoot, _ := back.GetDict(back.Trailer, "Root")
	st, ok := back.GetStream(backRoot, "Extra")
	if !ok {
		t.Fatal("stream not found after round trip")
	}
	if string(st.Data) != "0123456789" {
		t.Errorf("stream payload = %q", st.Data)
	}
}

func TestNameEscaping(t *testing.T) {
	var buf bytes.Buffer
	writeName(&buf, "A B/C")
	if got := buf.String(); got != "/A#20B#2FC" {
		t.Errorf("writeName = %q, want /A#20B#2FC", got)
	}
}

func TestStringEscaping(t *testing.T) {
	var buf bytes.Buffer
	writeString(&buf, raw.Str([]byte("a(b)\\c\nd\x01")))
	want := `(a\(b\)\\c\nd\001)`
	if got := buf.String(); got != want {
		t.Errorf("writeString = %q, want %q", got, want)
	}

	buf.Reset()
	writeString(&buf, raw.HexStr([]byte{0xDE, 0xAD}))
	if got := buf.String(); got != "<DEAD>" {
		t.Errorf("hex writeString = %q, want <DEAD>", got)
	}
}

func TestFormatNumber(t *testing.T) {
	cases := []struct {
		in   raw.NumberObj
		want string
	}{
		{raw.Int(42), "42"},
		{raw.Int(-7), "-7"},
		{raw.Float(1.5), "1.5"},
		{raw.Float(612), "612"},
		{raw.Float(0.000001), "0.000001"},
	}
	for _, c := range cases {
		if got := formatNumber(c.in); got != c.want {
			t.Errorf("formatNumber(%+v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestWriteHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err := NewWriter().Write(ctx, minimalDoc(), &buf, Config{})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
