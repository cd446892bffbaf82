// Package document is the page-level view over a raw PDF object graph:
// opening buffers, walking the page tree with attribute inheritance, and
// the mutation surface the merge engine builds on (grafting, annotation
// copies, rotation).
package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdfuse/pdfuse/geo"
	"github.com/pdfuse/pdfuse/ir/raw"
	"github.com/pdfuse/pdfuse/parser"
)

// ErrClosed is returned when a document is used after Close.
var ErrClosed = errors.New("document: closed")

// Letter-size default for pages that never declare a MediaBox.
var defaultMediaBox = geo.Rect{URX: 612, URY: 792}

// Page is one resolved page: its dictionary plus the attributes that may
// have been inherited from ancestor Pages nodes.
type Page struct {
	Ref      raw.ObjectRef
	Dict     *raw.DictObj
	MediaBox geo.Rect
	CropBox  geo.Rect
	Rotate   int

	// Effective values carried down from the tree when the page dict
	// itself lacks them; inlined on graft.
	resources       raw.Object
	inheritedMedia  bool
	inheritedCrop   bool
	inheritedRotate bool
}

// Document wraps a raw document with a flattened page list and an explicit
// release lifecycle. Every open document must be closed on all paths.
type Document struct {
	raw      *raw.Document
	pages    []*Page
	pagesRef raw.ObjectRef
	closed   bool
	copiers  map[*Document]*raw.Copier
}

// Open parses data into a document. The page tree is flattened eagerly so
// invalid structure surfaces here, not mid-merge.
func Open(ctx context.Context, data []byte) (*Document, error) {
	p := parser.NewDocumentParser(parser.Config{})
	rawDoc, err := p.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	d := &Document{raw: rawDoc}
	if err := d.collectPages(); err != nil {
		return nil, err
	}
	return d, nil
}

// New returns an empty document with a catalog and a flat page tree,
// ready to receive grafted pages.
func New() *Document {
	rawDoc := raw.NewDocument()
	pagesDict := raw.Dict()
	pagesDict.Set("Type", raw.Name("Pages"))
	pagesDict.Set("Kids", raw.NewArray())
	pagesDict.Set("Count", raw.Int(0))
	pagesRef := rawDoc.Add(pagesDict)

	catalog := raw.Dict()
	catalog.Set("Type", raw.Name("Catalog"))
	catalog.Set("Pages", raw.Ref(pagesRef.Num, pagesRef.Gen))
	catalogRef := rawDoc.Add(catalog)
	rawDoc.Trailer.Set("Root", raw.Ref(catalogRef.Num, catalogRef.Gen))

	return &Document{raw: rawDoc, pagesRef: pagesRef}
}

// Raw exposes the underlying object graph for the writer and extractor.
func (d *Document) Raw() *raw.Document { return d.raw }

// Closed reports whether Close has run.
func (d *Document) Closed() bool { return d.closed }

// Close releases the document. Idempotent; any later use fails with
// ErrClosed.
func (d *Document) Close() {
	if d.closed {
		return
	}
	d.closed = true
	d.raw = nil
	d.pages = nil
	d.copiers = nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return len(d.pages) }

// Page returns the page at index.
func (d *Document) Page(index int) (*Page, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if index < 0 || index >= len(d.pages) {
		return nil, fmt.Errorf("document: page index %d out of range [0,%d)", index, len(d.pages))
	}
	return d.pages[index], nil
}

// PageAnnotations returns the raw /Annots items of a page, unresolved so
// indirect annotations keep their identity for copying.
func (d *Document) PageAnnotations(index int) ([]raw.Object, error) {
	page, err := d.Page(index)
	if err != nil {
		return nil, err
	}
	arr, ok := d.raw.GetArray(page.Dict, "Annots")
	if !ok {
		return nil, nil
	}
	return arr.Items, nil
}

type inherited struct {
	resources raw.Object
	mediaBox  geo.Rect
	hasMedia  bool
	cropBox   geo.Rect
	hasCrop   bool
	rotate    int
	hasRotate bool
}

func (d *Document) collectPages() error {
	root, ok := d.raw.GetDict(d.raw.Trailer, "Root")
	if !ok {
		return errors.New("document: catalog not found")
	}
	pagesObj, ok := root.Get("Pages")
	if !ok {
		return errors.New("document: catalog has no page tree")
	}
	if ref, ok := pagesObj.(raw.RefObj); ok {
		d.pagesRef = ref.R
	}
	rootNode, ok := d.raw.Resolve(pagesObj).(*raw.DictObj)
	if !ok {
		return errors.New("document: page tree root is not a dictionary")
	}
	visited := make(map[raw.ObjectRef]bool)
	if err := d.walkPageTree(rootNode, raw.ObjectRef{}, inherited{}, visited, 0); err != nil {
		return err
	}
	if len(d.pages) == 0 {
		return errors.New("document: no pages")
	}
	return nil
}

const maxTreeDepth = 64

func (d *Document) walkPageTree(node *raw.DictObj, ref raw.ObjectRef, inh inherited, visited map[raw.ObjectRef]bool, depth int) error {
	if depth > maxTreeDepth {
		return errors.New("document: page tree too deep")
	}
	if res, ok := node.Get("Resources"); ok {
		inh.resources = res
	}
	if box, ok := d.raw.GetRect(node, "MediaBox"); ok {
		inh.mediaBox, inh.hasMedia = box, true
	}
	if box, ok := d.raw.GetRect(node, "CropBox"); ok {
		inh.cropBox, inh.hasCrop = box, true
	}
	if rot, ok := d.raw.GetInt(node, "Rotate"); ok {
		inh.rotate, inh.hasRotate = normalizeRotation(int(rot)), true
	}

	typ, _ := d.raw.GetName(node, "Type")
	kids, hasKids := d.raw.GetArray(node, "Kids")
	if typ == "Pages" || (hasKids && typ != "Page") {
		for _, kid := range kids.Items {
			kidRef, isRef := kid.(raw.RefObj)
			if isRef {
				if visited[kidRef.R] {
					continue
				}
				visited[kidRef.R] = true
			}
			kidDict, ok := d.raw.Resolve(kid).(*raw.DictObj)
			if !ok {
				continue
			}
			childRef := raw.ObjectRef{}
			if isRef {
				childRef = kidRef.R
			}
			if err := d.walkPageTree(kidDict, childRef, inh, visited, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	page := &Page{Ref: ref, Dict: node, MediaBox: defaultMediaBox}
	if _, ok := node.Get("Resources"); !ok && inh.resources != nil {
		page.resources = inh.resources
	}
	if box, ok := d.raw.GetRect(node, "MediaBox"); ok {
		page.MediaBox = box
	} else if inh.hasMedia {
		page.MediaBox = inh.mediaBox
		page.inheritedMedia = true
	}
	if box, ok := d.raw.GetRect(node, "CropBox"); ok {
		page.CropBox = box
	} else if inh.hasCrop {
		page.CropBox = inh.cropBox
		page.inheritedCrop = true
	} else {
		page.CropBox = page.MediaBox
	}
	if rot, ok := d.raw.GetInt(node, "Rotate"); ok {
		page.Rotate = normalizeRotation(int(rot))
	} else if inh.hasRotate {
		page.Rotate = inh.rotate
		page.inheritedRotate = true
	}
	d.pages = append(d.pages, page)
	return nil
}

func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	// Non-quarter values are invalid; snap down to the nearest quarter.
	return deg - deg%90
}
