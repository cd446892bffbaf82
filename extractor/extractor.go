// Package extractor pulls structured data out of an open document: link
// annotations with their classification, non-link annotations, and
// best-effort page text.
package extractor

import (
	"errors"

	"github.com/pdfuse/pdfuse/document"
	"github.com/pdfuse/pdfuse/ir/raw"
)

// Extractor exposes read-only helpers over one open document.
type Extractor struct {
	doc       *document.Document
	raw       *raw.Document
	pageIndex map[raw.ObjectRef]int
}

// New creates an extractor for doc.
func New(doc *document.Document) (*Extractor, error) {
	if doc == nil || doc.Closed() {
		return nil, errors.New("extractor: document required")
	}
	e := &Extractor{
		doc:       doc,
		raw:       doc.Raw(),
		pageIndex: make(map[raw.ObjectRef]int, doc.PageCount()),
	}
	for i := 0; i < doc.PageCount(); i++ {
		page, err := doc.Page(i)
		if err != nil {
			return nil, err
		}
		if !page.Ref.IsZero() {
			e.pageIndex[page.Ref] = i
		}
	}
	return e, nil
}

// NonLinkAnnotations returns every annotation on the page whose subtype is
// not Link, as the raw objects found in /Annots. Annotations whose subtype
// cannot be read are included; whether they can be copied is the caller's
// problem to report.
func (e *Extractor) NonLinkAnnotations(pageIndex int) ([]raw.Object, error) {
	items, err := e.doc.PageAnnotations(pageIndex)
	if err != nil {
		return nil, err
	}
	var out []raw.Object
	for _, item := range items {
		dict, ok := e.raw.Resolve(item).(*raw.DictObj)
		if ok {
			if subtype, _ := e.raw.GetName(dict, "Subtype"); subtype == "Link" {
				continue
			}
		}
		out = append(out, item)
	}
	return out, nil
}
