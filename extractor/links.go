package extractor

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdfuse/pdfuse/geo"
	"github.com/pdfuse/pdfuse/ir/raw"
)

// Link is one link annotation, classified.
type Link struct {
	Rect geo.Rect
	// URI is the destination as found: an absolute URI for external
	// links, a page fragment (possibly synthesized from a GoTo action)
	// for internal ones.
	URI string
	// External is true for absolute destinations outside the document.
	External bool
	// TargetPage is the 1-indexed page reference of an internal link, or
	// 0 when the destination could not be resolved to a page.
	TargetPage int
}

// PageLinks enumerates and classifies the link annotations on a page.
func (e *Extractor) PageLinks(pageIndex int) ([]Link, error) {
	items, err := e.doc.PageAnnotations(pageIndex)
	if err != nil {
		return nil, err
	}
	var out []Link
	for _, item := range items {
		dict, ok := e.raw.Resolve(item).(*raw.DictObj)
		if !ok {
			continue
		}
		if subtype, _ := e.raw.GetName(dict, "Subtype"); subtype != "Link" {
			continue
		}
		link := Link{}
		if rect, ok := e.raw.GetRect(dict, "Rect"); ok {
			link.Rect = rect
		}
		e.classify(dict, &link)
		out = append(out, link)
	}
	return out, nil
}

func (e *Extractor) classify(annot *raw.DictObj, link *Link) {
	if uri, ok := e.annotationURI(annot); ok {
		link.URI = uri
		if page, ok := FragmentPage(uri); ok {
			link.TargetPage = page
			return
		}
		if isAbsoluteURI(uri) {
			link.External = true
			return
		}
		// Relative non-fragment URI: neither resolvable in-document nor
		// absolute; leave unclassified (TargetPage 0, not external).
		return
	}
	if page, ok := e.destinationPage(annot); ok {
		link.TargetPage = page + 1
		link.URI = fmt.Sprintf("#page=%d", page+1)
	}
}

// annotationURI reads /A{S:URI}.URI or a bare /URI entry.
func (e *Extractor) annotationURI(annot *raw.DictObj) (string, bool) {
	if b, ok := e.raw.GetString(annot, "URI"); ok {
		return DecodeTextString(b), true
	}
	action, ok := e.raw.GetDict(annot, "A")
	if !ok {
		return "", false
	}
	if s, _ := e.raw.GetName(action, "S"); s != "URI" {
		return "", false
	}
	b, ok := e.raw.GetString(action, "URI")
	if !ok {
		return "", false
	}
	return DecodeTextString(b), true
}

// destinationPage resolves /Dest or a GoTo action to a 0-indexed page.
func (e *Extractor) destinationPage(annot *raw.DictObj) (int, bool) {
	if dest, ok := annot.Get("Dest"); ok {
		return e.resolveDest(dest)
	}
	action, ok := e.raw.GetDict(annot, "A")
	if !ok {
		return 0, false
	}
	if s, _ := e.raw.GetName(action, "S"); s != "GoTo" {
		return 0, false
	}
	dest, ok := action.Get("D")
	if !ok {
		return 0, false
	}
	return e.resolveDest(dest)
}

func (e *Extractor) resolveDest(dest raw.Object) (int, bool) {
	switch v := e.raw.Resolve(dest).(type) {
	case *raw.ArrayObj:
		if v.Len() == 0 {
			return 0, false
		}
		switch target := v.Items[0].(type) {
		case raw.RefObj:
			idx, ok := e.pageIndex[target.R]
			return idx, ok
		case raw.NumberObj:
			// Remote-style numeric destination: already a page index.
			idx := int(target.Int())
			if idx >= 0 && idx < e.doc.PageCount() {
				return idx, true
			}
		}
		return 0, false
	case raw.NameObj:
		return e.namedDest(v.Val)
	case raw.StringObj:
		return e.namedDest(string(v.Bytes))
	}
	return 0, false
}

// namedDest looks up old-style /Dests dictionaries in the catalog. Name
// trees are not walked; unresolved names surface as droppable links.
func (e *Extractor) namedDest(name string) (int, bool) {
	root, ok := e.raw.GetDict(e.raw.Trailer, "Root")
	if !ok {
		return 0, false
	}
	dests, ok := e.raw.GetDict(root, "Dests")
	if !ok {
		return 0, false
	}
	entry, ok := dests.Get(name)
	if !ok {
		return 0, false
	}
	switch v := e.raw.Resolve(entry).(type) {
	case *raw.ArrayObj:
		return e.resolveDest(v)
	case *raw.DictObj:
		if d, ok := v.Get("D"); ok {
			return e.resolveDest(d)
		}
	}
	return 0, false
}

// FragmentPage parses a page fragment of the form "#page=3" (or a bare
// "#3"), returning the 1-indexed page number.
func FragmentPage(uri string) (int, bool) {
	hash := strings.IndexByte(uri, '#')
	if hash != 0 {
		// Only same-document fragments qualify; "http://x#page=3" is an
		// external link whose fragment belongs to the remote document.
		return 0, false
	}
	frag := uri[1:]
	for _, part := range strings.Split(frag, "&") {
		if v, ok := strings.CutPrefix(part, "page="); ok {
			if n, err := strconv.Atoi(v); err == nil && n >= 1 {
				return n, true
			}
			return 0, false
		}
	}
	if n, err := strconv.Atoi(frag); err == nil && n >= 1 {
		return n, true
	}
	return 0, false
}

// RewriteFragmentPage substitutes the page number in a fragment URI,
// preserving any other fragment parameters (zoom, view).
func RewriteFragmentPage(uri string, page int) string {
	if !strings.HasPrefix(uri, "#") {
		return fmt.Sprintf("#page=%d", page)
	}
	parts := strings.Split(uri[1:], "&")
	replaced := false
	for i, part := range parts {
		if strings.HasPrefix(part, "page=") {
			parts[i] = fmt.Sprintf("page=%d", page)
			replaced = true
		} else if _, err := strconv.Atoi(part); err == nil && len(parts) == 1 {
			parts[i] = strconv.Itoa(page)
			replaced = true
		}
	}
	if !replaced {
		return fmt.Sprintf("#page=%d", page)
	}
	return "#" + strings.Join(parts, "&")
}

func isAbsoluteURI(uri string) bool {
	u, err := url.Parse(uri)
	return err == nil && u.IsAbs()
}
