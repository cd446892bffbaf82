package document

import (
	"fmt"

	"github.com/pdfuse/pdfuse/geo"
	"github.com/pdfuse/pdfuse/ir/raw"
)

// copierFor returns the ref-renumbering copier for src, creating it on
// first use. One copier per source keeps resources shared by several of
// its pages shared in the destination too.
func (d *Document) copierFor(src *Document) *raw.Copier {
	if d.copiers == nil {
		d.copiers = make(map[*Document]*raw.Copier)
	}
	c, ok := d.copiers[src]
	if !ok {
		c = raw.NewCopier(src.raw, d.raw)
		d.copiers[src] = c
	}
	return c
}

// GraftPage copies the page at srcIndex of src into this document,
// appending it after the existing pages, and returns its new index.
// Content, resources, boxes and rotation are copied verbatim; /Annots is
// deliberately stripped, annotations are reattached selectively by the
// caller.
func (d *Document) GraftPage(src *Document, srcIndex int) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if src.closed {
		return 0, ErrClosed
	}
	page, err := src.Page(srcIndex)
	if err != nil {
		return 0, err
	}

	// Assemble the effective page dict in source space: own entries minus
	// tree bookkeeping, plus attributes inherited from ancestors.
	staging := raw.Dict()
	for k, v := range page.Dict.KV {
		switch k {
		case "Parent", "Annots", "B", "StructParents":
			continue
		}
		staging.Set(k, v)
	}
	staging.Set("Type", raw.Name("Page"))
	if page.resources != nil {
		staging.Set("Resources", page.resources)
	}
	if page.inheritedMedia {
		staging.Set("MediaBox", raw.RectArray(page.MediaBox))
	}
	if page.inheritedCrop {
		staging.Set("CropBox", raw.RectArray(page.CropBox))
	}
	if page.inheritedRotate {
		staging.Set("Rotate", raw.Int(int64(page.Rotate)))
	}

	copied, err := d.copierFor(src).Copy(staging)
	if err != nil {
		return 0, fmt.Errorf("graft page %d: %w", srcIndex, err)
	}
	pageDict := copied.(*raw.DictObj)
	pageDict.Set("Parent", raw.Ref(d.pagesRef.Num, d.pagesRef.Gen))
	pageRef := d.raw.Add(pageDict)

	if err := d.appendKid(pageRef); err != nil {
		return 0, err
	}
	d.pages = append(d.pages, &Page{
		Ref:      pageRef,
		Dict:     pageDict,
		MediaBox: page.MediaBox,
		CropBox:  page.CropBox,
		Rotate:   page.Rotate,
	})
	return len(d.pages) - 1, nil
}

func (d *Document) appendKid(pageRef raw.ObjectRef) error {
	pagesDict, ok := d.raw.Resolve(raw.Ref(d.pagesRef.Num, d.pagesRef.Gen)).(*raw.DictObj)
	if !ok {
		return fmt.Errorf("document: page tree root %s missing", d.pagesRef)
	}
	kids, ok := d.raw.GetArray(pagesDict, "Kids")
	if !ok {
		kids = raw.NewArray()
		pagesDict.Set("Kids", kids)
	}
	kids.Append(raw.Ref(pageRef.Num, pageRef.Gen))
	count, _ := d.raw.GetInt(pagesDict, "Count")
	pagesDict.Set("Count", raw.Int(count+1))
	return nil
}

// AppendLink writes a fresh link annotation on the page at index.
func (d *Document) AppendLink(index int, rect geo.Rect, uri string) error {
	page, err := d.Page(index)
	if err != nil {
		return err
	}
	action := raw.Dict()
	action.Set("Type", raw.Name("Action"))
	action.Set("S", raw.Name("URI"))
	action.Set("URI", raw.Str([]byte(uri)))

	link := raw.Dict()
	link.Set("Type", raw.Name("Annot"))
	link.Set("Subtype", raw.Name("Link"))
	link.Set("Rect", raw.RectArray(rect))
	link.Set("Border", raw.NewArray(raw.Int(0), raw.Int(0), raw.Int(0)))
	link.Set("A", action)
	linkRef := d.raw.Add(link)
	return d.appendAnnot(page, linkRef)
}

// CopyAnnotation deep-copies one annotation from src onto the page at
// index. Indirect annotations are imported through the shared copier so a
// widget's field hierarchy stays intact and shared.
func (d *Document) CopyAnnotation(src *Document, annot raw.Object, index int) error {
	page, err := d.Page(index)
	if err != nil {
		return err
	}
	copier := d.copierFor(src)

	var annotRef raw.ObjectRef
	switch v := annot.(type) {
	case raw.RefObj:
		annotRef, err = copier.CopyRef(v.R)
		if err != nil {
			return err
		}
	case *raw.DictObj:
		copied, err := copier.Copy(v)
		if err != nil {
			return err
		}
		annotRef = d.raw.Add(copied)
	default:
		return fmt.Errorf("document: annotation is %s, not a dictionary", annot.Type())
	}

	dict, ok := d.raw.Resolve(raw.Ref(annotRef.Num, annotRef.Gen)).(*raw.DictObj)
	if !ok {
		return fmt.Errorf("document: copied annotation %s is not a dictionary", annotRef)
	}
	// Drop the stale page back-reference; viewers rebuild it.
	dict.Delete("P")
	if subtype, _ := d.raw.GetName(dict, "Subtype"); subtype == "Widget" {
		if err := d.registerFormField(annotRef); err != nil {
			return err
		}
	}
	return d.appendAnnot(page, annotRef)
}

// registerFormField records a copied widget's field in the catalog's
// AcroForm so viewers recognize it as a form field. Widgets merged into
// a field hierarchy register their topmost ancestor instead.
func (d *Document) registerFormField(ref raw.ObjectRef) error {
	for depth := 0; depth < maxTreeDepth; depth++ {
		dict, ok := d.raw.Resolve(raw.Ref(ref.Num, ref.Gen)).(*raw.DictObj)
		if !ok {
			break
		}
		parent, ok := dict.Get("Parent")
		if !ok {
			break
		}
		parentRef, ok := parent.(raw.RefObj)
		if !ok {
			break
		}
		ref = parentRef.R
	}

	root, ok := d.raw.GetDict(d.raw.Trailer, "Root")
	if !ok {
		return fmt.Errorf("document: catalog not found")
	}
	acro, ok := d.raw.GetDict(root, "AcroForm")
	if !ok {
		acro = raw.Dict()
		acro.Set("NeedAppearances", raw.Bool(true))
		root.Set("AcroForm", acro)
	}
	fields, ok := d.raw.GetArray(acro, "Fields")
	if !ok {
		fields = raw.NewArray()
		acro.Set("Fields", fields)
	}
	for _, item := range fields.Items {
		if existing, ok := item.(raw.RefObj); ok && existing.R == ref {
			return nil
		}
	}
	fields.Append(raw.Ref(ref.Num, ref.Gen))
	return nil
}

func (d *Document) appendAnnot(page *Page, ref raw.ObjectRef) error {
	annots, ok := d.raw.GetArray(page.Dict, "Annots")
	if !ok {
		annots = raw.NewArray()
		page.Dict.Set("Annots", annots)
	}
	annots.Append(raw.Ref(ref.Num, ref.Gen))
	return nil
}

// RotatePages applies quarterTurns clockwise quarter turns to every page's
// orientation metadata. Content, annotations and page count are untouched.
func (d *Document) RotatePages(quarterTurns int) error {
	if d.closed {
		return ErrClosed
	}
	for _, page := range d.pages {
		page.Rotate = normalizeRotation(page.Rotate + 90*quarterTurns)
		page.Dict.Set("Rotate", raw.Int(int64(page.Rotate)))
		page.inheritedRotate = false
	}
	return nil
}

// RemovePage detaches the page at index from a flat page tree. Used only
// for the output document's leading-page cleanup.
func (d *Document) RemovePage(index int) error {
	page, err := d.Page(index)
	if err != nil {
		return err
	}
	pagesDict, ok := d.raw.Resolve(raw.Ref(d.pagesRef.Num, d.pagesRef.Gen)).(*raw.DictObj)
	if !ok {
		return fmt.Errorf("document: page tree root %s missing", d.pagesRef)
	}
	kids, ok := d.raw.GetArray(pagesDict, "Kids")
	if !ok {
		return fmt.Errorf("document: page tree has no kids")
	}
	pos := -1
	for i, kid := range kids.Items {
		if ref, ok := kid.(raw.RefObj); ok && ref.R == page.Ref {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("document: page %d is not a direct kid of the tree root", index)
	}
	kids.Items = append(kids.Items[:pos], kids.Items[pos+1:]...)
	count, _ := d.raw.GetInt(pagesDict, "Count")
	pagesDict.Set("Count", raw.Int(count-1))
	delete(d.raw.Objects, page.Ref)
	d.pages = append(d.pages[:index], d.pages[index+1:]...)
	return nil
}
