package raw

import "fmt"

// Copier imports object subtrees from a source document into a destination,
// renumbering indirect references as it goes. Objects already imported are
// reused, so shared resources (fonts, form fields) stay shared in the
// destination and reference cycles terminate.
type Copier struct {
	src, dst *Document
	imported map[ObjectRef]ObjectRef
}

// NewCopier creates a copier from src into dst. A copier is tied to one
// (src, dst) pair; reuse it for all copies from the same source so shared
// subtrees are imported once.
func NewCopier(src, dst *Document) *Copier {
	return &Copier{
		src:      src,
		dst:      dst,
		imported: make(map[ObjectRef]ObjectRef),
	}
}

// Copy deep-copies a direct object, importing any indirect references it
// contains.
func (c *Copier) Copy(obj Object) (Object, error) {
	switch v := obj.(type) {
	case nil:
		return NullObj{}, nil
	case NameObj, NumberObj, BoolObj, NullObj:
		return v, nil
	case StringObj:
		out := StringObj{Bytes: append([]byte(nil), v.Bytes...), Hex: v.Hex}
		return out, nil
	case *ArrayObj:
		out := &ArrayObj{Items: make([]Object, 0, len(v.Items))}
		for _, item := range v.Items {
			copied, err := c.Copy(item)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, copied)
		}
		return out, nil
	case *DictObj:
		out := Dict()
		for k, val := range v.KV {
			copied, err := c.Copy(val)
			if err != nil {
				return nil, err
			}
			out.Set(k, copied)
		}
		return out, nil
	case *StreamObj:
		dict, err := c.Copy(v.Dict)
		if err != nil {
			return nil, err
		}
		return &StreamObj{
			Dict: dict.(*DictObj),
			Data: append([]byte(nil), v.Data...),
		}, nil
	case RefObj:
		ref, err := c.CopyRef(v.R)
		if err != nil {
			return nil, err
		}
		return RefObj{R: ref}, nil
	default:
		return nil, fmt.Errorf("raw: cannot copy object of type %q", obj.Type())
	}
}

// CopyRef imports the indirect object behind ref and returns its reference
// in the destination document. Dangling references import as null.
func (c *Copier) CopyRef(ref ObjectRef) (ObjectRef, error) {
	if mapped, ok := c.imported[ref]; ok {
		return mapped, nil
	}
	target, ok := c.src.Objects[ref]
	if !ok {
		dstRef := c.dst.Add(NullObj{})
		c.imported[ref] = dstRef
		return dstRef, nil
	}
	// Reserve the destination slot before recursing so cycles close on
	// the mapping instead of recursing forever.
	dstRef := c.dst.Allocate()
	c.imported[ref] = dstRef
	copied, err := c.Copy(target)
	if err != nil {
		return ObjectRef{}, err
	}
	c.dst.Put(dstRef, copied)
	return dstRef, nil
}
