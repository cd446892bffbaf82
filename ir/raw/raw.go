// Package raw models the low-level PDF object graph: dictionaries, arrays,
// names, numbers, strings, streams and indirect references, plus the
// document container that owns them.
package raw

import (
	"errors"
	"fmt"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// IsZero reports whether the reference is the zero (invalid) reference.
func (r ObjectRef) IsZero() bool { return r.Num == 0 && r.Gen == 0 }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
}

// Document is the root container for raw PDF objects.
type Document struct {
	Objects map[ObjectRef]Object
	Trailer *DictObj
	Version string

	nextNum int
}

// NewDocument returns an empty document with an empty trailer.
func NewDocument() *Document {
	return &Document{
		Objects: make(map[ObjectRef]Object),
		Trailer: Dict(),
		Version: "1.7",
	}
}

// Allocate reserves the next free object number.
func (d *Document) Allocate() ObjectRef {
	if d.nextNum == 0 {
		for ref := range d.Objects {
			if ref.Num > d.nextNum {
				d.nextNum = ref.Num
			}
		}
	}
	d.nextNum++
	return ObjectRef{Num: d.nextNum}
}

// Add stores obj under a freshly allocated reference.
func (d *Document) Add(obj Object) ObjectRef {
	ref := d.Allocate()
	d.Objects[ref] = obj
	return ref
}

// Put stores obj under ref, growing the allocation watermark as needed.
func (d *Document) Put(ref ObjectRef, obj Object) {
	if ref.Num > d.nextNum {
		d.nextNum = ref.Num
	}
	d.Objects[ref] = obj
}

const maxResolveDepth = 32

// ErrResolveLoop is returned when reference resolution exceeds its depth bound.
var ErrResolveLoop = errors.New("raw: reference resolution loop")

// Resolve follows indirect references until a direct object is reached.
// Unresolvable references yield NullObj.
func (d *Document) Resolve(obj Object) Object {
	for depth := 0; depth < maxResolveDepth; depth++ {
		ref, ok := obj.(RefObj)
		if !ok {
			return obj
		}
		next, ok := d.Objects[ref.R]
		if !ok {
			return NullObj{}
		}
		obj = next
	}
	return NullObj{}
}
