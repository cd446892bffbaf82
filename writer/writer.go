// Package writer flattens a raw document to PDF bytes: reachability
// garbage collection, sequential renumbering, and classic xref emission.
package writer

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/pdfuse/pdfuse/ir/raw"
)

// Config controls serialization.
type Config struct {
	// Garbage drops objects unreachable from the trailer before writing.
	Garbage bool
}

type Writer interface {
	Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error
}

func NewWriter() Writer { return &impl{} }

type impl struct{}

func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error {
	if doc == nil {
		return errors.New("writer: nil document")
	}
	keep := w.keepSet(doc, cfg)
	if len(keep) == 0 {
		return errors.New("writer: no reachable objects")
	}

	// Renumber in old-number order for deterministic output.
	old := make([]raw.ObjectRef, 0, len(keep))
	for ref := range keep {
		old = append(old, ref)
	}
	sort.Slice(old, func(i, j int) bool {
		if old[i].Num != old[j].Num {
			return old[i].Num < old[j].Num
		}
		return old[i].Gen < old[j].Gen
	})
	remap := make(map[raw.ObjectRef]int, len(old))
	for i, ref := range old {
		remap[ref] = i + 1
	}

	var buf bytes.Buffer
	version := doc.Version
	if version == "" {
		version = "1.7"
	}
	fmt.Fprintf(&buf, "%%PDF-%s\n", version)
	buf.WriteString("%\xE2\xE3\xCF\xD3\n")

	offsets := make([]int64, len(old))
	for i, ref := range old {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		offsets[i] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		if err := serializeObject(&buf, doc.Objects[ref], remap); err != nil {
			return fmt.Errorf("serialize object %s: %w", ref, err)
		}
		buf.WriteString("\nendobj\n")
	}

	xrefOff := int64(buf.Len())
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(old)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}

	trailer := w.buildTrailer(doc, remap, len(old)+1, buf.Bytes())
	buf.WriteString("trailer\n")
	if err := serializeObject(&buf, trailer, remap); err != nil {
		return fmt.Errorf("serialize trailer: %w", err)
	}
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	_, err := out.Write(buf.Bytes())
	return err
}

// keepSet computes the objects to emit: everything, or only what the
// trailer reaches when garbage collection is on.
func (w *impl) keepSet(doc *raw.Document, cfg Config) map[raw.ObjectRef]bool {
	keep := make(map[raw.ObjectRef]bool, len(doc.Objects))
	if !cfg.Garbage {
		for ref := range doc.Objects {
			keep[ref] = true
		}
		return keep
	}
	var mark func(obj raw.Object)
	mark = func(obj raw.Object) {
		switch v := obj.(type) {
		case raw.RefObj:
			if keep[v.R] {
				return
			}
			target, ok := doc.Objects[v.R]
			if !ok {
				return
			}
			keep[v.R] = true
			mark(target)
		case *raw.ArrayObj:
			for _, item := range v.Items {
				mark(item)
			}
		case *raw.DictObj:
			for _, val := range v.KV {
				mark(val)
			}
		case *raw.StreamObj:
			mark(v.Dict)
		}
	}
	mark(doc.Trailer)
	return keep
}

func (w *impl) buildTrailer(doc *raw.Document, remap map[raw.ObjectRef]int, size int, body []byte) *raw.DictObj {
	trailer := raw.Dict()
	for _, key := range doc.Trailer.Keys() {
		switch key {
		case "Prev", "Size", "XRefStm", "ID":
			continue
		}
		val, _ := doc.Trailer.Get(key)
		trailer.Set(key, val)
	}
	trailer.Set("Size", raw.Int(int64(size)))
	sum := md5.Sum(body)
	id := raw.HexStr(sum[:])
	trailer.Set("ID", raw.NewArray(id, id))
	return trailer
}
