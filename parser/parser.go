// Package parser builds a raw.Document from a byte buffer using the
// cross-reference table and the object reader, with a brute-force repair
// scan as fallback for damaged or xref-stream files.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/pdfuse/pdfuse/filters"
	"github.com/pdfuse/pdfuse/ir/raw"
	"github.com/pdfuse/pdfuse/scanner"
	"github.com/pdfuse/pdfuse/xref"
)

// ErrEncrypted is returned for password-protected input, which the engine
// does not process.
var ErrEncrypted = errors.New("parser: document is encrypted")

// Config controls document parsing.
type Config struct {
	// MaxObjects bounds the number of indirect objects loaded from one
	// document. Zero means the default.
	MaxObjects int
}

const defaultMaxObjects = 1 << 20

// DocumentParser converts byte buffers into raw documents.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.MaxObjects == 0 {
		cfg.MaxObjects = defaultMaxObjects
	}
	return &DocumentParser{cfg: cfg}
}

// Parse reads a complete PDF from data.
func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	version, ok := headerVersion(data)
	if !ok {
		return nil, errors.New("parser: missing %PDF header")
	}
	doc := raw.NewDocument()
	doc.Version = version

	table, trailer, xrefErr := p.resolveXref(data)
	lenient := false
	if xrefErr != nil || table.Len() == 0 {
		repaired, err := xref.Repair(data)
		if err != nil {
			if xrefErr != nil {
				return nil, fmt.Errorf("resolve xref: %w", xrefErr)
			}
			return nil, fmt.Errorf("resolve xref: %w", err)
		}
		table = repaired
		lenient = true
	}
	if trailer != nil {
		doc.Trailer = trailer
	}
	if _, ok := doc.Trailer.Get("Encrypt"); ok {
		return nil, ErrEncrypted
	}

	nums := table.Objects()
	if len(nums) > p.cfg.MaxObjects {
		return nil, fmt.Errorf("parser: object count %d exceeds limit", len(nums))
	}
	for _, num := range nums {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		off, gen, _ := table.Lookup(num)
		obj, err := p.loadObjectAt(data, table, off, num)
		if err != nil {
			if lenient {
				continue
			}
			return nil, fmt.Errorf("load object %d: %w", num, err)
		}
		doc.Put(raw.ObjectRef{Num: num, Gen: gen}, obj)
	}

	if err := expandObjectStreams(ctx, doc); err != nil && !lenient {
		return nil, err
	}
	if err := ensureRoot(doc); err != nil {
		return nil, err
	}
	if _, ok := doc.Trailer.Get("Encrypt"); ok {
		return nil, ErrEncrypted
	}
	return doc, nil
}

// resolveXref walks the startxref / Prev chain of classic tables.
func (p *DocumentParser) resolveXref(data []byte) (*xref.Table, *raw.DictObj, error) {
	start, err := xref.Startxref(data)
	if err != nil {
		return nil, nil, err
	}
	table := xref.NewTable()
	var newest *raw.DictObj
	visited := make(map[int64]bool)
	off := start
	for depth := 0; depth < 32; depth++ {
		if visited[off] {
			break
		}
		visited[off] = true
		section, trailerOff, err := xref.ParseSection(data, off)
		if err != nil {
			return nil, nil, err
		}
		table.Merge(section)
		if trailerOff < 0 {
			break
		}
		s := scanner.New(data)
		if err := s.Seek(trailerOff); err != nil {
			return nil, nil, err
		}
		obj, err := ReadObject(s)
		if err != nil {
			return nil, nil, fmt.Errorf("parse trailer: %w", err)
		}
		trailer, ok := obj.(*raw.DictObj)
		if !ok {
			return nil, nil, errors.New("trailer is not a dictionary")
		}
		if newest == nil {
			newest = trailer
		}
		prev, ok := trailer.Get("Prev")
		if !ok {
			break
		}
		num, ok := prev.(raw.NumberObj)
		if !ok {
			break
		}
		off = num.Int()
	}
	return table, newest, nil
}

func (p *DocumentParser) loadObjectAt(data []byte, table *xref.Table, off int64, wantNum int) (raw.Object, error) {
	s := scanner.New(data)
	if err := s.Seek(off); err != nil {
		return nil, err
	}
	numTok, err := s.Next()
	if err != nil {
		return nil, err
	}
	genTok, err := s.Next()
	if err != nil {
		return nil, err
	}
	kwTok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if numTok.Type != scanner.TokenNumber || !numTok.IsInt ||
		genTok.Type != scanner.TokenNumber || !genTok.IsInt ||
		kwTok.Type != scanner.TokenKeyword || kwTok.Text != "obj" {
		return nil, fmt.Errorf("object header not found at offset %d", off)
	}
	if int(numTok.Int) != wantNum {
		return nil, fmt.Errorf("object number mismatch at offset %d: want %d, found %d", off, wantNum, numTok.Int)
	}
	obj, err := ReadObject(s)
	if err != nil {
		return nil, err
	}

	save := s.Position()
	next, err := s.Next()
	if err != nil || next.Type != scanner.TokenKeyword || next.Text != "stream" {
		if err == nil {
			if seekErr := s.Seek(save); seekErr != nil {
				return nil, seekErr
			}
		}
		return obj, nil
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, fmt.Errorf("stream keyword without dictionary at offset %d", next.Pos)
	}
	s.SkipEOL()
	payload, err := p.readStreamData(data, table, s, dict)
	if err != nil {
		return nil, err
	}
	return &raw.StreamObj{Dict: dict, Data: payload}, nil
}

// readStreamData slices the stream payload, preferring the declared Length
// and falling back to an endstream search when the length is absent or
// inconsistent.
func (p *DocumentParser) readStreamData(data []byte, table *xref.Table, s *scanner.Scanner, dict *raw.DictObj) ([]byte, error) {
	start := s.Position()
	if n, ok := declaredLength(data, table, dict); ok {
		if start+n <= int64(len(data)) && endstreamFollows(data, start+n) {
			return s.ReadRaw(n)
		}
	}
	idx := bytes.Index(data[start:], []byte("endstream"))
	if idx < 0 {
		return nil, errors.New("endstream not found")
	}
	n := int64(idx)
	// An EOL precedes endstream; exclude it from the payload.
	if n > 0 && data[start+n-1] == '\n' {
		n--
	}
	if n > 0 && data[start+n-1] == '\r' {
		n--
	}
	return s.ReadRaw(n)
}

func declaredLength(data []byte, table *xref.Table, dict *raw.DictObj) (int64, bool) {
	obj, ok := dict.Get("Length")
	if !ok {
		return 0, false
	}
	switch v := obj.(type) {
	case raw.NumberObj:
		if v.Int() >= 0 {
			return v.Int(), true
		}
	case raw.RefObj:
		off, _, found := table.Lookup(v.R.Num)
		if !found {
			return 0, false
		}
		s := scanner.New(data)
		if err := s.Seek(off); err != nil {
			return 0, false
		}
		// Skip the "N G obj" header, then read the number.
		for i := 0; i < 3; i++ {
			if _, err := s.Next(); err != nil {
				return 0, false
			}
		}
		tok, err := s.Next()
		if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt || tok.Int < 0 {
			return 0, false
		}
		return tok.Int, true
	}
	return 0, false
}

func endstreamFollows(data []byte, pos int64) bool {
	for pos < int64(len(data)) {
		switch data[pos] {
		case 0, '\t', '\n', '\f', '\r', ' ':
			pos++
			continue
		}
		break
	}
	return pos+int64(len("endstream")) <= int64(len(data)) &&
		string(data[pos:pos+int64(len("endstream"))]) == "endstream"
}

// expandObjectStreams inflates /Type /ObjStm containers so files written
// with compressed object streams load fully. Entries from classic tables
// keep precedence.
func expandObjectStreams(ctx context.Context, doc *raw.Document) error {
	type container struct {
		ref    raw.ObjectRef
		stream *raw.StreamObj
	}
	var containers []container
	for ref, obj := range doc.Objects {
		if stream, ok := obj.(*raw.StreamObj); ok {
			if typ, _ := doc.GetName(stream.Dict, "Type"); typ == "ObjStm" {
				containers = append(containers, container{ref: ref, stream: stream})
			}
		}
	}
	for _, c := range containers {
		ref, stream := c.ref, c.stream
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		decoded, err := filters.Decode(doc, stream)
		if err != nil {
			return fmt.Errorf("decode object stream %s: %w", ref, err)
		}
		n, _ := doc.GetInt(stream.Dict, "N")
		first, _ := doc.GetInt(stream.Dict, "First")
		s := scanner.New(decoded)
		type slot struct {
			num int
			off int64
		}
		slots := make([]slot, 0, n)
		for i := int64(0); i < n; i++ {
			numTok, err := s.Next()
			if err != nil {
				return fmt.Errorf("object stream %s header: %w", ref, err)
			}
			offTok, err := s.Next()
			if err != nil {
				return fmt.Errorf("object stream %s header: %w", ref, err)
			}
			if !numTok.IsInt || !offTok.IsInt {
				return fmt.Errorf("object stream %s header malformed", ref)
			}
			slots = append(slots, slot{num: int(numTok.Int), off: offTok.Int})
		}
		for _, sl := range slots {
			target := raw.ObjectRef{Num: sl.num}
			if _, exists := doc.Objects[target]; exists {
				continue
			}
			if err := s.Seek(first + sl.off); err != nil {
				continue
			}
			inner, err := ReadObject(s)
			if err != nil {
				continue
			}
			doc.Put(target, inner)
		}
	}
	return nil
}

// ensureRoot guarantees the trailer names a catalog, synthesizing the entry
// after a repair scan of a file without a classic trailer.
func ensureRoot(doc *raw.Document) error {
	if root, ok := doc.GetDict(doc.Trailer, "Root"); ok && root != nil {
		return nil
	}
	for ref, obj := range doc.Objects {
		dict, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		if typ, _ := doc.GetName(dict, "Type"); typ == "Catalog" {
			doc.Trailer.Set("Root", raw.Ref(ref.Num, ref.Gen))
			return nil
		}
	}
	return errors.New("parser: document catalog not found")
}

func headerVersion(data []byte) (string, bool) {
	limit := len(data)
	if limit > 1024 {
		limit = 1024
	}
	idx := bytes.Index(data[:limit], []byte("%PDF-"))
	if idx < 0 {
		return "", false
	}
	end := idx + len("%PDF-")
	for end < len(data) && (data[end] == '.' || (data[end] >= '0' && data[end] <= '9')) {
		end++
	}
	version := string(data[idx+len("%PDF-") : end])
	if version == "" {
		return "", false
	}
	return version, true
}
