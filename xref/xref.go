// Package xref locates and parses cross-reference information. It is purely
// tabular: trailer dictionaries are parsed by the object layer above.
package xref

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Entry records the byte offset and generation of one indirect object.
type Entry struct {
	Offset int64
	Gen    int
}

// Table holds object offsets for a classic xref table.
type Table struct {
	entries map[int]Entry
}

func NewTable() *Table { return &Table{entries: make(map[int]Entry)} }

func (t *Table) Lookup(objNum int) (offset int64, gen int, found bool) {
	e, ok := t.entries[objNum]
	if !ok {
		return 0, 0, false
	}
	return e.Offset, e.Gen, true
}

func (t *Table) Set(objNum int, e Entry) { t.entries[objNum] = e }
func (t *Table) Len() int                { return len(t.entries) }

// Objects returns all object numbers in ascending order.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// Merge folds entries from an older table into t. Existing (newer) entries
// win, matching incremental-update precedence.
func (t *Table) Merge(older *Table) {
	if older == nil {
		return
	}
	for num, e := range older.entries {
		if _, ok := t.entries[num]; !ok {
			t.entries[num] = e
		}
	}
}

// Startxref returns the offset recorded by the final startxref keyword.
func Startxref(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := data[idx+len("startxref"):]
	for _, line := range strings.Split(string(firstN(rest, 64)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		off, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse startxref: %w", err)
		}
		if off <= 0 || off >= int64(len(data)) {
			return 0, fmt.Errorf("xref offset out of range: %d", off)
		}
		return off, nil
	}
	return 0, errors.New("startxref value missing")
}

func firstN(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// ParseSection parses the classic xref section at off. It returns the
// section's table and the offset of the trailer dictionary that follows, or
// -1 when the section carries no trailer (cross-reference stream files).
func ParseSection(data []byte, off int64) (*Table, int64, error) {
	if off < 0 || off >= int64(len(data)) {
		return nil, -1, fmt.Errorf("xref offset out of range: %d", off)
	}
	pos := skipWS(data, off)
	if !hasKeywordAt(data, pos, "xref") {
		return nil, -1, errors.New("xref keyword not found at offset")
	}
	pos = skipWS(data, pos+4)

	t := NewTable()
	for {
		if hasKeywordAt(data, pos, "trailer") {
			return t, skipWS(data, pos+int64(len("trailer"))), nil
		}
		start, next, ok := readInt(data, pos)
		if !ok {
			// No trailer keyword and no further subsection: tolerate
			// truncated sections rather than failing the whole parse.
			return t, -1, nil
		}
		count, next2, ok := readInt(data, skipWS(data, next))
		if !ok {
			return nil, -1, fmt.Errorf("invalid xref subsection header near offset %d", pos)
		}
		pos = skipWS(data, next2)
		for i := int64(0); i < count; i++ {
			if pos >= int64(len(data)) {
				return nil, -1, errors.New("unexpected end of xref section")
			}
			lineEnd := advanceEntry(data, pos)
			fields := strings.Fields(string(data[pos:lineEnd]))
			if len(fields) < 3 {
				return nil, -1, fmt.Errorf("invalid xref entry: %q", strings.TrimSpace(string(data[pos:lineEnd])))
			}
			entryOff, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil {
				return nil, -1, fmt.Errorf("parse xref offset: %w", err)
			}
			gen, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, -1, fmt.Errorf("parse xref gen: %w", err)
			}
			if fields[2] == "n" {
				num := int(start + i)
				if _, exists := t.entries[num]; !exists {
					t.Set(num, Entry{Offset: entryOff, Gen: gen})
				}
			}
			pos = lineEnd
		}
		pos = skipWS(data, pos)
	}
}

// advanceEntry steps past one 20-byte xref entry, tolerating writers that
// emit 19-byte entries with a single-byte line end.
func advanceEntry(data []byte, pos int64) int64 {
	end := pos
	for end < int64(len(data)) && data[end] != '\n' && data[end] != '\r' {
		end++
	}
	for end < int64(len(data)) && (data[end] == '\n' || data[end] == '\r') {
		end++
	}
	return end
}

func skipWS(data []byte, pos int64) int64 {
	for pos < int64(len(data)) {
		switch data[pos] {
		case 0, '\t', '\n', '\f', '\r', ' ':
			pos++
		default:
			return pos
		}
	}
	return pos
}

func hasKeywordAt(data []byte, pos int64, kw string) bool {
	end := pos + int64(len(kw))
	return end <= int64(len(data)) && string(data[pos:end]) == kw
}

func readInt(data []byte, pos int64) (val int64, next int64, ok bool) {
	end := pos
	for end < int64(len(data)) && data[end] >= '0' && data[end] <= '9' {
		end++
	}
	if end == pos {
		return 0, pos, false
	}
	v, err := strconv.ParseInt(string(data[pos:end]), 10, 64)
	if err != nil {
		return 0, pos, false
	}
	return v, end, true
}
