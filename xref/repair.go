package xref

import "errors"

// Repair reconstructs a table by scanning the whole buffer for
// "<num> <gen> obj" headers. Used when the startxref chain is damaged or
// when the file uses structures the resolver does not understand; the
// object loader works from offsets alone, so a full scan recovers
// everything reachable.
func Repair(data []byte) (*Table, error) {
	t := NewTable()
	for pos := int64(0); pos+3 <= int64(len(data)); pos++ {
		if data[pos] != 'o' || !hasKeywordAt(data, pos, "obj") {
			continue
		}
		// "obj" must be its own token.
		after := pos + 3
		if after < int64(len(data)) && !isDelim(data[after]) {
			continue
		}
		genEnd := rewindWS(data, pos)
		genStart := rewindDigits(data, genEnd)
		if genStart == genEnd {
			continue
		}
		numEnd := rewindWS(data, genStart)
		numStart := rewindDigits(data, numEnd)
		if numStart == numEnd {
			continue
		}
		num, _, ok := readInt(data, numStart)
		if !ok {
			continue
		}
		gen, _, ok := readInt(data, genStart)
		if !ok {
			continue
		}
		// Later definitions win: incremental updates append.
		t.Set(int(num), Entry{Offset: numStart, Gen: int(gen)})
		pos = after
	}
	if t.Len() == 0 {
		return nil, errors.New("no indirect objects found")
	}
	return t, nil
}

func isDelim(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ', '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// rewindWS steps left over whitespace, returning the exclusive end of the
// preceding token.
func rewindWS(data []byte, pos int64) int64 {
	for pos > 0 {
		switch data[pos-1] {
		case 0, '\t', '\n', '\f', '\r', ' ':
			pos--
		default:
			return pos
		}
	}
	return pos
}

// rewindDigits steps left over decimal digits, returning the token start.
func rewindDigits(data []byte, end int64) int64 {
	start := end
	for start > 0 && data[start-1] >= '0' && data[start-1] <= '9' {
		start--
	}
	return start
}
