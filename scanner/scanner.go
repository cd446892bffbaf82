// Package scanner tokenizes PDF syntax. Documents arrive as in-memory byte
// buffers, so the scanner works over a single slice rather than a windowed
// reader.
package scanner

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenDictStart  TokenType = iota // '<<'
	TokenDictEnd                     // '>>'
	TokenArrayStart                  // '['
	TokenArrayEnd                    // ']'
	TokenName                        // '/Name'
	TokenString                      // literal or hex string
	TokenNumber                      // numeric value
	TokenKeyword                     // obj, endobj, stream, R, true, null, ...
)

type Token struct {
	Type  TokenType
	Pos   int64
	Int   int64
	Float float64
	IsInt bool
	Bytes []byte // string payload
	Hex   bool   // string was hex notation
	Text  string // name value or keyword text
}

type Scanner struct {
	data []byte
	pos  int64
}

func New(data []byte) *Scanner { return &Scanner{data: data} }

func (s *Scanner) Position() int64 { return s.pos }
func (s *Scanner) Len() int64      { return int64(len(s.data)) }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek out of range: %d", offset)
	}
	s.pos = offset
	return nil
}

// ReadRaw returns n bytes at the current position and advances past them.
// Used for stream payloads, which are not tokenized.
func (s *Scanner) ReadRaw(n int64) ([]byte, error) {
	if n < 0 || s.pos+n > int64(len(s.data)) {
		return nil, errors.New("stream data overruns input")
	}
	out := s.data[s.pos : s.pos+n]
	s.pos += n
	return out, nil
}

// SkipEOL consumes a single end-of-line sequence, as required after the
// stream keyword.
func (s *Scanner) SkipEOL() {
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
}

func isWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) peekAhead(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDictStart, Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return Token{Type: TokenDictEnd, Pos: start}, nil
		}
		return Token{}, fmt.Errorf("unexpected '>' at offset %d", start)
	case '[':
		s.pos++
		return Token{Type: TokenArrayStart, Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenArrayEnd, Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	case '{', '}', ')':
		return Token{}, fmt.Errorf("unexpected %q at offset %d", c, start)
	}
	if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
		return s.scanNumber()
	}
	return s.scanKeyword()
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var out []byte
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) {
			hi := hexVal(s.data[s.pos+1])
			lo := hexVal(s.data[s.pos+2])
			if hi >= 0 && lo >= 0 {
				out = append(out, byte(hi<<4|lo))
				s.pos += 3
				continue
			}
		}
		out = append(out, c)
		s.pos++
	}
	return Token{Type: TokenName, Pos: start, Text: string(out)}, nil
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

func (s *Scanner) scanNumber() (Token, error) {
	start := s.pos
	end := s.pos
	real := false
	for end < int64(len(s.data)) {
		c := s.data[end]
		if c == '.' {
			real = true
			end++
			continue
		}
		if c == '+' || c == '-' || (c >= '0' && c <= '9') {
			end++
			continue
		}
		break
	}
	text := string(s.data[start:end])
	s.pos = end
	if !real {
		i, err := strconv.ParseInt(text, 10, 64)
		if err == nil {
			return Token{Type: TokenNumber, Pos: start, Int: i, IsInt: true}, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, fmt.Errorf("malformed number %q at offset %d", text, start)
	}
	return Token{Type: TokenNumber, Pos: start, Float: f}, nil
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	end := s.pos
	for end < int64(len(s.data)) {
		c := s.data[end]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		end++
	}
	if end == start {
		return Token{}, fmt.Errorf("unexpected byte %q at offset %d", s.data[start], start)
	}
	s.pos = end
	return Token{Type: TokenKeyword, Pos: start, Text: string(s.data[start:end])}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	var out []byte
	depth := 1
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= int64(len(s.data)) {
				return Token{}, errors.New("unterminated string escape")
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\r':
				// line continuation; swallow optional LF
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
						d := s.data[s.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						s.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Pos: start, Bytes: out}, nil
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return Token{}, fmt.Errorf("unterminated string at offset %d", start)
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var out []byte
	hi := -1
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if hi >= 0 {
				out = append(out, byte(hi<<4))
			}
			return Token{Type: TokenString, Pos: start, Bytes: out, Hex: true}, nil
		}
		if isWhitespace(c) {
			continue
		}
		v := hexVal(c)
		if v < 0 {
			return Token{}, fmt.Errorf("invalid hex digit %q at offset %d", c, s.pos-1)
		}
		if hi < 0 {
			hi = v
		} else {
			out = append(out, byte(hi<<4|v))
			hi = -1
		}
	}
	return Token{}, fmt.Errorf("unterminated hex string at offset %d", start)
}
