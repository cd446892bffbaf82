package parser

import (
	"fmt"
	"io"

	"github.com/pdfuse/pdfuse/ir/raw"
	"github.com/pdfuse/pdfuse/scanner"
)

// ReadObject reads one complete object at the scanner's position.
func ReadObject(s *scanner.Scanner) (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return readObjectFrom(s, tok)
}

func readObjectFrom(s *scanner.Scanner, tok scanner.Token) (raw.Object, error) {
	switch tok.Type {
	case scanner.TokenNumber:
		if !tok.IsInt {
			return raw.Float(tok.Float), nil
		}
		return maybeReference(s, tok)
	case scanner.TokenString:
		if tok.Hex {
			return raw.HexStr(tok.Bytes), nil
		}
		return raw.Str(tok.Bytes), nil
	case scanner.TokenName:
		return raw.Name(tok.Text), nil
	case scanner.TokenArrayStart:
		arr := raw.NewArray()
		for {
			next, err := s.Next()
			if err != nil {
				if err == io.EOF {
					return nil, fmt.Errorf("unterminated array at offset %d", tok.Pos)
				}
				return nil, err
			}
			if next.Type == scanner.TokenArrayEnd {
				return arr, nil
			}
			item, err := readObjectFrom(s, next)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case scanner.TokenDictStart:
		dict := raw.Dict()
		for {
			next, err := s.Next()
			if err != nil {
				if err == io.EOF {
					return nil, fmt.Errorf("unterminated dictionary at offset %d", tok.Pos)
				}
				return nil, err
			}
			if next.Type == scanner.TokenDictEnd {
				return dict, nil
			}
			if next.Type != scanner.TokenName {
				return nil, fmt.Errorf("dictionary key is not a name at offset %d", next.Pos)
			}
			val, err := ReadObject(s)
			if err != nil {
				return nil, err
			}
			dict.Set(next.Text, val)
		}
	case scanner.TokenKeyword:
		switch tok.Text {
		case "true":
			return raw.Bool(true), nil
		case "false":
			return raw.Bool(false), nil
		case "null":
			return raw.NullObj{}, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q at offset %d", tok.Text, tok.Pos)
	default:
		return nil, fmt.Errorf("unexpected token at offset %d", tok.Pos)
	}
}

// maybeReference disambiguates "N" from "N G R". The scanner has no peek,
// so the lookahead rewinds on mismatch.
func maybeReference(s *scanner.Scanner, num scanner.Token) (raw.Object, error) {
	save := s.Position()
	gen, err := s.Next()
	if err == nil && gen.Type == scanner.TokenNumber && gen.IsInt && gen.Int >= 0 {
		t3, err := s.Next()
		if err == nil && t3.Type == scanner.TokenKeyword && t3.Text == "R" {
			return raw.Ref(int(num.Int), int(gen.Int)), nil
		}
	}
	if err := s.Seek(save); err != nil {
		return nil, err
	}
	return raw.Int(num.Int), nil
}
