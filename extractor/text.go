package extractor

import (
	"io"
	"strings"

	"github.com/pdfuse/pdfuse/filters"
	"github.com/pdfuse/pdfuse/ir/raw"
	"github.com/pdfuse/pdfuse/scanner"
	"golang.org/x/text/encoding/unicode"
)

// PageText returns best-effort text for one page by scanning the show
// operators of its content streams. Character decoding ignores font
// encodings; good enough for previews and emptiness checks.
func (e *Extractor) PageText(pageIndex int) (string, error) {
	runs, err := e.PageTextRuns(pageIndex)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, run := range runs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(run.Text)
	}
	return strings.TrimSpace(b.String()), nil
}

// TextRun is one text-showing operation with its approximate position in
// unrotated page space.
type TextRun struct {
	Text string
	X, Y float64
	Size float64
}

// PageTextRuns scans content streams for text-positioning and text-showing
// operators, tracking enough state (Td/TD/Tm/T*) to place each run.
func (e *Extractor) PageTextRuns(pageIndex int) ([]TextRun, error) {
	page, err := e.doc.Page(pageIndex)
	if err != nil {
		return nil, err
	}
	blobs, err := e.contentStreams(page.Dict)
	if err != nil {
		return nil, err
	}
	var runs []TextRun
	for _, data := range blobs {
		runs = append(runs, scanTextRuns(data)...)
	}
	return runs, nil
}

func (e *Extractor) contentStreams(pageDict *raw.DictObj) ([][]byte, error) {
	obj, ok := pageDict.Get("Contents")
	if !ok {
		return nil, nil
	}
	var blobs [][]byte
	appendStream := func(o raw.Object) {
		if st, ok := e.raw.Resolve(o).(*raw.StreamObj); ok {
			if data, err := filters.Decode(e.raw, st); err == nil {
				blobs = append(blobs, data)
			}
		}
	}
	switch v := e.raw.Resolve(obj).(type) {
	case *raw.StreamObj:
		appendStream(obj)
	case *raw.ArrayObj:
		for _, item := range v.Items {
			appendStream(item)
		}
	}
	return blobs, nil
}

// scanTextRuns is a single pass over one decoded content stream. Operands
// accumulate until an operator consumes them, mirroring PDF's postfix
// syntax.
func scanTextRuns(data []byte) []TextRun {
	s := scanner.New(data)
	var runs []TextRun
	var operands []scanner.Token
	var arrays [][]scanner.Token
	var curArray []scanner.Token
	inArray := false

	x, y := 0.0, 0.0
	lineX, lineY := 0.0, 0.0
	leading := 0.0
	size := 0.0

	flushText := func(text string) {
		if text == "" {
			return
		}
		runs = append(runs, TextRun{Text: text, X: x, Y: y, Size: size})
	}
	numOperand := func(idx int) float64 {
		// idx counts back from the end: 1 is the last operand.
		if len(operands) < idx {
			return 0
		}
		tok := operands[len(operands)-idx]
		if tok.Type != scanner.TokenNumber {
			return 0
		}
		if tok.IsInt {
			return float64(tok.Int)
		}
		return tok.Float
	}

	for {
		tok, err := s.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			// Binary inline-image data and similar; stop scanning this
			// stream rather than misread it.
			break
		}
		switch tok.Type {
		case scanner.TokenArrayStart:
			inArray = true
			curArray = nil
			continue
		case scanner.TokenArrayEnd:
			inArray = false
			arrays = append(arrays, curArray)
			continue
		case scanner.TokenKeyword:
			switch tok.Text {
			case "BT":
				x, y, lineX, lineY = 0, 0, 0, 0
			case "Td":
				lineX += numOperand(2)
				lineY += numOperand(1)
				x, y = lineX, lineY
			case "TD":
				leading = -numOperand(1)
				lineX += numOperand(2)
				lineY += numOperand(1)
				x, y = lineX, lineY
			case "Tm":
				lineX = numOperand(2)
				lineY = numOperand(1)
				x, y = lineX, lineY
			case "T*":
				lineY -= leading
				x, y = lineX, lineY
			case "TL":
				leading = numOperand(1)
			case "Tf":
				size = numOperand(1)
			case "Tj", "'", "\"":
				if tok.Text != "Tj" {
					lineY -= leading
					x, y = lineX, lineY
				}
				if len(operands) > 0 {
					last := operands[len(operands)-1]
					if last.Type == scanner.TokenString {
						flushText(decodeShownText(last))
					}
				}
			case "TJ":
				if len(arrays) > 0 {
					var b strings.Builder
					for _, item := range arrays[len(arrays)-1] {
						if item.Type == scanner.TokenString {
							b.WriteString(decodeShownText(item))
						}
					}
					flushText(b.String())
				}
			case "BI":
				// Inline image: data until EI is not token-safe. Skip
				// ahead past the terminator.
				if !skipInlineImage(s) {
					return runs
				}
			}
			operands = operands[:0]
			arrays = arrays[:0]
		default:
			if inArray {
				curArray = append(curArray, tok)
			} else {
				operands = append(operands, tok)
			}
		}
	}
	return runs
}

func skipInlineImage(s *scanner.Scanner) bool {
	// Scan raw bytes for the EI terminator. Each byte is examined once;
	// the byte after an E may itself start the terminator.
	var prev byte
	for s.Position() < s.Len() {
		chunk, err := s.ReadRaw(1)
		if err != nil {
			return false
		}
		if prev == 'E' && chunk[0] == 'I' {
			return true
		}
		prev = chunk[0]
	}
	return false
}

func decodeShownText(tok scanner.Token) string {
	return DecodeTextString(tok.Bytes)
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)

// DecodeTextString interprets a PDF text string: UTF-16BE when it carries a
// byte-order mark, byte-per-char otherwise.
func DecodeTextString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		if decoded, err := utf16be.NewDecoder().Bytes(b); err == nil {
			return string(decoded)
		}
	}
	return string(b)
}

// PageHasGraphics reports whether the page's resources include image or
// form XObjects. Used to keep the blank-page heuristic from discarding a
// page that is visually non-empty but textless.
func (e *Extractor) PageHasGraphics(pageIndex int) (bool, error) {
	page, err := e.doc.Page(pageIndex)
	if err != nil {
		return false, err
	}
	res, ok := e.raw.GetDict(page.Dict, "Resources")
	if !ok {
		return false, nil
	}
	xobjects, ok := e.raw.GetDict(res, "XObject")
	if !ok {
		return false, nil
	}
	return xobjects.Len() > 0, nil
}

// HasAnnotations reports whether the page carries any annotations.
func (e *Extractor) HasAnnotations(pageIndex int) (bool, error) {
	items, err := e.doc.PageAnnotations(pageIndex)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}
