// Package filters implements the stream encodings the engine reads and
// writes: Flate, LZW, ASCIIHex, ASCII85 and RunLength.
package filters

import (
	"bytes"
	"compress/lzw"
	"compress/zlib"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/pdfuse/pdfuse/ir/raw"
)

// ErrUnsupportedFilter is returned for filters the engine cannot decode
// (DCTDecode and friends are passed through, not decoded here).
var ErrUnsupportedFilter = errors.New("filters: unsupported filter")

// Passthrough filters whose data is consumed by image codecs downstream.
var passthrough = map[string]bool{
	"DCTDecode":      true,
	"JPXDecode":      true,
	"JBIG2Decode":    true,
	"CCITTFaxDecode": true,
}

// IsPassthrough reports whether name is carried verbatim rather than decoded.
func IsPassthrough(name string) bool { return passthrough[name] }

// Names reads the Filter entry of a stream dictionary as a list.
func Names(doc *raw.Document, dict *raw.DictObj) []string {
	obj, ok := dict.Get("Filter")
	if !ok {
		return nil
	}
	switch f := doc.Resolve(obj).(type) {
	case raw.NameObj:
		return []string{f.Val}
	case *raw.ArrayObj:
		var names []string
		for _, item := range f.Items {
			if n, ok := doc.Resolve(item).(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
		return names
	}
	return nil
}

// Decode applies the stream's filter chain to its raw data. Streams whose
// final filter is an image codec are returned still wearing that filter;
// the caller checks IsPassthrough.
func Decode(doc *raw.Document, stream *raw.StreamObj) ([]byte, error) {
	data := stream.Data
	for _, name := range Names(doc, stream.Dict) {
		if IsPassthrough(name) {
			return data, nil
		}
		out, err := decodeOne(name, data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		data = out
	}
	return data, nil
}

func decodeOne(name string, in []byte) ([]byte, error) {
	switch name {
	case "FlateDecode", "Fl":
		r, err := zlib.NewReader(bytes.NewReader(in))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		var out bytes.Buffer
		if _, err := io.Copy(&out, r); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	case "LZWDecode", "LZW":
		r := lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
		defer r.Close()
		var out bytes.Buffer
		if _, err := io.Copy(&out, r); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
		return out.Bytes(), nil
	case "ASCIIHexDecode", "AHx":
		trimmed := whitespaceStripped(in)
		if i := bytes.IndexByte(trimmed, '>'); i >= 0 {
			trimmed = trimmed[:i]
		}
		if len(trimmed)%2 == 1 {
			trimmed = append(trimmed, '0')
		}
		out := make([]byte, hex.DecodedLen(len(trimmed)))
		n, err := hex.Decode(out, trimmed)
		if err != nil {
			return nil, err
		}
		return out[:n], nil
	case "ASCII85Decode", "A85":
		trimmed := bytes.TrimSpace(in)
		if bytes.HasPrefix(trimmed, []byte("<~")) {
			trimmed = trimmed[2:]
		}
		if bytes.HasSuffix(trimmed, []byte("~>")) {
			trimmed = trimmed[:len(trimmed)-2]
		}
		out := make([]byte, len(trimmed)*2)
		n, _, err := stdascii85.Decode(out, trimmed, true)
		if err != nil {
			return nil, err
		}
		return out[:n], nil
	case "RunLengthDecode", "RL":
		return runLengthDecode(in)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
	}
}

func whitespaceStripped(in []byte) []byte {
	out := make([]byte, 0, len(in))
	for _, c := range in {
		switch c {
		case ' ', '\t', '\r', '\n', '\f', 0:
		default:
			out = append(out, c)
		}
	}
	return out
}

func runLengthDecode(in []byte) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		length := int(in[i])
		i++
		switch {
		case length == 128:
			return out.Bytes(), nil
		case length < 128:
			end := i + length + 1
			if end > len(in) {
				return nil, errors.New("run length literal overruns input")
			}
			out.Write(in[i:end])
			i = end
		default:
			if i >= len(in) {
				return nil, errors.New("run length repeat overruns input")
			}
			for j := 0; j < 257-length; j++ {
				out.WriteByte(in[i])
			}
			i++
		}
	}
	return out.Bytes(), nil
}

// EncodeFlate compresses data with zlib at the given level (1-9; out of
// range values fall back to the default level).
func EncodeFlate(data []byte, level int) ([]byte, error) {
	if level < zlib.BestSpeed || level > zlib.BestCompression {
		level = zlib.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
