package optimize

import (
	"context"

	"github.com/pdfuse/pdfuse/filters"
	"github.com/pdfuse/pdfuse/ir/raw"
)

// Streams below this size rarely shrink enough to pay for the header.
const minCompressSize = 64

// compressStreams flate-encodes streams that are still unfiltered.
// Font files are gated separately so a profile can keep text cheap while
// leaving fonts alone (or vice versa).
func (o *Optimizer) compressStreams(ctx context.Context, doc *raw.Document) error {
	for _, obj := range doc.Objects {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		stream, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if len(filters.Names(doc, stream.Dict)) > 0 {
			continue
		}
		if len(stream.Data) < minCompressSize {
			continue
		}
		if isFontFile(doc, stream.Dict) {
			if !o.profile.CompressFonts {
				continue
			}
		} else if !o.profile.Compress {
			continue
		}
		encoded, err := filters.EncodeFlate(stream.Data, o.profile.Level)
		if err != nil {
			return err
		}
		if len(encoded) >= len(stream.Data) {
			continue
		}
		stream.Data = encoded
		stream.Dict.Set("Filter", raw.Name("FlateDecode"))
		stream.Dict.Set("Length", raw.Int(int64(len(encoded))))
	}
	return nil
}

// isFontFile recognizes embedded font program streams by their
// descriptor-only keys.
func isFontFile(doc *raw.Document, dict *raw.DictObj) bool {
	if _, ok := dict.Get("Length1"); ok {
		return true
	}
	if subtype, _ := doc.GetName(dict, "Subtype"); subtype != "" {
		switch subtype {
		case "Type1C", "CIDFontType0C", "OpenType":
			return true
		}
	}
	return false
}
