package optimize

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/pdfuse/pdfuse/filters"
	"github.com/pdfuse/pdfuse/ir/raw"
)

// Assumed maximum display width of an image, in inches. Without tracing
// content streams for actual placement, a full letter-width spread is the
// conservative bound: images displayed smaller are downsampled less than
// they could be, never more.
const assumedDisplayInches = 8.5

// optimizeImages downsamples oversized image XObjects and recompresses
// them with the profile's lossy method. Images the engine cannot decode
// losslessly round-trip untouched.
func (o *Optimizer) optimizeImages(ctx context.Context, doc *raw.Document) error {
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
		if subtype, _ := doc.GetName(stream.Dict, "Subtype"); subtype != "Image" {
			continue
		}
		o.processImage(doc, stream)
	}
	return nil
}

// processImage is best-effort: any condition it does not understand means
// the image is kept as-is.
func (o *Optimizer) processImage(doc *raw.Document, stream *raw.StreamObj) {
	img, ok := decodeImage(doc, stream)
	if !ok {
		return
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	maxDim := 0
	if o.profile.ImageDPI > 0 {
		maxDim = int(o.profile.ImageDPI * assumedDisplayInches)
	}
	resized := false
	if maxDim > 0 && (width > maxDim || height > maxDim) {
		scale := float64(maxDim) / float64(width)
		if height > width {
			scale = float64(maxDim) / float64(height)
		}
		dst := image.NewRGBA(image.Rect(0, 0, int(float64(width)*scale), int(float64(height)*scale)))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
		width, height = dst.Bounds().Dx(), dst.Bounds().Dy()
		resized = true
	}

	if o.profile.Recompress != "jpeg" && !resized {
		return
	}
	quality := o.profile.ImageQuality
	if quality <= 0 {
		quality = 80
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return
	}
	// Only swap the payload in when it actually got smaller.
	if buf.Len() >= len(stream.Data) && !resized {
		return
	}
	stream.Data = buf.Bytes()
	stream.Dict.Set("Filter", raw.Name("DCTDecode"))
	stream.Dict.Delete("DecodeParms")
	stream.Dict.Delete("Decode")
	stream.Dict.Delete("SMask")
	stream.Dict.Set("ColorSpace", raw.Name("DeviceRGB"))
	stream.Dict.Set("BitsPerComponent", raw.Int(8))
	stream.Dict.Set("Width", raw.Int(int64(width)))
	stream.Dict.Set("Height", raw.Int(int64(height)))
	stream.Dict.Set("Length", raw.Int(int64(len(stream.Data))))
}

// decodeImage handles the encodings the engine understands: DCT-compressed
// images and raw 8-bit gray/RGB samples (optionally flate-wrapped).
func decodeImage(doc *raw.Document, stream *raw.StreamObj) (image.Image, bool) {
	if _, hasParms := stream.Dict.Get("DecodeParms"); hasParms {
		return nil, false
	}
	if _, hasMask := stream.Dict.Get("SMask"); hasMask {
		// Recompressing to opaque JPEG would discard transparency.
		return nil, false
	}
	names := filters.Names(doc, stream.Dict)
	if len(names) == 1 && names[0] == "DCTDecode" {
		img, err := jpeg.Decode(bytes.NewReader(stream.Data))
		if err != nil {
			return nil, false
		}
		return img, true
	}
	if len(names) > 1 {
		return nil, false
	}
	if len(names) == 1 && names[0] != "FlateDecode" && names[0] != "Fl" {
		return nil, false
	}
	bpc, _ := doc.GetInt(stream.Dict, "BitsPerComponent")
	if bpc != 8 {
		return nil, false
	}
	cs, _ := doc.GetName(stream.Dict, "ColorSpace")
	width, _ := doc.GetInt(stream.Dict, "Width")
	height, _ := doc.GetInt(stream.Dict, "Height")
	if width <= 0 || height <= 0 {
		return nil, false
	}
	data, err := filters.Decode(doc, stream)
	if err != nil {
		return nil, false
	}
	w, h := int(width), int(height)
	switch cs {
	case "DeviceGray":
		if len(data) < w*h {
			return nil, false
		}
		img := image.NewGray(image.Rect(0, 0, w, h))
		copy(img.Pix, data[:w*h])
		return img, true
	case "DeviceRGB":
		if len(data) < w*h*3 {
			return nil, false
		}
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := 0; i < w*h; i++ {
			img.Pix[i*4] = data[i*3]
			img.Pix[i*4+1] = data[i*3+1]
			img.Pix[i*4+2] = data[i*3+2]
			img.Pix[i*4+3] = 0xFF
		}
		return img, true
	}
	return nil, false
}
