// Package render rasterizes the first page of a document into a PNG
// preview, returned as a data URI for direct embedding.
package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/pdfuse/pdfuse/document"
	"github.com/pdfuse/pdfuse/extractor"
	"github.com/pdfuse/pdfuse/geo"
)

const defaultWidth = 480

// Config controls rasterization.
type Config struct {
	// Width is the output image width in pixels. Height follows the
	// page's aspect ratio. Zero means the default preview width.
	Width int
}

var (
	fontOnce sync.Once
	fontFace *truetype.Font
	fontErr  error
)

func previewFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		fontFace, fontErr = freetype.ParseFont(goregular.TTF)
	})
	return fontFace, fontErr
}

// FirstPage renders the first page of a serialized document with the
// default configuration.
func FirstPage(ctx context.Context, data []byte) (string, error) {
	return FirstPageWith(ctx, data, Config{})
}

// FirstPageWith renders the first page of a serialized document.
//
// The preview is an approximation: text runs are drawn in a substitute
// face at their recorded positions, and link regions are outlined.
// Embedded images and vector content are not rasterized.
func FirstPageWith(ctx context.Context, data []byte, cfg Config) (string, error) {
	doc, err := document.Open(ctx, data)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	defer doc.Close()
	page, err := doc.Page(0)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}

	box := page.CropBox
	if box.IsZero() {
		box = page.MediaBox
	}
	pw, ph := box.Width(), box.Height()
	if pw <= 0 || ph <= 0 {
		return "", fmt.Errorf("render: degenerate page box %v", box)
	}
	// Quarter-turn rotations swap the displayed dimensions.
	rotated := page.Rotate == 90 || page.Rotate == 270
	dw, dh := pw, ph
	if rotated {
		dw, dh = ph, pw
	}

	width := cfg.Width
	if width <= 0 {
		width = defaultWidth
	}
	scale := float64(width) / dw
	height := int(dh*scale + 0.5)
	if height < 1 {
		height = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	ex, err := extractor.New(doc)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	runs, err := ex.PageTextRuns(0)
	if err == nil && len(runs) > 0 {
		if err := drawRuns(img, runs, box, page.Rotate, scale); err != nil {
			return "", fmt.Errorf("render: %w", err)
		}
	}
	if links, err := ex.PageLinks(0); err == nil {
		for _, link := range links {
			outlineRect(img, project(link.Rect, box, page.Rotate, scale), color.RGBA{R: 0x33, G: 0x66, B: 0xCC, A: 0xFF})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("render: encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func drawRuns(img *image.RGBA, runs []extractor.TextRun, box geo.Rect, rotate int, scale float64) error {
	f, err := previewFont()
	if err != nil {
		return err
	}
	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(image.Black)
	for _, run := range runs {
		if run.Text == "" {
			continue
		}
		size := run.Size
		if size <= 0 {
			size = 12
		}
		c.SetFontSize(size * scale)
		x, y := projectPoint(run.X, run.Y, box, rotate, scale)
		pt := freetype.Pt(int(x+0.5), int(y+0.5))
		if _, err := c.DrawString(run.Text, pt); err != nil {
			return err
		}
	}
	return nil
}

// projectPoint maps a page-space point to image pixels, honoring the
// page rotation. Page space is bottom-up, image space top-down.
func projectPoint(x, y float64, box geo.Rect, rotate int, scale float64) (float64, float64) {
	// Normalize into the box first.
	px, py := x-box.LLX, y-box.LLY
	w, h := box.Width(), box.Height()
	var dx, dy float64
	switch rotate {
	case 90:
		dx, dy = h-py, w-px
	case 180:
		dx, dy = w-px, py
	case 270:
		dx, dy = py, px
	default:
		dx, dy = px, h-py
	}
	return dx * scale, dy * scale
}

func project(r geo.Rect, box geo.Rect, rotate int, scale float64) image.Rectangle {
	x0, y0 := projectPoint(r.LLX, r.LLY, box, rotate, scale)
	x1, y1 := projectPoint(r.URX, r.URY, box, rotate, scale)
	return image.Rect(int(x0+0.5), int(y0+0.5), int(x1+0.5), int(y1+0.5)).Canon()
}

func outlineRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}
