// Package optimize applies a named compression profile to a document
// before serialization: stream compression, image downsampling and
// recompression, and the unreferenced-object collection flag the writer
// honors.
package optimize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Profile is a parsed compression profile. The wire form is an opaque
// preset string of comma-separated flags and key=value pairs, e.g.
// "garbage,compress,compress-fonts,image-dpi=144,image-quality=80,recompress=jpeg".
type Profile struct {
	Garbage       bool    // drop objects unreachable from the trailer
	Compress      bool    // flate-compress unfiltered non-font streams
	CompressFonts bool    // flate-compress embedded font files
	ImageDPI      float64 // downsample images above this density; 0 keeps
	ImageQuality  int     // JPEG quality for recompressed images (1-100)
	Recompress    string  // lossy recompression method: "jpeg" or ""
	Level         int     // zlib level for flate encoding
}

// Default returns the profile used by the merge and rotate operations.
func Default() Profile {
	return Profile{
		Garbage:       true,
		Compress:      true,
		CompressFonts: true,
		ImageDPI:      144,
		ImageQuality:  80,
		Recompress:    "jpeg",
		Level:         9,
	}
}

// Parse decodes a profile string. Unknown entries are rejected so preset
// typos fail loudly instead of silently skipping work.
func Parse(s string) (Profile, error) {
	var p Profile
	p.Level = 9
	p.ImageQuality = 80
	if strings.TrimSpace(s) == "" {
		return p, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		key, val, hasVal := strings.Cut(part, "=")
		switch key {
		case "garbage":
			p.Garbage = true
		case "compress":
			p.Compress = true
		case "compress-fonts":
			p.CompressFonts = true
		case "image-dpi":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil || f < 0 {
				return Profile{}, fmt.Errorf("optimize: bad image-dpi %q", val)
			}
			p.ImageDPI = f
		case "image-quality":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 || n > 100 {
				return Profile{}, fmt.Errorf("optimize: bad image-quality %q", val)
			}
			p.ImageQuality = n
		case "recompress":
			if val != "jpeg" {
				return Profile{}, fmt.Errorf("optimize: unknown recompress method %q", val)
			}
			p.Recompress = val
		case "level":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 || n > 9 {
				return Profile{}, fmt.Errorf("optimize: bad level %q", val)
			}
			p.Level = n
		default:
			if hasVal {
				return Profile{}, fmt.Errorf("optimize: unknown option %q", key)
			}
			return Profile{}, fmt.Errorf("optimize: unknown flag %q", part)
		}
	}
	return p, nil
}

func (p Profile) String() string {
	var parts []string
	if p.Garbage {
		parts = append(parts, "garbage")
	}
	if p.Compress {
		parts = append(parts, "compress")
	}
	if p.CompressFonts {
		parts = append(parts, "compress-fonts")
	}
	if p.ImageDPI > 0 {
		parts = append(parts, fmt.Sprintf("image-dpi=%g", p.ImageDPI))
	}
	if p.ImageQuality > 0 {
		parts = append(parts, fmt.Sprintf("image-quality=%d", p.ImageQuality))
	}
	if p.Recompress != "" {
		parts = append(parts, "recompress="+p.Recompress)
	}
	if p.Level > 0 {
		parts = append(parts, fmt.Sprintf("level=%d", p.Level))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
