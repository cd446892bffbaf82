package optimize

import (
	"context"
	"fmt"

	"github.com/pdfuse/pdfuse/ir/raw"
)

// Optimizer rewrites streams in place according to a profile. Garbage
// collection itself happens in the writer, which consults
// Profile.Garbage; everything stream-shaped happens here.
type Optimizer struct {
	profile Profile
}

func New(profile Profile) *Optimizer { return &Optimizer{profile: profile} }

func (o *Optimizer) Profile() Profile { return o.profile }

// Apply runs the profile's stream transforms over the document.
func (o *Optimizer) Apply(ctx context.Context, doc *raw.Document) error {
	if o.profile.ImageDPI > 0 || o.profile.Recompress != "" {
		if err := o.optimizeImages(ctx, doc); err != nil {
			return fmt.Errorf("optimize images: %w", err)
		}
	}
	if o.profile.Compress || o.profile.CompressFonts {
		if err := o.compressStreams(ctx, doc); err != nil {
			return fmt.Errorf("compress streams: %w", err)
		}
	}
	return nil
}
