package merge

import (
	"errors"
	"fmt"
)

// ErrNoDocuments is returned when a merge is requested with no inputs.
var ErrNoDocuments = errors.New("merge: no documents to merge")

// ErrTimeout is returned when a document open exceeds the configured
// deadline. The late handle never escapes; the guard closes it.
var ErrTimeout = errors.New("merge: document open timed out")

// DocumentOpenError reports a source buffer that could not be opened.
// Source is the 1-indexed ordinal of the input.
type DocumentOpenError struct {
	Source int
	Err    error
}

func (e *DocumentOpenError) Error() string {
	return fmt.Sprintf("merge: open document %d: %v", e.Source, e.Err)
}

func (e *DocumentOpenError) Unwrap() error { return e.Err }

// GraftError reports a page that could not be copied into the output.
type GraftError struct {
	Source int // 1-indexed input ordinal
	Page   int // 0-indexed page within the source
	Err    error
}

func (e *GraftError) Error() string {
	return fmt.Sprintf("merge: graft page %d of document %d: %v", e.Page, e.Source, e.Err)
}

func (e *GraftError) Unwrap() error { return e.Err }

// SerializationError reports a failure flattening the assembled output.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("merge: serialize output: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// WarningKind classifies non-fatal merge diagnostics.
type WarningKind string

const (
	// AnnotationCopy marks an annotation that could not be carried over.
	AnnotationCopy WarningKind = "annotation-copy"
	// LinkResolution marks an internal link whose target page could not
	// be found after renumbering.
	LinkResolution WarningKind = "link-resolution"
)

// Warning is one non-fatal diagnostic. Source is the 1-indexed input
// ordinal, Page the 0-indexed page within that input.
type Warning struct {
	Kind   WarningKind
	Source int
	Page   int
	Detail string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s (document %d, page %d): %s", w.Kind, w.Source, w.Page, w.Detail)
}
