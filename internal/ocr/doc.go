// Package ocr wraps an optical character recognition capability behind a
// single Extract(image bytes) -> text contract.
//
// An Engine reports what it recognised as a Document tree
// (pages -> blocks -> lines -> words). The Adapter decodes the raw archive
// bytes, normalises them to opaque RGB, calls the Engine, checks the tree is
// well formed and flattens it into one space-separated string in reading
// order. Every failure it returns wraps errors.ErrOCRFailure and concerns a
// single image only.
package ocr
