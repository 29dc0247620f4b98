// Package archive walks an uploaded ZIP container and yields the image
// entries the OCR stage should see. Non-image and hidden entries are skipped,
// never reported as errors.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"iter"
	"path"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	apperrors "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/errors"
)

// DefaultExtensions is the image allow-list used when none is configured.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tiff", ".tif", ".gif"}

// Entry is one image member of an archive. It is discarded once OCR is done.
type Entry struct {
	// Index is the position among yielded entries, starting at 0.
	Index int
	// Name is the archive-relative path, not necessarily unique.
	Name  string
	Bytes []byte
}

// Walker filters archive members by extension.
type Walker struct {
	extensions    []string
	maxEntryBytes int64
	// OnSkip, when set, is called for every file entry that is not yielded.
	OnSkip func(name string)
}

// NewWalker returns a Walker accepting the given lower-case extensions (with
// leading dot). maxEntryBytes <= 0 means no per-entry limit.
func NewWalker(extensions []string, maxEntryBytes int64) *Walker {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Walker{
		extensions:    slices.Clone(extensions),
		maxEntryBytes: maxEntryBytes,
	}
}

// WithSkipHandler returns a copy of w that calls fn for every skipped file
// entry. The receiver is not modified.
func (w *Walker) WithSkipHandler(fn func(name string)) *Walker {
	c := *w
	c.OnSkip = fn
	return &c
}

// Accepts reports whether an entry with this name would be handed to OCR.
func (w *Walker) Accepts(name string) bool {
	base := path.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(path.Ext(base)))
}

// Walk opens data as a ZIP archive. A blob that is not a valid container
// fails with ErrArchiveFormat before anything is yielded. The returned
// sequence rescans the archive every time it is ranged over; an entry whose
// bytes cannot be read is yielded with an ErrEntryRead error and iteration
// continues.
func (w *Walker) Walk(data []byte) (iter.Seq2[Entry, error], error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrArchiveFormat, err)
	}

	return func(yield func(Entry, error) bool) {
		index := 0
		for _, f := range zr.File {
			if f.FileInfo().IsDir() {
				continue
			}
			name := entryName(f)
			if !w.Accepts(name) {
				if w.OnSkip != nil {
					w.OnSkip(name)
				}
				continue
			}
			entry := Entry{Index: index, Name: name}
			index++
			b, err := w.read(f)
			if err != nil {
				if !yield(entry, fmt.Errorf("%w: %s: %v", apperrors.ErrEntryRead, name, err)) {
					return
				}
				continue
			}
			entry.Bytes = b
			if !yield(entry, nil) {
				return
			}
		}
	}, nil
}

// entryName returns f's name as UTF-8. Names stored without the UTF-8 flag
// are CP437, the ZIP default.
func entryName(f *zip.File) string {
	if utf8.ValidString(f.Name) {
		return f.Name
	}
	name, err := charmap.CodePage437.NewDecoder().String(f.Name)
	if err != nil {
		return strings.ToValidUTF8(f.Name, string(utf8.RuneError))
	}
	return name
}

func (w *Walker) read(f *zip.File) ([]byte, error) {
	if w.maxEntryBytes > 0 && f.UncompressedSize64 > uint64(w.maxEntryBytes) {
		return nil, fmt.Errorf("entry is %d bytes, limit is %d", f.UncompressedSize64, w.maxEntryBytes)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if w.maxEntryBytes > 0 {
		// The header size can lie; cap the actual read as well.
		r = io.LimitReader(rc, w.maxEntryBytes+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if w.maxEntryBytes > 0 && int64(len(b)) > w.maxEntryBytes {
		return nil, fmt.Errorf("entry exceeds %d bytes", w.maxEntryBytes)
	}
	return b, nil
}
