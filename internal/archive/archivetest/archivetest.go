// Package archivetest builds in-memory ZIP archives for tests.
package archivetest

import (
	"archive/zip"
	"bytes"
	"testing"
)

// Member is one file in a test archive. A Name ending in "/" adds a
// directory entry. Legacy stores Name as raw bytes without the UTF-8 flag,
// the way older tools write CP437 names.
type Member struct {
	Name   string
	Body   string
	Legacy bool
}

// Build returns the bytes of a ZIP archive holding members in order.
func Build(tb testing.TB, members ...Member) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: m.Name, Method: zip.Deflate, NonUTF8: m.Legacy})
		if err != nil {
			tb.Fatalf("creating %s: %v", m.Name, err)
		}
		if _, err := w.Write([]byte(m.Body)); err != nil {
			tb.Fatalf("writing %s: %v", m.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("closing archive: %v", err)
	}
	return buf.Bytes()
}
