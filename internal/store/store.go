// Package store persists extraction records as a single CSV snapshot that is
// replaced wholesale on every successful ingestion run.
package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/errors"
)

var header = []string{"filename", "text"}

// Record is the text extracted from one archive entry. Filename is the entry
// name and is not unique; Text may be empty.
type Record struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// CSVStore keeps the snapshot in one file. Readers always see either the
// previous or the new snapshot because Save writes a sibling temp file and
// renames it into place.
type CSVStore struct {
	path   string
	mu     sync.Mutex
	rename func(oldpath, newpath string) error
	logger *slog.Logger
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{
		path:   path,
		rename: os.Rename,
		logger: slog.Default().With("component", "csv-store"),
	}
}

// Path returns the snapshot location.
func (s *CSVStore) Path() string {
	return s.path
}

// Save replaces the snapshot with records. On failure the previous snapshot
// is left untouched and the returned error wraps ErrPersistence.
func (s *CSVStore) Save(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating snapshot directory: %v", apperrors.ErrPersistence, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", apperrors.ErrPersistence, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("%w: writing header: %v", apperrors.ErrPersistence, err)
	}
	for _, r := range records {
		if err := w.Write([]string{r.Filename, r.Text}); err != nil {
			return fmt.Errorf("%w: writing record %q: %v", apperrors.ErrPersistence, r.Filename, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: flushing records: %v", apperrors.ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: syncing temp file: %v", apperrors.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %v", apperrors.ErrPersistence, err)
	}
	if err := s.rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("%w: replacing snapshot: %v", apperrors.ErrPersistence, err)
	}
	committed = true

	s.logger.Info("snapshot saved", "path", s.path, "records", len(records))
	return nil
}

// Load returns the records of the current snapshot in the order they were
// saved. It fails with ErrStoreNotFound before the first successful Save.
func (s *CSVStore) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.ErrStoreNotFound
		}
		return nil, fmt.Errorf("%w: reading snapshot: %v", apperrors.ErrPersistence, err)
	}
	return decode(data)
}

// Version identifies the current snapshot by a hash of its content, so two
// snapshots share a version only when they would answer every query alike.
func (s *CSVStore) Version(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperrors.ErrStoreNotFound
		}
		return "", fmt.Errorf("%w: opening snapshot: %v", apperrors.ErrPersistence, err)
	}
	defer f.Close()
	d := xxhash.New()
	n, err := io.Copy(d, f)
	if err != nil {
		return "", fmt.Errorf("%w: hashing snapshot: %v", apperrors.ErrPersistence, err)
	}
	return fmt.Sprintf("%016x-%x", d.Sum64(), n), nil
}

func decode(data []byte) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(header)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parsing snapshot: %v", apperrors.ErrPersistence, err)
	}
	if len(rows) == 0 || rows[0][0] != header[0] || rows[0][1] != header[1] {
		return nil, fmt.Errorf("%w: snapshot header missing", apperrors.ErrPersistence)
	}
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, Record{Filename: row[0], Text: row[1]})
	}
	return records, nil
}
