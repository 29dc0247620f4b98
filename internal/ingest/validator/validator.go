// Package validator checks an uploaded archive before it reaches the
// pipeline.
package validator

import (
	"net/http"
	"path"
	"strings"

	"github.com/dustin/go-humanize"

	apperrors "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/errors"
)

// Upload describes a submitted file.
type Upload struct {
	Filename string
	Size     int64
}

// Validator enforces the upload name and size rules.
type Validator struct {
	maxBytes int64
}

func New(maxBytes int64) *Validator {
	return &Validator{maxBytes: maxBytes}
}

// Validate returns an AppError wrapping ErrInvalidInput whose message can be
// shown to the uploader as is.
func (v *Validator) Validate(u Upload) error {
	name := strings.TrimSpace(u.Filename)
	switch {
	case name == "":
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "Please choose a .zip file to upload.")
	case !strings.EqualFold(path.Ext(name), ".zip"):
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "Please upload a .zip file.")
	case u.Size == 0:
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "The uploaded file is empty.")
	case v.maxBytes > 0 && u.Size > v.maxBytes:
		return v.TooLarge()
	}
	return nil
}

// MaxBytes is the largest accepted upload; zero means unbounded.
func (v *Validator) MaxBytes() int64 { return v.maxBytes }

// TooLarge is the error for an upload over MaxBytes. Transports that cut the
// body short before its size is known report it directly.
func (v *Validator) TooLarge() error {
	return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge,
		"The uploaded file is larger than %s.", humanize.IBytes(uint64(v.maxBytes)))
}
