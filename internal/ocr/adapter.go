package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/errors"
)

// ErrUndecodable marks images whose bytes no registered decoder accepts.
// Retrying such an image cannot succeed.
var ErrUndecodable = errors.New("undecodable image")

var errMalformed = errors.New("malformed recognition result")

// Adapter turns raw image bytes into text using an injected Engine.
type Adapter struct {
	engine Engine
	logger *slog.Logger
}

func NewAdapter(engine Engine) *Adapter {
	return &Adapter{
		engine: engine,
		logger: slog.Default().With("component", "ocr-adapter", "engine", engine.Name()),
	}
}

// Engine returns the wrapped engine.
func (a *Adapter) Engine() Engine {
	return a.engine
}

// Extract decodes data, normalises it to RGB and returns every recognised
// word joined by single spaces. An empty string means no text was found.
// Errors wrap ErrOCRFailure.
func (a *Adapter) Extract(ctx context.Context, data []byte) (string, error) {
	img, format, err := Decode(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %v", apperrors.ErrOCRFailure, ErrUndecodable, err)
	}
	rgb := ToRGB(img)
	a.logger.Debug("image decoded", "format", format, "width", rgb.Rect.Dx(), "height", rgb.Rect.Dy())

	doc, err := a.predict(ctx, rgb)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrOCRFailure, err)
	}
	text, err := Flatten(doc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrOCRFailure, err)
	}
	return text, nil
}

// predict converts an engine panic into an error so one bad image cannot take
// down the batch.
func (a *Adapter) predict(ctx context.Context, img *image.RGBA) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine %s panicked: %v", a.engine.Name(), r)
		}
	}()
	doc, err = a.engine.Predict(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", a.engine.Name(), err)
	}
	return doc, nil
}

// Flatten concatenates the non-empty word values of doc depth-first, page by
// page, block by block, line by line.
func Flatten(doc *Document) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("%w: nil document", errMalformed)
	}
	var words []string
	for pi, page := range doc.Pages {
		if page == nil {
			return "", fmt.Errorf("%w: page %d is nil", errMalformed, pi)
		}
		for bi, block := range page.Blocks {
			if block == nil {
				return "", fmt.Errorf("%w: page %d block %d is nil", errMalformed, pi, bi)
			}
			for li, line := range block.Lines {
				if line == nil {
					return "", fmt.Errorf("%w: page %d block %d line %d is nil", errMalformed, pi, bi, li)
				}
				for _, w := range line.Words {
					if w.Value != "" {
						words = append(words, w.Value)
					}
				}
			}
		}
	}
	return strings.Join(words, " "), nil
}
