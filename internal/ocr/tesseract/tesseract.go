// Package tesseract provides an ocr.Engine backed by the Tesseract library
// through gosseract.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/ocr"
)

// Engine runs Tesseract with a fresh client per image. Clients are not safe
// for concurrent use, so none is shared between calls.
type Engine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// New returns an engine recognising the given Tesseract language codes.
func New(languages []string) *Engine {
	return &Engine{languages: languages, clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Version reports the linked Tesseract version. The readiness probe calls it
// to prove the native library loads.
func (e *Engine) Version() string {
	c := e.clientFactory()
	defer c.Close()
	return c.Version()
}

// Predict recognises img and groups the word boxes Tesseract reports by
// block and line.
func (e *Engine) Predict(ctx context.Context, img image.Image) (*ocr.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("recognize words: %w", err)
	}
	words := make([]ocr.PositionedWord, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, ocr.PositionedWord{
			Value:      b.Word,
			Confidence: b.Confidence / 100.0,
			Block:      b.BlockNum,
			Paragraph:  b.ParNum,
			Line:       b.LineNum,
		})
	}
	return ocr.BuildDocument(words), nil
}
