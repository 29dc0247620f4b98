package ocr

import (
	"context"
	"image"
)

// Engine is a loaded OCR model. Implementations must not be mutated by
// Predict; the pipeline shares one instance across runs.
type Engine interface {
	Name() string
	Predict(ctx context.Context, img image.Image) (*Document, error)
}

// Document is the recognition result for one image.
type Document struct {
	Pages []*Page
}

type Page struct {
	Blocks []*Block
}

type Block struct {
	Lines []*Line
}

type Line struct {
	Words []Word
}

// Word is a single recognised token. Confidence is in [0, 1].
type Word struct {
	Value      string
	Confidence float64
}

// PositionedWord is a word as engines that report flat word boxes emit it.
type PositionedWord struct {
	Value      string
	Confidence float64
	Block      int
	Paragraph  int
	Line       int
}

// BuildDocument groups flat word boxes into a single-page Document. Words are
// expected in reading order; a new block starts whenever the block number
// changes and a new line whenever the paragraph or line number changes.
func BuildDocument(words []PositionedWord) *Document {
	page := &Page{}
	var block *Block
	var line *Line
	var curBlock, curPara, curLine int
	for i, w := range words {
		if i == 0 || w.Block != curBlock {
			block = &Block{}
			page.Blocks = append(page.Blocks, block)
			line = nil
		}
		if line == nil || w.Paragraph != curPara || w.Line != curLine {
			line = &Line{}
			block.Lines = append(block.Lines, line)
		}
		curBlock, curPara, curLine = w.Block, w.Paragraph, w.Line
		line.Words = append(line.Words, Word{Value: w.Value, Confidence: w.Confidence})
	}
	return &Document{Pages: []*Page{page}}
}
