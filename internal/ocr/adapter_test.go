package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"

	apperrors "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/errors"
)

type fakeEngine struct {
	doc   *Document
	err   error
	panic bool
	seen  image.Image
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Predict(_ context.Context, img image.Image) (*Document, error) {
	f.seen = img
	if f.panic {
		panic("model exploded")
	}
	return f.doc, f.err
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func lineOf(values ...string) *Line {
	l := &Line{}
	for _, v := range values {
		l.Words = append(l.Words, Word{Value: v, Confidence: 0.9})
	}
	return l
}

func TestExtractJoinsWordsInReadingOrder(t *testing.T) {
	engine := &fakeEngine{doc: &Document{Pages: []*Page{
		{Blocks: []*Block{
			{Lines: []*Line{lineOf("Hello", "World")}},
			{Lines: []*Line{lineOf("second"), lineOf("", "block")}},
		}},
		{Blocks: []*Block{{Lines: []*Line{lineOf("page2")}}}},
	}}}
	a := NewAdapter(engine)

	text, err := a.Extract(context.Background(), encodePNG(t, image.NewGray(image.Rect(0, 0, 4, 4))))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "Hello World second block page2"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestExtractEmptyDocument(t *testing.T) {
	for name, doc := range map[string]*Document{
		"no pages":    {},
		"empty lines": {Pages: []*Page{{Blocks: []*Block{{Lines: []*Line{{}}}}}}},
	} {
		t.Run(name, func(t *testing.T) {
			a := NewAdapter(&fakeEngine{doc: doc})
			text, err := a.Extract(context.Background(), encodePNG(t, image.NewRGBA(image.Rect(0, 0, 2, 2))))
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if text != "" {
				t.Errorf("text = %q, want empty", text)
			}
		})
	}
}

func TestExtractFailures(t *testing.T) {
	valid := encodePNG(t, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	tests := []struct {
		name   string
		data   []byte
		engine *fakeEngine
	}{
		{"undecodable bytes", []byte("definitely not an image"), &fakeEngine{doc: &Document{}}},
		{"empty bytes", nil, &fakeEngine{doc: &Document{}}},
		{"engine error", valid, &fakeEngine{err: errors.New("model unavailable")}},
		{"engine panic", valid, &fakeEngine{panic: true}},
		{"nil document", valid, &fakeEngine{}},
		{"nil page", valid, &fakeEngine{doc: &Document{Pages: []*Page{nil}}}},
		{"nil line", valid, &fakeEngine{doc: &Document{Pages: []*Page{{Blocks: []*Block{{Lines: []*Line{nil}}}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAdapter(tt.engine).Extract(context.Background(), tt.data)
			if !errors.Is(err, apperrors.ErrOCRFailure) {
				t.Fatalf("error = %v, want ErrOCRFailure", err)
			}
		})
	}
}

func TestExtractMarksUndecodable(t *testing.T) {
	_, err := NewAdapter(&fakeEngine{doc: &Document{}}).Extract(context.Background(), []byte("GIF89a truncated"))
	if !errors.Is(err, ErrUndecodable) {
		t.Errorf("error = %v, want ErrUndecodable", err)
	}
	_, err = NewAdapter(&fakeEngine{err: errors.New("busy")}).Extract(context.Background(), encodePNG(t, image.NewGray(image.Rect(0, 0, 1, 1))))
	if errors.Is(err, ErrUndecodable) {
		t.Errorf("engine error %v marked undecodable", err)
	}
}

func TestExtractNormalisesToOpaqueRGB(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
	src.Set(1, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 128})

	engine := &fakeEngine{doc: &Document{}}
	if _, err := NewAdapter(engine).Extract(context.Background(), encodePNG(t, src)); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	rgb, ok := engine.seen.(*image.RGBA)
	if !ok {
		t.Fatalf("engine saw %T, want *image.RGBA", engine.seen)
	}
	for x := 0; x < 2; x++ {
		if a := rgb.RGBAAt(x, 0).A; a != 0xff {
			t.Errorf("pixel %d alpha = %d, want 255", x, a)
		}
	}
	if got := rgb.RGBAAt(1, 0); got.R != 10 || got.G != 20 || got.B != 30 {
		t.Errorf("pixel 1 = %+v, want colour channels preserved", got)
	}
}

func TestExtractDecodesBMPAndPaletted(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 3, 3), color.Palette{color.Black, color.White})
	var bmpBuf bytes.Buffer
	if err := bmp.Encode(&bmpBuf, image.NewGray(image.Rect(0, 0, 3, 3))); err != nil {
		t.Fatalf("encoding bmp: %v", err)
	}

	for name, data := range map[string][]byte{
		"paletted png":  encodePNG(t, pal),
		"grayscale bmp": bmpBuf.Bytes(),
	} {
		t.Run(name, func(t *testing.T) {
			engine := &fakeEngine{doc: &Document{Pages: []*Page{{Blocks: []*Block{{Lines: []*Line{lineOf("ok")}}}}}}}
			text, err := NewAdapter(engine).Extract(context.Background(), data)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if text != "ok" {
				t.Errorf("text = %q, want ok", text)
			}
			if b := engine.seen.Bounds(); b.Dx() != 3 || b.Dy() != 3 {
				t.Errorf("bounds = %v, want 3x3", b)
			}
		})
	}
}

func TestToRGBRebasesBounds(t *testing.T) {
	src := image.NewGray(image.Rect(5, 5, 8, 7))
	src.SetGray(5, 5, color.Gray{Y: 77})
	out := ToRGB(src)
	if out.Rect.Min != (image.Point{}) || out.Rect.Dx() != 3 || out.Rect.Dy() != 2 {
		t.Fatalf("rect = %v, want origin-based 3x2", out.Rect)
	}
	if c := out.RGBAAt(0, 0); c.R != 77 || c.G != 77 || c.B != 77 {
		t.Errorf("pixel = %+v, want grey 77", c)
	}
}

func TestBuildDocumentGroupsByBlockAndLine(t *testing.T) {
	doc := BuildDocument([]PositionedWord{
		{Value: "a", Block: 1, Paragraph: 1, Line: 1},
		{Value: "b", Block: 1, Paragraph: 1, Line: 1},
		{Value: "c", Block: 1, Paragraph: 1, Line: 2},
		{Value: "d", Block: 2, Paragraph: 1, Line: 1},
	})
	if len(doc.Pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(doc.Pages))
	}
	blocks := doc.Pages[0].Blocks
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	if len(blocks[0].Lines) != 2 || len(blocks[1].Lines) != 1 {
		t.Errorf("lines per block = %d,%d, want 2,1", len(blocks[0].Lines), len(blocks[1].Lines))
	}
	text, err := Flatten(doc)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if text != "a b c d" {
		t.Errorf("text = %q, want %q", text, "a b c d")
	}
}

func TestBuildDocumentEmpty(t *testing.T) {
	text, err := Flatten(BuildDocument(nil))
	if err != nil || text != "" {
		t.Errorf("Flatten(BuildDocument(nil)) = %q, %v", text, err)
	}
}
