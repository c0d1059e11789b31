package fpdfrenderer

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ByLCY/storybook/layout"
)

var bodyFont = layout.FontResource{Name: layout.FontBody, Sources: []string{"builtin:go-regular"}}

func sampleBook() layout.Book {
	return layout.Book{
		Title:      "Pip and the Moon",
		Author:     "Zoë Writer",
		Paragraphs: []string{"Pip looked up.", "The moon smiled back.", "They talked all night.", "Morning came."},
	}
}

func TestTextWidthUTF8(t *testing.T) {
	r := New(Options{})
	size := 12 * layout.PtToMm
	short, err := r.TextWidth("hello", bodyFont, size)
	if err != nil {
		t.Fatalf("TextWidth error: %v", err)
	}
	long, err := r.TextWidth("hello world", bodyFont, size)
	if err != nil {
		t.Fatalf("TextWidth error: %v", err)
	}
	if short < 5 || short > 20 || long <= short {
		t.Fatalf("宽度不符: short=%g long=%g", short, long)
	}
}

func TestNonTrueTypeFallsBack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cff.otf"), append([]byte("OTTO"), make([]byte, 64)...), 0o644); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}
	r := New(Options{BaseDir: dir})
	font := layout.FontResource{Name: "body", Sources: []string{"cff.otf"}}
	w, err := r.TextWidth("hello", font, 4)
	if err != nil || w <= 0 {
		t.Fatalf("非 TrueType 字体应回退到内置字体: w=%g err=%v", w, err)
	}
	want, _ := r.TextWidth("hello", bodyFont, 4)
	if diff := w - want; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("回退后应与 go-regular 一致: %g vs %g", w, want)
	}
}

func TestCoreFontMode(t *testing.T) {
	r := New(Options{CoreFont: "Helvetica"})
	if !r.HasGlyph(bodyFont, 'é') || !r.HasGlyph(bodyFont, '€') {
		t.Fatalf("Windows-1252 字符应可用")
	}
	if r.HasGlyph(bodyFont, '木') || r.HasGlyph(bodyFont, 'ż') {
		t.Fatalf("核心字体不应包含 Windows-1252 以外的字符")
	}
	w, err := r.TextWidth("hello", bodyFont, 12*layout.PtToMm)
	if err != nil || w <= 0 {
		t.Fatalf("核心字体测量失败: %g %v", w, err)
	}
}

func TestRenderUTF8(t *testing.T) {
	r := New(Options{})
	book := sampleBook()
	cover := layout.Illustration{Name: "cover", Image: gradient(50, 70)}
	book.Cover = &cover
	book.Illustrations = []layout.Illustration{{Name: "bad"}, {Name: "ok", Image: gradient(30, 20)}}

	res, err := layout.Build(book, layout.BuildOptions{Settings: layout.DefaultSettings(), Typesetter: r})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	data, err := r.Render(res)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) || !bytes.Contains(data, []byte("%%EOF")) {
		t.Fatalf("输出不是完整的 PDF")
	}
}

func TestRenderSkipsEmptyImage(t *testing.T) {
	r := New(Options{})
	res, err := layout.Build(sampleBook(), layout.BuildOptions{Settings: layout.DefaultSettings(), Typesetter: r})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	last := &res.Pages[len(res.Pages)-1]
	last.Images = append(last.Images, layout.ImageBox{
		Ref: "empty", X: 20, Y: 20, Width: 50, Height: 50,
		Image: image.NewRGBA(image.Rect(0, 0, 0, 0)),
	})
	data, err := r.Render(res)
	if err != nil {
		t.Fatalf("单张插图不应导致整份文档失败: %v", err)
	}
	if !bytes.Contains(data, []byte("%%EOF")) {
		t.Fatalf("输出不是完整的 PDF")
	}
}

func TestRenderLogsFontSources(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := New(Options{Logger: zap.New(core)})
	res, err := layout.Build(sampleBook(), layout.BuildOptions{Settings: layout.DefaultSettings(), Typesetter: r})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if _, err := r.Render(res); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	sources := map[string]string{}
	for _, entry := range logs.FilterMessage("文档使用字体").All() {
		fields := entry.ContextMap()
		sources[fields["font"].(string)] = fields["source"].(string)
	}
	if sources[layout.FontBody] != "builtin:go-regular" || sources[layout.FontTitle] != "builtin:go-bold" {
		t.Fatalf("字体来源记录不符: %v", sources)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	render := func() []byte {
		r := New(Options{CoreFont: "Helvetica"})
		res, err := layout.Build(sampleBook(), layout.BuildOptions{Settings: layout.DefaultSettings(), Typesetter: r})
		if err != nil {
			t.Fatalf("Build error: %v", err)
		}
		data, err := r.Render(res)
		if err != nil {
			t.Fatalf("Render error: %v", err)
		}
		return data
	}
	if !bytes.Equal(render(), render()) {
		t.Fatalf("相同输入应生成相同的 PDF")
	}
}

func TestFpdfStyle(t *testing.T) {
	cases := map[string]string{"": "", "bold": "B", "Italic": "I", "bold italic": "BI"}
	for in, want := range cases {
		if got := fpdfStyle(in); got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
}

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 3), B: 128, A: 255})
		}
	}
	return img
}
