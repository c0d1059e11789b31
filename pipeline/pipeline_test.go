package pipeline

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ByLCY/storybook/layout"
)

// fakeBackend 以固定字宽测量，并把页数写进输出。
type fakeBackend struct {
	rendered *layout.Result
	failWith error
}

func (f *fakeBackend) TextWidth(content string, _ layout.FontResource, _ float64) (float64, error) {
	return 2 * float64(utf8.RuneCountInString(content)), nil
}

func (f *fakeBackend) HasGlyph(layout.FontResource, rune) bool { return true }

func (f *fakeBackend) Render(res *layout.Result) ([]byte, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.rendered = res
	return []byte("%PDF-fake " + strings.Repeat("p", len(res.Pages))), nil
}

type failingStory struct{ err error }

func (s failingStory) Story(context.Context) (string, error) { return "", s.err }

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("创建图片失败: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 6))); err != nil {
		t.Fatalf("编码图片失败: %v", err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	story := filepath.Join(dir, "story.txt")
	text := "Once upon a time\nthere was a fox.\n\nIt ran.\r\n\r\nThe end."
	if err := os.WriteFile(story, []byte(text), 0o644); err != nil {
		t.Fatalf("写入故事失败: %v", err)
	}
	cover := filepath.Join(dir, "cover.png")
	writePNG(t, cover)
	art := filepath.Join(dir, "one.png")
	writePNG(t, art)

	backend := &fakeBackend{}
	debugJSON := filepath.Join(dir, "debug", "layout.json")
	out, err := Run(context.Background(), Request{
		Title:  "Fox",
		Author: "Ann",
		Story:  StoryFile(story),
		Art:    ArtFiles{Cover: cover, Images: []string{art, filepath.Join(dir, "missing.png")}},
	}, Options{Settings: layout.DefaultSettings(), Backend: backend, LayoutJSON: debugJSON})
	if err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if backend.rendered != out.Result {
		t.Fatalf("渲染的应是同一份排版结果")
	}
	res := out.Result
	if res.Pages[0].Kind != layout.PageCover || res.Pages[1].Kind != layout.PageTitle {
		t.Fatalf("前两页应为封面与标题页: %s %s", res.Pages[0].Kind, res.Pages[1].Kind)
	}
	if res.Diagnostics.Placeholders != 1 {
		t.Fatalf("缺失的插图应成为占位框, got %d", res.Diagnostics.Placeholders)
	}
	if res.Meta.Title != "Fox" || res.Meta.Author != "Ann" {
		t.Fatalf("元信息不符: %+v", res.Meta)
	}
	if !strings.HasPrefix(string(out.PDF), "%PDF") {
		t.Fatalf("产物不符: %q", out.PDF)
	}
	if _, err := os.Stat(debugJSON); err != nil {
		t.Fatalf("应写出调试 JSON: %v", err)
	}
}

func TestRunErrors(t *testing.T) {
	set := layout.DefaultSettings()
	story := StoryText("Hello.")

	_, err := Run(context.Background(), Request{}, Options{Settings: set, Backend: &fakeBackend{}})
	var be *BuildError
	if !errors.As(err, &be) || be.Stage != StageStory || !errors.Is(err, ErrEmptyRequest) {
		t.Fatalf("期望 ErrEmptyRequest, got %v", err)
	}

	readErr := errors.New("boom")
	_, err = Run(context.Background(), Request{Story: failingStory{readErr}}, Options{Settings: set, Backend: &fakeBackend{}})
	if !errors.As(err, &be) || be.Stage != StageStory || !errors.Is(err, readErr) {
		t.Fatalf("期望 story 阶段错误, got %v", err)
	}

	bad := set
	bad.Geometry.Cadence = 0
	_, err = Run(context.Background(), Request{Story: story}, Options{Settings: bad, Backend: &fakeBackend{}})
	if !errors.As(err, &be) || be.Stage != StageLayout || !errors.Is(err, layout.ErrInvalidGeometry) {
		t.Fatalf("期望 layout 阶段错误, got %v", err)
	}

	renderErr := errors.New("render failed")
	_, err = Run(context.Background(), Request{Story: story}, Options{Settings: set, Backend: &fakeBackend{failWith: renderErr}})
	if !errors.As(err, &be) || be.Stage != StageRender || !errors.Is(err, renderErr) {
		t.Fatalf("期望 render 阶段错误, got %v", err)
	}

	_, err = Run(context.Background(), Request{Story: story}, Options{Settings: set})
	if !errors.As(err, &be) || be.Stage != StageRender {
		t.Fatalf("缺少后端应报错, got %v", err)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	backend := &fakeBackend{}
	_, err := Run(ctx, Request{Story: StoryText("Hello.")}, Options{Settings: layout.DefaultSettings(), Backend: backend})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled, got %v", err)
	}
	if backend.rendered != nil {
		t.Fatalf("取消后不应渲染")
	}
}

func TestOutputName(t *testing.T) {
	cases := []struct {
		template, title, want string
	}{
		{"${title}", "The Brave Little Fox!", "the-brave-little-fox.pdf"},
		{"", "Fox", "fox.pdf"},
		{"books/${title}-v1", "Fox", "books/fox-v1.pdf"},
		{"${title}.PDF", "Fox", "fox.PDF"},
		{"${title}", "", "storybook.pdf"},
		{"${title}", "   ", "storybook.pdf"},
	}
	for _, tc := range cases {
		if got := OutputName(tc.template, tc.title); got != tc.want {
			t.Fatalf("OutputName(%q, %q) = %q, want %q", tc.template, tc.title, got, tc.want)
		}
	}
}

func TestWriteArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "book.pdf")
	if err := WriteArtifact(path, []byte("one"), false); err != nil {
		t.Fatalf("首次写入失败: %v", err)
	}
	err := WriteArtifact(path, []byte("two"), false)
	var be *BuildError
	if !errors.As(err, &be) || be.Stage != StageWrite || !errors.Is(err, os.ErrExist) {
		t.Fatalf("不覆盖时应报已存在, got %v", err)
	}
	if err := WriteArtifact(path, []byte("three"), true); err != nil {
		t.Fatalf("覆盖写入失败: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "three" {
		t.Fatalf("文件内容不符: %q", data)
	}
}
