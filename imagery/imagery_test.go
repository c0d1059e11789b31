package imagery

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("创建测试图片失败: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("编码测试图片失败: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "a.png")
	writePNG(t, good, 40, 20)

	ill := Load(good)
	if ill.Err != nil || ill.Failed() {
		t.Fatalf("期望成功加载: %v", ill.Err)
	}
	if ill.Name != "a.png" || ill.Image.Bounds().Dx() != 40 {
		t.Fatalf("插图信息不符: %s %v", ill.Name, ill.Image.Bounds())
	}

	bad := filepath.Join(dir, "b.png")
	if err := os.WriteFile(bad, []byte("definitely not a png"), 0o644); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}
	ill = Load(bad)
	if !ill.Failed() || !errors.Is(ill.Err, ErrNotImage) {
		t.Fatalf("非图片内容应标记失败: %v", ill.Err)
	}

	ill = Load(filepath.Join(dir, "missing.png"))
	if !ill.Failed() || ill.Err == nil {
		t.Fatalf("缺失文件应标记失败")
	}
}

func TestLoadAllKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	writePNG(t, a, 10, 10)
	out := LoadAll([]string{filepath.Join(dir, "nope.png"), a}, nil)
	if len(out) != 2 || !out[0].Failed() || out[1].Failed() {
		t.Fatalf("LoadAll 应保持顺序并保留失败项: %+v", out)
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "02.png"), 4, 4)
	writePNG(t, filepath.Join(dir, "01.bin"), 4, 4)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}

	paths, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan 失败: %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "01.bin" || filepath.Base(paths[1]) != "02.png" {
		t.Fatalf("Scan 结果不符: %v", paths)
	}
	if _, err := Scan(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("期望目录不存在时报错")
	}
}

func TestFit(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	out := Fit(img, 100, 100)
	if b := out.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("缩放尺寸不符: %v", b)
	}
	if Fit(img, 1000, 1000) != image.Image(img) {
		t.Fatalf("足够小的图片应原样返回")
	}
	w, h := PixelBox(25.4, 50.8, 100)
	if w != 100 || h != 200 {
		t.Fatalf("PixelBox 换算不符: %d %d", w, h)
	}
}
