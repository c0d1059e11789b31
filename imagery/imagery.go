// Package imagery 读取并解码插图文件，失败不会中断排版，只在 Illustration.Err 中记录原因。
package imagery

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ByLCY/storybook/layout"
)

// ErrNotImage 表示文件内容不是可识别的图片格式。
var ErrNotImage = errors.New("不是可识别的图片")

// Load 读取并解码单张插图。任何失败都体现在返回值的 Err 字段上。
func Load(path string) layout.Illustration {
	ill := layout.Illustration{Name: filepath.Base(path)}
	data, err := os.ReadFile(path)
	if err != nil {
		ill.Err = fmt.Errorf("读取图片 %s 失败: %w", path, err)
		return ill
	}
	img, err := Decode(data)
	if err != nil {
		ill.Err = fmt.Errorf("图片 %s: %w", path, err)
		return ill
	}
	ill.Image = img
	return ill
}

// Decode 识别图片类型并解码，按 EXIF 方向自动旋转。
func Decode(data []byte) (image.Image, error) {
	if !filetype.IsImage(data) {
		return nil, ErrNotImage
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("解码失败: %w", err)
	}
	return img, nil
}

// LoadAll 按顺序加载插图，输出与输入一一对应。
func LoadAll(paths []string, log *zap.Logger) []layout.Illustration {
	if log == nil {
		log = zap.NewNop()
	}
	out := make([]layout.Illustration, 0, len(paths))
	for _, p := range paths {
		ill := Load(p)
		if ill.Err != nil {
			log.Warn("无法加载插图", zap.String("path", p), zap.Error(ill.Err))
		} else {
			log.Debug("已加载插图", zap.String("path", p),
				zap.Int("width", ill.Image.Bounds().Dx()),
				zap.Int("height", ill.Image.Bounds().Dy()))
		}
		out = append(out, ill)
	}
	return out
}

// Scan 列出目录下的图片文件，按文件名排序。
// 只读取文件头判断类型，与扩展名无关。
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取插图目录失败: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if isImageFile(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func isImageFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 261)
	n, _ := f.Read(head)
	return filetype.IsImage(head[:n])
}

// Fit 把图片缩放到不超过 w×h 像素，保持比例；已经足够小时原样返回。
func Fit(img image.Image, w, h int) image.Image {
	if img == nil || w <= 0 || h <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= w && b.Dy() <= h {
		return img
	}
	return imaging.Fit(img, w, h, imaging.Lanczos)
}

// PixelBox 按 dpi 把 mm 尺寸换算为像素尺寸。
func PixelBox(wMM, hMM, dpi float64) (int, int) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	px := func(mm float64) int {
		v := int(mm / 25.4 * dpi)
		return max(v, 1)
	}
	return px(wMM), px(hMM)
}

// DefaultDPI 是嵌入 PDF 时插图的默认分辨率。
const DefaultDPI = 150
