package canvasrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"
	"go.uber.org/zap"

	"github.com/ByLCY/storybook/fonts"
	"github.com/ByLCY/storybook/imagery"
	"github.com/ByLCY/storybook/layout"
	"github.com/ByLCY/storybook/renderer"
)

// Renderer draws layout results via github.com/tdewolff/canvas.
// 同一个实例既用于排版测量也用于最终渲染。
type Renderer struct {
	baseDir string
	dpi     float64
	log     *zap.Logger

	fontMu       sync.Mutex
	fontFamilies map[string]*fontFamilyEntry
}

var (
	_ renderer.Backend  = (*Renderer)(nil)
	_ layout.Typesetter = (*Renderer)(nil)
)

type fontFamilyEntry struct {
	family   *canvas.FontFamily
	style    canvas.FontStyle
	coverage *fonts.Coverage
}

// Options configures the canvas renderer.
type Options struct {
	BaseDir  string // 相对字体路径的基准目录
	Logger   *zap.Logger
	ImageDPI float64 // 插图嵌入分辨率，0 表示 imagery.DefaultDPI
}

// NewRenderer creates a canvas-based renderer rooted at baseDir for resolving fonts.
func NewRenderer(baseDir string) *Renderer { return NewRendererWithOptions(Options{BaseDir: baseDir}) }

// NewRendererWithOptions creates a renderer with explicit options.
func NewRendererWithOptions(opts Options) *Renderer {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dpi := opts.ImageDPI
	if dpi <= 0 {
		dpi = imagery.DefaultDPI
	}
	return &Renderer{
		baseDir:      opts.BaseDir,
		dpi:          dpi,
		log:          log.Named("canvas"),
		fontFamilies: map[string]*fontFamilyEntry{},
	}
}

// Render renders the result into a PDF byte slice.
func (r *Renderer) Render(result *layout.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("渲染结果为空")
	}
	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("缺少可渲染的页面")
	}

	var buf bytes.Buffer
	writer := pdf.New(&buf, result.Pages[0].Width, result.Pages[0].Height, nil)
	r.applyMeta(writer, result.Meta)
	for i, page := range result.Pages {
		if i > 0 {
			writer.NewPage(page.Width, page.Height)
		}
		c := canvas.New(page.Width, page.Height)
		ctx := canvas.NewContext(c)
		ctx.SetCoordSystem(canvas.CartesianIV) // 使坐标与布局保持左上角为原点

		if err := r.drawPage(ctx, page, result.Resources); err != nil {
			return nil, fmt.Errorf("第 %d 页: %w", i+1, err)
		}
		c.RenderTo(writer)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("写入 PDF 失败: %w", err)
	}
	r.log.Debug("PDF 渲染完成", zap.Int("pages", len(result.Pages)), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (r *Renderer) applyMeta(writer *pdf.PDF, meta layout.DocumentMeta) {
	if writer == nil {
		return
	}
	keywords := strings.Join(meta.Keywords, ", ")
	writer.SetInfo(meta.Title, meta.Subject, keywords, meta.Author, meta.Creator)
}

// TextWidth 实现 layout.Typesetter。fontSize 与返回值均为毫米（mm），
// 字体系统使用 pt，这里在边界做 mm→pt 换算。
func (r *Renderer) TextWidth(content string, font layout.FontResource, fontSize float64) (float64, error) {
	face, err := r.fontFace(font, toPt(fontSize), layout.Color{})
	if err != nil {
		return 0, err
	}
	return face.TextWidth(content), nil
}

// HasGlyph 实现 layout.Typesetter，按解析出的字体判断字形是否存在。
func (r *Renderer) HasGlyph(font layout.FontResource, rn rune) bool {
	entry, err := r.ensureFontFamily(font)
	if err != nil {
		return false
	}
	return entry.coverage.Has(rn)
}

func (r *Renderer) drawPage(ctx *canvas.Context, page layout.Page, resources layout.ResourceSet) error {
	// 图片在最底层，其上是矩形（封面标题底色、占位框），最后是文字
	r.drawImages(ctx, page.Images)
	r.drawRects(ctx, page.Rects)

	for _, group := range [][]layout.TextBox{page.Header.Texts, page.Texts, page.Footer.Texts} {
		for _, tb := range group {
			fontRes := resolveFontResource(tb.Font, resources.Fonts)
			if err := r.drawTextBox(ctx, tb, fontRes); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Renderer) drawTextBox(ctx *canvas.Context, tb layout.TextBox, fontRes layout.FontResource) error {
	// TextBox 的坐标/字号/行高均为 mm；创建字体面需要 pt，这里做一次 mm→pt。
	face, err := r.fontFace(fontRes, toPt(tb.FontSize), tb.Color)
	if err != nil {
		return err
	}

	lines := tb.Lines
	if len(lines) == 0 {
		lines = []layout.TextLine{{Content: tb.Content, Width: tb.Width, Height: tb.LineHeight}}
	}
	metrics := face.Metrics()

	cursorY := tb.Y
	for _, line := range lines {
		cursorY += line.GapBefore

		// 处理水平对齐：left（默认）/center/right。
		var x float64
		switch strings.ToLower(tb.Align) {
		case "center":
			x = tb.X + (tb.Width-line.Width)/2
		case "right", "end":
			x = tb.X + tb.Width - line.Width
		default:
			x = tb.X + line.Indent
		}

		lineHeight := line.Height
		if lineHeight <= 0 {
			lineHeight = tb.LineHeight
		}
		// 基线位置：以行顶部加上字体上升部（Ascent）
		if line.Content != "" {
			ctx.DrawText(x, cursorY+metrics.Ascent, canvas.NewTextLine(face, line.Content, canvas.Left))
		}
		cursorY += lineHeight
	}
	return nil
}

// drawImages 绘制插图；无法缩放的图片记录后跳过，不影响整份文档。
func (r *Renderer) drawImages(ctx *canvas.Context, images []layout.ImageBox) {
	for _, box := range images {
		if box.Image == nil || box.Width <= 0 || box.Height <= 0 {
			continue
		}
		if box.Image.Bounds().Empty() {
			r.log.Warn("插图尺寸为空，已跳过", zap.String("ref", box.Ref))
			continue
		}
		scaled := r.scaleImage(box)
		dpmm := float64(scaled.Bounds().Dx()) / box.Width
		if dpmm <= 0 {
			r.log.Warn("插图无法缩放，已跳过", zap.String("ref", box.Ref))
			continue
		}
		ctx.DrawImage(box.X, box.Y, scaled, canvas.DPMM(dpmm))
	}
}

// scaleImage 把图片重采样到目标框在设定 dpi 下的像素尺寸，避免把原图整张嵌入 PDF。
func (r *Renderer) scaleImage(box layout.ImageBox) image.Image {
	w, h := imagery.PixelBox(box.Width, box.Height, r.dpi)
	if box.Fit == "stretch" {
		return imaging.Resize(box.Image, w, h, imaging.Lanczos)
	}
	return imagery.Fit(box.Image, w, h)
}

// drawRects 绘制矩形；线宽为 0 时只填充。
func (r *Renderer) drawRects(ctx *canvas.Context, rects []layout.Rect) {
	for _, rc := range rects {
		if rc.FillColor != nil {
			ctx.SetFillColor(colorFromLayout(*rc.FillColor))
		} else {
			ctx.SetFillColor(color.RGBA{0, 0, 0, 0})
		}
		if rc.StrokeWidth > 0 {
			ctx.SetStrokeColor(colorFromLayout(rc.StrokeColor))
			ctx.SetStrokeWidth(rc.StrokeWidth)
		} else {
			ctx.SetStrokeColor(color.RGBA{0, 0, 0, 0})
			ctx.SetStrokeWidth(0)
		}
		ctx.DrawPath(rc.X, rc.Y, canvas.Rectangle(rc.Width, rc.Height))
	}
}

func (r *Renderer) fontFace(font layout.FontResource, size float64, col layout.Color) (*canvas.FontFace, error) {
	entry, err := r.ensureFontFamily(font)
	if err != nil {
		return nil, err
	}
	return entry.family.Face(size, colorFromLayout(col), entry.style, canvas.FontNormal), nil
}

// ensureFontFamily 沿来源链加载字体，结果按字体资源缓存。
func (r *Renderer) ensureFontFamily(font layout.FontResource) (*fontFamilyEntry, error) {
	key := fontCacheKey(font)
	r.fontMu.Lock()
	defer r.fontMu.Unlock()

	if entry, ok := r.fontFamilies[key]; ok {
		return entry, nil
	}

	style := parseFontStyle(font.Style)
	familyName := font.Name
	if familyName == "" {
		familyName = "Body"
	}
	var family *canvas.FontFamily
	face, err := fonts.Resolve(fonts.Chain(font.Sources, r.baseDir, font.Style), func(data []byte) error {
		f := canvas.NewFontFamily(familyName)
		if err := f.LoadFont(data, 0, style); err != nil {
			return err
		}
		family = f
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("加载字体 %s 失败: %w", familyName, err)
	}
	if face.Fallback {
		r.log.Warn("字体来源不可用，已回退", zap.String("font", familyName),
			zap.String("source", face.Source), zap.Errors("errors", face.Errors))
	}
	cov, err := fonts.NewCoverage(face.Data)
	if err != nil {
		return nil, fmt.Errorf("字体 %s: %w", familyName, err)
	}

	r.log.Debug("字体已加载", zap.String("font", familyName), zap.String("source", face.Source))

	entry := &fontFamilyEntry{family: family, style: style, coverage: cov}
	r.fontFamilies[key] = entry
	return entry, nil
}

func resolveFontResource(name string, fonts map[string]layout.FontResource) layout.FontResource {
	if font, ok := fonts[name]; ok {
		return font
	}
	if font, ok := fonts[layout.FontBody]; ok {
		return font
	}
	return layout.FontResource{Name: name}
}

func parseFontStyle(style string) canvas.FontStyle {
	if style == "" {
		return canvas.FontRegular
	}
	s := strings.ToLower(style)
	result := canvas.FontRegular
	switch {
	case strings.Contains(s, "black"):
		result = canvas.FontBlack
	case strings.Contains(s, "extrabold"):
		result = canvas.FontExtraBold
	case strings.Contains(s, "semibold"), strings.Contains(s, "demibold"):
		result = canvas.FontSemiBold
	case strings.Contains(s, "bold"):
		result = canvas.FontBold
	case strings.Contains(s, "medium"):
		result = canvas.FontMedium
	case strings.Contains(s, "light"):
		result = canvas.FontLight
	}
	if strings.Contains(s, "italic") || strings.Contains(s, "oblique") {
		result |= canvas.FontItalic
	}
	return result
}

func fontCacheKey(font layout.FontResource) string {
	return fmt.Sprintf("%s|%s|%s", font.Name, strings.Join(font.Sources, ","), font.Style)
}

func colorFromLayout(c layout.Color) color.Color {
	return canvas.RGBA(float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0, 1.0)
}

// toPt 将毫米(mm)转换为点(pt)。
func toPt(mm float64) float64 { return mm * layout.MmToPt }
