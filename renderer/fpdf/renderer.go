// Package fpdfrenderer 是基于 go-pdf/fpdf 的渲染后端。
// 与 canvas 后端相比输出更小，并且可以只使用 PDF 内置的 14 种核心字体。
package fpdfrenderer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"codeberg.org/go-pdf/fpdf"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/ByLCY/storybook/fonts"
	"github.com/ByLCY/storybook/imagery"
	"github.com/ByLCY/storybook/layout"
	"github.com/ByLCY/storybook/renderer"
)

// AscentRatio 近似字体上升部占字号的比例，用于从行顶部推算基线。
const AscentRatio = 0.8

// errNotTrueType fpdf 只能嵌入 glyf 轮廓的 TrueType 字体。
var errNotTrueType = errors.New("fpdf 仅支持 TrueType 轮廓的字体")

// creationDate 固定文档时间戳，使相同输入产生相同输出。
var creationDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

var bufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// Options configures the fpdf renderer.
type Options struct {
	BaseDir  string
	Logger   *zap.Logger
	CoreFont string  // 非空时使用核心字体（如 Helvetica），不嵌入任何字体文件
	ImageDPI float64 // 插图嵌入分辨率，0 表示 imagery.DefaultDPI
}

// Renderer 同时实现 layout.Typesetter 与 renderer.Renderer。
type Renderer struct {
	baseDir  string
	coreFont string
	dpi      float64
	log      *zap.Logger

	mu      sync.Mutex
	fonts   map[string]*fontEntry
	measure *fpdf.Fpdf // 仅用于测量
	enc     *encoding.Encoder
}

var (
	_ renderer.Backend  = (*Renderer)(nil)
	_ layout.Typesetter = (*Renderer)(nil)
)

type fontEntry struct {
	family   string
	style    string // fpdf 风格："", "B", "I", "BI"
	data     []byte // 核心字体模式下为空
	coverage *fonts.Coverage
	source   string
}

// New 创建 fpdf 渲染器。
func New(opts Options) *Renderer {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dpi := opts.ImageDPI
	if dpi <= 0 {
		dpi = imagery.DefaultDPI
	}
	m := fpdf.New("P", "mm", "A4", "")
	return &Renderer{
		baseDir:  opts.BaseDir,
		coreFont: opts.CoreFont,
		dpi:      dpi,
		log:      log.Named("fpdf"),
		fonts:    map[string]*fontEntry{},
		measure:  m,
		enc:      encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()),
	}
}

// TextWidth 实现 layout.Typesetter，字号与返回值均为 mm。
func (r *Renderer) TextWidth(content string, font layout.FontResource, fontSize float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.fontEntry(font)
	if err != nil {
		return 0, err
	}
	r.measure.SetFont(entry.family, entry.style, fontSize*layout.MmToPt)
	w := r.measure.GetStringWidth(r.encode(entry, content))
	if err := r.measure.Error(); err != nil {
		r.measure.ClearError()
		return 0, fmt.Errorf("测量文本失败: %w", err)
	}
	return w, nil
}

// HasGlyph 实现 layout.Typesetter。核心字体模式下以 Windows-1252 可编码为准。
func (r *Renderer) HasGlyph(font layout.FontResource, rn rune) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.fontEntry(font)
	if err != nil {
		return false
	}
	if entry.coverage == nil {
		if rn < 0x80 {
			return true
		}
		_, ok := charmap.Windows1252.EncodeRune(rn)
		return ok
	}
	return entry.coverage.Has(rn)
}

// Render 输出 PDF 字节。
func (r *Renderer) Render(result *layout.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("渲染结果为空")
	}
	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("缺少可渲染的页面")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	first := result.Pages[0]
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: first.Width, Ht: first.Height},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(creationDate)
	pdf.SetModificationDate(creationDate)
	applyMeta(pdf, result.Meta)

	doc := &document{r: r, pdf: pdf, res: result.Resources, registered: map[string]bool{}}
	for i, page := range result.Pages {
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: page.Width, Ht: page.Height})
		if err := doc.drawPage(i, page); err != nil {
			return nil, fmt.Errorf("第 %d 页: %w", i+1, err)
		}
		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("第 %d 页: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("写入 PDF 失败: %w", err)
	}
	r.log.Debug("PDF 渲染完成", zap.Int("pages", pdf.PageCount()), zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func applyMeta(pdf *fpdf.Fpdf, meta layout.DocumentMeta) {
	pdf.SetTitle(meta.Title, true)
	pdf.SetAuthor(meta.Author, true)
	pdf.SetSubject(meta.Subject, true)
	pdf.SetCreator(meta.Creator, true)
	if len(meta.Keywords) > 0 {
		pdf.SetKeywords(strings.Join(meta.Keywords, ", "), true)
	}
}

// fontEntry 解析字体资源，调用方需持有 r.mu。
func (r *Renderer) fontEntry(font layout.FontResource) (*fontEntry, error) {
	key := fmt.Sprintf("%s|%s|%s", font.Name, strings.Join(font.Sources, ","), font.Style)
	if entry, ok := r.fonts[key]; ok {
		return entry, nil
	}
	style := fpdfStyle(font.Style)

	if r.coreFont != "" {
		entry := &fontEntry{family: r.coreFont, style: style, source: "core:" + r.coreFont}
		r.fonts[key] = entry
		return entry, nil
	}

	family := fmt.Sprintf("f%d", len(r.fonts))
	face, err := fonts.Resolve(fonts.Chain(font.Sources, r.baseDir, font.Style), func(data []byte) error {
		if !fonts.IsTrueType(data) {
			return errNotTrueType
		}
		if err := fonts.Validate(data); err != nil {
			return err
		}
		r.measure.AddUTF8FontFromBytes(family, style, data)
		if err := r.measure.Error(); err != nil {
			r.measure.ClearError()
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("加载字体 %s 失败: %w", font.Name, err)
	}
	if face.Fallback {
		r.log.Warn("字体来源不可用，已回退", zap.String("font", font.Name),
			zap.String("source", face.Source), zap.Errors("errors", face.Errors))
	}
	cov, err := fonts.NewCoverage(face.Data)
	if err != nil {
		return nil, err
	}
	entry := &fontEntry{family: family, style: style, data: face.Data, coverage: cov, source: face.Source}
	r.fonts[key] = entry
	return entry, nil
}

// encode 核心字体只接受单字节编码，无法编码的字符替换为 '?'。
func (r *Renderer) encode(entry *fontEntry, s string) string {
	if entry.data != nil {
		return s
	}
	out, err := r.enc.String(s)
	if err != nil {
		return s
	}
	return out
}

func fpdfStyle(style string) string {
	s := strings.ToLower(style)
	var out string
	if strings.Contains(s, "bold") {
		out += "B"
	}
	if strings.Contains(s, "italic") || strings.Contains(s, "oblique") {
		out += "I"
	}
	return out
}

// document 保存单次渲染的状态。
type document struct {
	r          *Renderer
	pdf        *fpdf.Fpdf
	res        layout.ResourceSet
	registered map[string]bool
	images     int
}

func (d *document) drawPage(idx int, page layout.Page) error {
	// 图片最底层，其上是矩形，最后是文字
	for _, box := range page.Images {
		d.drawImage(box)
	}
	for _, rc := range page.Rects {
		d.drawRect(rc)
	}
	for _, group := range [][]layout.TextBox{page.Header.Texts, page.Texts, page.Footer.Texts} {
		for _, tb := range group {
			if err := d.drawTextBox(tb); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *document) useFont(key string, sizeMM float64) (*fontEntry, error) {
	font, ok := d.res.Fonts[key]
	if !ok {
		font = d.res.Fonts[layout.FontBody]
	}
	entry, err := d.r.fontEntry(font)
	if err != nil {
		return nil, err
	}
	id := entry.family + "|" + entry.style
	if !d.registered[id] {
		if entry.data != nil {
			d.pdf.AddUTF8FontFromBytes(entry.family, entry.style, entry.data)
		}
		d.registered[id] = true
		d.r.log.Debug("文档使用字体", zap.String("font", font.Name), zap.String("source", entry.source))
	}
	d.pdf.SetFont(entry.family, entry.style, sizeMM*layout.MmToPt)
	return entry, nil
}

func (d *document) drawTextBox(tb layout.TextBox) error {
	entry, err := d.useFont(tb.Font, tb.FontSize)
	if err != nil {
		return err
	}
	d.pdf.SetTextColor(tb.Color.R, tb.Color.G, tb.Color.B)

	lines := tb.Lines
	if len(lines) == 0 {
		lines = []layout.TextLine{{Content: tb.Content, Width: tb.Width, Height: tb.LineHeight}}
	}
	cursorY := tb.Y
	for _, line := range lines {
		cursorY += line.GapBefore
		var x float64
		switch strings.ToLower(tb.Align) {
		case "center":
			x = tb.X + (tb.Width-line.Width)/2
		case "right", "end":
			x = tb.X + tb.Width - line.Width
		default:
			x = tb.X + line.Indent
		}
		if line.Content != "" {
			d.pdf.Text(x, cursorY+tb.FontSize*AscentRatio, d.r.encode(entry, line.Content))
		}
		h := line.Height
		if h <= 0 {
			h = tb.LineHeight
		}
		cursorY += h
	}
	return nil
}

func (d *document) drawRect(rc layout.Rect) {
	style := ""
	if rc.FillColor != nil {
		d.pdf.SetFillColor(rc.FillColor.R, rc.FillColor.G, rc.FillColor.B)
		style += "F"
	}
	if rc.StrokeWidth > 0 {
		d.pdf.SetDrawColor(rc.StrokeColor.R, rc.StrokeColor.G, rc.StrokeColor.B)
		d.pdf.SetLineWidth(rc.StrokeWidth)
		style += "D"
	}
	if style == "" {
		return
	}
	d.pdf.Rect(rc.X, rc.Y, rc.Width, rc.Height, style)
}

// drawImage 把图片重采样到目标像素尺寸后以 JPEG 嵌入。
func (d *document) drawImage(box layout.ImageBox) {
	if box.Image == nil || box.Width <= 0 || box.Height <= 0 {
		return
	}
	if box.Image.Bounds().Empty() {
		d.r.log.Warn("插图尺寸为空，已跳过", zap.String("ref", box.Ref))
		return
	}
	w, h := imagery.PixelBox(box.Width, box.Height, d.r.dpi)
	var img image.Image
	if box.Fit == "stretch" {
		img = imaging.Resize(box.Image, w, h, imaging.Lanczos)
	} else {
		img = imagery.Fit(box.Image, w, h)
	}

	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		d.r.log.Warn("插图编码失败，已跳过", zap.String("ref", box.Ref), zap.Error(err))
		return
	}
	d.images++
	name := fmt.Sprintf("img%04d", d.images)
	opts := fpdf.ImageOptions{ImageType: "JPG", ReadDpi: false}
	d.pdf.RegisterImageOptionsReader(name, opts, buf)
	d.pdf.ImageOptions(name, box.X, box.Y, box.Width, box.Height, false, opts, 0, "")
}
