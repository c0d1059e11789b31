package layout

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ByLCY/storybook/binding"
)

var (
	textColor        = Color{R: 30, G: 30, B: 30}
	footerColor      = Color{R: 90, G: 90, B: 90}
	placeholderFrame = Color{R: 150, G: 150, B: 150}
	placeholderFill  = Color{R: 240, G: 240, B: 240}
	coverBand        = Color{R: 255, G: 255, B: 255}
)

const (
	// titleOffset 标题页中标题相对上边距的下移距离（mm）。
	titleOffset = 17.0
	// frameWidth 占位框线宽（mm）。
	frameWidth = 0.4
)

type state int

const (
	stateCover state = iota
	stateTitle
	stateBody
	stateDone
)

type engine struct {
	book Book
	set  Settings
	geo  Geometry
	ts   Typesetter
	log  *zap.Logger

	pc   *pageCollector
	diag Diagnostics

	next     int // 下一张待放置插图
	frag     int // 当前段落在本页 Texts 中的下标，-1 表示尚未开始
	fragPage int

	glyphs        map[glyphKey]rune
	metricsWarned bool
}

// Build 执行分页排版：封面 → 标题页 → 正文页 → 收尾。
// 只有几何配置非法时返回错误；字体、插图等问题在本地降级并记录到 Diagnostics。
func Build(book Book, opts BuildOptions) (*Result, error) {
	set := opts.Settings
	if err := set.Geometry.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if set.Fonts.Body.Name == "" {
		set.Fonts.Body.Name = FontBody
	}
	if set.Fonts.Title.Name == "" {
		set.Fonts.Title.Name = FontTitle
	}

	e := &engine{
		book:   book,
		set:    set,
		geo:    set.Geometry,
		ts:     opts.Typesetter,
		log:    log,
		pc:     newPageCollector(set.Geometry),
		frag:   -1,
		glyphs: map[glyphKey]rune{},
	}
	e.pc.onOpen = e.drawHeader
	e.pc.onClose = e.drawFooter
	if e.ts == nil {
		e.degradeMetrics("未提供排版后端", nil)
	}
	e.checkLabels()

	e.run()

	res := e.result()
	e.log.Debug("排版完成",
		zap.Int("pages", len(res.Pages)),
		zap.Int("bodyPages", res.BodyPages()),
		zap.Int("paragraphs", len(book.Paragraphs)),
		zap.Int("illustrations", len(book.Illustrations)),
		zap.Int("placeholders", e.diag.Placeholders),
		zap.Int("substitutions", e.diag.Substitutions),
		zap.Bool("estimatedMetrics", e.diag.EstimatedMetrics))
	return res, nil
}

func (e *engine) run() {
	st := stateCover
	for {
		switch st {
		case stateCover:
			if e.book.Cover != nil {
				e.coverPage()
			}
			st = stateTitle
		case stateTitle:
			e.titlePage()
			st = stateBody
		case stateBody:
			e.bodyPages()
			st = stateDone
		case stateDone:
			e.finish()
			return
		}
	}
}

func (e *engine) result() *Result {
	meta := e.set.Meta
	meta.Title = e.book.Title
	meta.Author = e.book.Author
	return &Result{
		Pages: e.pc.pages,
		Resources: ResourceSet{Fonts: map[string]FontResource{
			FontBody:  e.set.Fonts.Body,
			FontTitle: e.set.Fonts.Title,
		}},
		Meta:        meta,
		Diagnostics: e.diag,
	}
}

// labelVars 是标签模板可用的变量。
var labelVars = map[string]bool{"title": true, "author": true, "page": true}

// checkLabels 记录标签中无法解析的变量，这些占位符会原样出现在页面上。
func (e *engine) checkLabels() {
	labels := []struct{ name, text string }{
		{"author", e.set.Labels.Author},
		{"header", e.set.Labels.Header},
		{"footer", e.set.Labels.Footer},
		{"placeholder", e.set.Labels.Placeholder},
	}
	for _, l := range labels {
		for _, v := range binding.Names(l.text) {
			if labelVars[v] {
				continue
			}
			e.diag.Warnings = append(e.diag.Warnings, fmt.Sprintf("unknown variable: %s.%s", l.name, v))
			e.log.Warn("标签引用了未知变量", zap.String("label", l.name), zap.String("variable", v))
		}
	}
}

func (e *engine) vars(page int) binding.Vars {
	v := binding.Vars{"title": e.book.Title, "author": e.book.Author}
	if page > 0 {
		v["page"] = page
	}
	return v
}

// coverPage 输出整页铺满的封面，可选叠加标题。
func (e *engine) coverPage() {
	cover := *e.book.Cover
	if cover.Failed() && e.geo.OnFailure == OnFailureSkip {
		e.skipIllustration(cover, "cover")
		return
	}
	p := e.pc.frontPage(PageCover)
	if cover.Failed() {
		e.placeholder(p, cover, "cover", 0, 0, e.geo.PageWidth, e.geo.PageHeight)
	} else {
		p.Images = append(p.Images, ImageBox{
			Ref:    refName(cover, "cover"),
			Width:  e.geo.PageWidth,
			Height: e.geo.PageHeight,
			Fit:    "stretch",
			Image:  cover.Image,
		})
	}

	if !e.set.Labels.CoverTitle || strings.TrimSpace(e.book.Title) == "" {
		return
	}
	tb := e.centeredText(e.book.Title, e.set.Fonts.Title, FontTitle, e.geo.TitleFontSize, e.geo.Margin.Top+titleOffset, textColor)
	if tb == nil {
		return
	}
	pad := e.geo.TitleFontSize / 2
	p.Rects = append(p.Rects, Rect{
		X:         e.geo.Margin.Left - pad,
		Y:         tb.Y - pad,
		Width:     e.geo.TextWidth() + 2*pad,
		Height:    tb.Height + 2*pad,
		FillColor: &coverBand,
	})
	p.Texts = append(p.Texts, *tb)
}

// titlePage 输出标题与作者行，随后将页码计数器复位。
func (e *engine) titlePage() {
	p := e.pc.frontPage(PageTitle)
	y := e.geo.Margin.Top + titleOffset
	if tb := e.centeredText(e.book.Title, e.set.Fonts.Title, FontTitle, e.geo.TitleFontSize, y, textColor); tb != nil {
		p.Texts = append(p.Texts, *tb)
		y += tb.Height + e.geo.AuthorFontSize
	}
	if strings.TrimSpace(e.book.Author) != "" {
		label := binding.Interpolate(e.set.Labels.Author, e.vars(0))
		if tb := e.centeredText(label, e.set.Fonts.Body, FontBody, e.geo.AuthorFontSize, y, textColor); tb != nil {
			p.Texts = append(p.Texts, *tb)
		}
	}
	e.pc.resetNumbering()
}

func (e *engine) bodyPages() {
	for i, para := range e.book.Paragraphs {
		e.paragraph(para)
		if (i+1)%e.geo.Cadence == 0 {
			e.placeNext()
		}
	}
}

// paragraph 折行并逐行写入；每行之前检查剩余空间，不足一行时换页。
func (e *engine) paragraph(text string) {
	words := e.prepareWords(text, e.set.Fonts.Body)
	lines := e.wrapWords(words, e.set.Fonts.Body, e.geo.FontSize, e.geo.TextWidth(), e.geo.Indent, e.geo.LineHeight)
	if len(lines) == 0 {
		return
	}
	e.pc.ensureBody()
	e.frag = -1
	for _, ln := range lines {
		if !e.pc.fits(e.geo.LineHeight) {
			e.pc.pageBreak()
		}
		e.appendLine(ln)
		e.pc.cursorY += ln.Height
	}
	e.pc.cursorY += e.geo.LineHeight
}

func (e *engine) appendLine(ln TextLine) {
	page := e.pc.curr()
	pageIdx := len(e.pc.pages) - 1
	if e.frag < 0 || e.fragPage != pageIdx {
		page.Texts = append(page.Texts, TextBox{
			X:          e.geo.Margin.Left,
			Y:          e.pc.cursorY,
			Width:      e.geo.TextWidth(),
			LineHeight: e.geo.LineHeight,
			Font:       FontBody,
			FontSize:   e.geo.FontSize,
			Color:      textColor,
			Align:      "left",
		})
		e.frag = len(page.Texts) - 1
		e.fragPage = pageIdx
	}
	tb := &page.Texts[e.frag]
	tb.Lines = append(tb.Lines, ln)
	tb.Height += ln.GapBefore + ln.Height
	tb.Content = joinLines(tb.Lines)
}

// placeNext 在节奏点放置下一张插图；剩余空间低于阈值时先换页。
func (e *engine) placeNext() {
	for e.next < len(e.book.Illustrations) {
		ill := e.book.Illustrations[e.next]
		e.next++
		if ill.Failed() && e.geo.OnFailure == OnFailureSkip {
			e.skipIllustration(ill, fmt.Sprintf("illustration-%d", e.next))
			continue
		}
		e.pc.ensureBody()
		w, h := e.illustrationBox()
		if !e.pc.fits(max(e.geo.MinSpace, h)) && !e.pc.atTop() {
			e.pc.pageBreak()
		}
		e.drawIllustration(ill, w, h)
		return
	}
}

// finish 为剩余插图各开一页，最后补上当前页的页脚。
func (e *engine) finish() {
	for e.next < len(e.book.Illustrations) {
		ill := e.book.Illustrations[e.next]
		e.next++
		if ill.Failed() && e.geo.OnFailure == OnFailureSkip {
			e.skipIllustration(ill, fmt.Sprintf("illustration-%d", e.next))
			continue
		}
		if e.pc.bodyOpen {
			e.pc.pageBreak()
		} else {
			e.pc.openBody()
		}
		w, h := e.illustrationBox()
		e.drawIllustration(ill, w, h)
	}
	e.pc.closeBody()
}

func (e *engine) illustrationBox() (float64, float64) {
	return min(e.geo.IllustrationWidth, e.geo.TextWidth()), min(e.geo.IllustrationHeight, e.geo.ContentHeight())
}

// drawIllustration 在当前游标处水平居中放置固定尺寸的插图框，图片按比例缩放进框内。
func (e *engine) drawIllustration(ill Illustration, w, h float64) {
	page := e.pc.curr()
	x := e.geo.Margin.Left + (e.geo.TextWidth()-w)/2
	y := e.pc.cursorY
	ref := refName(ill, fmt.Sprintf("illustration-%d", e.next))

	if ill.Failed() {
		e.placeholder(page, ill, ref, x, y, w, h)
	} else {
		dw, dh := fitInto(ill.Image.Bounds().Dx(), ill.Image.Bounds().Dy(), w, h)
		page.Images = append(page.Images, ImageBox{
			Ref:    ref,
			X:      x + (w-dw)/2,
			Y:      y + (h-dh)/2,
			Width:  dw,
			Height: dh,
			Fit:    "contain",
			Image:  ill.Image,
		})
	}
	e.pc.cursorY = y + h + e.geo.LineHeight
}

// placeholder 为失败的插图绘制带说明文字的占位框。
func (e *engine) placeholder(page *Page, ill Illustration, ref string, x, y, w, h float64) {
	e.diag.Placeholders++
	e.diag.Warnings = append(e.diag.Warnings, "placeholder: "+ref)
	e.log.Warn("插图不可用，使用占位框", zap.String("ref", ref), zap.Error(ill.Err))

	page.Rects = append(page.Rects, Rect{
		X:           x,
		Y:           y,
		Width:       w,
		Height:      h,
		StrokeColor: placeholderFrame,
		StrokeWidth: frameWidth,
		FillColor:   &placeholderFill,
	})
	page.Images = append(page.Images, ImageBox{
		Ref:         ref,
		X:           x,
		Y:           y,
		Width:       w,
		Height:      h,
		Fit:         "contain",
		Placeholder: true,
		Caption:     e.set.Labels.Placeholder,
	})
	if caption := strings.TrimSpace(e.set.Labels.Placeholder); caption != "" {
		tb := e.textLine(caption, e.set.Fonts.Body, FontBody, e.geo.FontSize, x, 0, w, placeholderFrame)
		tb.Y = y + (h-tb.Height)/2
		page.Texts = append(page.Texts, tb)
	}
}

func (e *engine) skipIllustration(ill Illustration, ref string) {
	ref = refName(ill, ref)
	e.diag.Skipped++
	e.diag.Warnings = append(e.diag.Warnings, "skipped: "+ref)
	e.log.Warn("插图不可用，已跳过", zap.String("ref", ref), zap.Error(ill.Err))
}

func (e *engine) drawHeader(p *Page) {
	if strings.TrimSpace(e.set.Labels.Header) == "" {
		return
	}
	text := binding.Interpolate(e.set.Labels.Header, e.vars(p.Number))
	tb := e.textLine(text, e.set.Fonts.Body, FontBody, e.geo.FooterFontSize, e.geo.Margin.Left, 0, e.geo.TextWidth(), footerColor)
	tb.Y = max(0, (e.geo.Margin.Top-tb.Height)/2)
	p.Header = HeaderFooter{Height: e.geo.Margin.Top, Texts: []TextBox{tb}}
}

func (e *engine) drawFooter(p *Page) {
	if strings.TrimSpace(e.set.Labels.Footer) == "" {
		return
	}
	text := binding.Interpolate(e.set.Labels.Footer, e.vars(p.Number))
	tb := e.textLine(text, e.set.Fonts.Body, FontBody, e.geo.FooterFontSize, e.geo.Margin.Left, 0, e.geo.TextWidth(), footerColor)
	tb.Y = e.geo.PageHeight - e.geo.Margin.Bottom + max(0, (e.geo.Margin.Bottom-tb.Height)/2)
	p.Footer = HeaderFooter{Height: e.geo.Margin.Bottom, Texts: []TextBox{tb}}
}

// centeredText 折行并居中一段短文本（标题、作者行），文本为空时返回 nil。
func (e *engine) centeredText(text string, font FontResource, fontKey string, fontSize, y float64, col Color) *TextBox {
	words := e.prepareWords(text, font)
	lineHeight := fontSize * 1.25
	lines := e.wrapWords(words, font, fontSize, e.geo.TextWidth(), 0, lineHeight)
	if len(lines) == 0 {
		return nil
	}
	return &TextBox{
		Content:    joinLines(lines),
		X:          e.geo.Margin.Left,
		Y:          y,
		Width:      e.geo.TextWidth(),
		LineHeight: lineHeight,
		Font:       fontKey,
		FontSize:   fontSize,
		Color:      col,
		Lines:      lines,
		Height:     float64(len(lines)) * lineHeight,
		Align:      "center",
	}
}

// textLine 生成单行居中文本（页眉、页脚、占位说明），不折行。
func (e *engine) textLine(text string, font FontResource, fontKey string, fontSize, x, y, width float64, col Color) TextBox {
	content := strings.Join(e.prepareWords(text, font), " ")
	lineHeight := fontSize * 1.25
	return TextBox{
		Content:    content,
		X:          x,
		Y:          y,
		Width:      width,
		LineHeight: lineHeight,
		Font:       fontKey,
		FontSize:   fontSize,
		Color:      col,
		Lines: []TextLine{{
			Content: content,
			Width:   e.measure(content, font, fontSize),
			Height:  lineHeight,
		}},
		Height: lineHeight,
		Align:  "center",
	}
}

// fitInto 按比例把 iw×ih 像素缩放进 w×h 毫米的框内。
func fitInto(iw, ih int, w, h float64) (float64, float64) {
	if iw <= 0 || ih <= 0 {
		return w, h
	}
	scale := min(w/float64(iw), h/float64(ih))
	return float64(iw) * scale, float64(ih) * scale
}

func refName(ill Illustration, fallback string) string {
	if ill.Name != "" {
		return ill.Name
	}
	return fallback
}
