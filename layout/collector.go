package layout

// pageCollector 持有排版游标：当前页、纵向位置与可见页码。
// 正文页按需打开，关闭时回调绘制页脚，打开时回调绘制页眉。
type pageCollector struct {
	geo      Geometry
	pages    []Page
	number   int
	cursorY  float64
	bodyOpen bool

	onOpen  func(p *Page)
	onClose func(p *Page)
}

const layoutEpsilon = 1e-9

func newPageCollector(geo Geometry) *pageCollector {
	return &pageCollector{geo: geo}
}

// frontPage 追加一张不编号的前置页（封面或标题页）。
func (pc *pageCollector) frontPage(kind PageKind) *Page {
	pc.pages = append(pc.pages, pc.blank(kind, 0))
	return pc.curr()
}

func (pc *pageCollector) blank(kind PageKind, number int) Page {
	return Page{
		Number: number,
		Kind:   kind,
		Width:  pc.geo.PageWidth,
		Height: pc.geo.PageHeight,
		Margin: pc.geo.Margin,
	}
}

// curr 返回最后一页。指针在下一次追加页面前有效。
func (pc *pageCollector) curr() *Page {
	return &pc.pages[len(pc.pages)-1]
}

func (pc *pageCollector) resetNumbering() { pc.number = 0 }

func (pc *pageCollector) openBody() {
	pc.number++
	pc.pages = append(pc.pages, pc.blank(PageBody, pc.number))
	pc.cursorY = pc.contentTop()
	pc.bodyOpen = true
	if pc.onOpen != nil {
		pc.onOpen(pc.curr())
	}
}

func (pc *pageCollector) closeBody() {
	if !pc.bodyOpen {
		return
	}
	if pc.onClose != nil {
		pc.onClose(pc.curr())
	}
	pc.bodyOpen = false
}

func (pc *pageCollector) ensureBody() {
	if !pc.bodyOpen {
		pc.openBody()
	}
}

func (pc *pageCollector) pageBreak() {
	pc.closeBody()
	pc.openBody()
}

func (pc *pageCollector) contentTop() float64 { return pc.geo.Margin.Top }

func (pc *pageCollector) contentBottom() float64 { return pc.geo.PageHeight - pc.geo.Margin.Bottom }

func (pc *pageCollector) remaining() float64 { return pc.contentBottom() - pc.cursorY }

// fits 判断剩余空间是否容得下 height。
func (pc *pageCollector) fits(height float64) bool { return pc.remaining()+layoutEpsilon >= height }

// atTop 表示当前正文页尚未放置任何内容。
func (pc *pageCollector) atTop() bool { return pc.cursorY <= pc.contentTop()+layoutEpsilon }
