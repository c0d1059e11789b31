package layout

import (
	"image"
)

// 该文件定义布局输入与结果，供布局计算、渲染与调试 JSON 共用。
// 所有长度单位均为毫米（mm）。

// Book 是一次排版的全部输入。
type Book struct {
	Title         string
	Author        string
	Paragraphs    []string
	Cover         *Illustration
	Illustrations []Illustration
}

// Illustration 是已解码的插图。Image 为空表示生成或解码失败。
type Illustration struct {
	Name  string
	Image image.Image
	Err   error
}

// Failed 判断插图是否为失败标记，尺寸为空的图片同样视为失败。
func (i Illustration) Failed() bool { return i.Image == nil || i.Image.Bounds().Empty() }

// PageKind 区分封面、标题页与正文页。
type PageKind string

const (
	PageCover PageKind = "cover"
	PageTitle PageKind = "title"
	PageBody  PageKind = "body"
)

// Result 保存布局后的页面与资源信息。
type Result struct {
	Pages       []Page       `json:"pages"`
	Resources   ResourceSet  `json:"resources"`
	Meta        DocumentMeta `json:"meta"`
	Diagnostics Diagnostics  `json:"diagnostics"`
}

// BodyPages 返回正文页数量。
func (r *Result) BodyPages() int {
	n := 0
	for _, p := range r.Pages {
		if p.Kind == PageBody {
			n++
		}
	}
	return n
}

// Diagnostics 汇总排版过程中被吸收的降级情况。
type Diagnostics struct {
	EstimatedMetrics bool     `json:"estimatedMetrics"` // 字宽使用了字符数估算
	Placeholders     int      `json:"placeholders"`
	Skipped          int      `json:"skipped"`
	Substitutions    int      `json:"substitutions"`
	Warnings         []string `json:"warnings,omitempty"`
}

// ResourceSet 记录排版用到的字体。
type ResourceSet struct {
	Fonts map[string]FontResource `json:"fonts"`
}

// FontResource 描述字体资源。Sources 按顺序尝试，
// 元素可以是文件路径或 builtin:* 形式，渲染器在末尾保证追加内置字体。
type FontResource struct {
	Name    string   `json:"name"`
	Sources []string `json:"sources"`
	Style   string   `json:"style"`
}

// Color 采用 0-255 的 RGB 数值。
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Page 记录页面尺寸、边距与最终可以直接渲染的元素。
type Page struct {
	Number int      `json:"number"` // 0 表示不编号（封面、标题页）
	Kind   PageKind `json:"kind"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	Margin Margin   `json:"margin"`

	Texts  []TextBox  `json:"texts"`
	Images []ImageBox `json:"images"`
	Rects  []Rect     `json:"rects,omitempty"`

	Header HeaderFooter `json:"header"`
	Footer HeaderFooter `json:"footer"`
}

// HeaderFooter 描述页眉/页脚区域。
type HeaderFooter struct {
	Height float64   `json:"height"`
	Texts  []TextBox `json:"texts"`
}

// Margin 以毫米为单位。
type Margin struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// TextBox 表示一个已经排好坐标的文本块。
type TextBox struct {
	Content    string     `json:"content"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Width      float64    `json:"width"`
	LineHeight float64    `json:"lineHeight"`
	Font       string     `json:"font"`
	FontSize   float64    `json:"fontSize"`
	Color      Color      `json:"color"`
	Lines      []TextLine `json:"lines"`
	Height     float64    `json:"height"`
	Align      string     `json:"align,omitempty"` // left/center/right（默认 left）
}

// TextLine 表示排版后的一行文本内容及其宽高。
type TextLine struct {
	Content   string  `json:"content"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	GapBefore float64 `json:"gapBefore,omitempty"`
	Indent    float64 `json:"indent,omitempty"`
}

// ImageBox 用于描述图片位置与尺寸。Fit 取值 stretch 或 contain。
type ImageBox struct {
	Ref         string      `json:"ref"`
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	Width       float64     `json:"width"`
	Height      float64     `json:"height"`
	Fit         string      `json:"fit"`
	Image       image.Image `json:"-"`
	Placeholder bool        `json:"placeholder,omitempty"`
	Caption     string      `json:"caption,omitempty"`
}

// Rect 表示一个矩形（不包含圆角）。
type Rect struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	StrokeColor Color   `json:"strokeColor"`
	StrokeWidth float64 `json:"strokeWidth"`
	FillColor   *Color  `json:"fillColor,omitempty"` // 为空表示不填充
}

// DocumentMeta 保存 PDF 元信息。
type DocumentMeta struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Subject  string   `json:"subject"`
	Creator  string   `json:"creator"`
	Keywords []string `json:"keywords"`
}
