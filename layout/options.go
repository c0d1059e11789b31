package layout

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrInvalidGeometry 表示页面几何配置无法排版，在生成任何页面之前返回。
var ErrInvalidGeometry = errors.New("页面几何配置无效")

// 字体角色名，对应 ResourceSet.Fonts 的键。
const (
	FontBody  = "body"
	FontTitle = "title"
)

// 插图失败时的处理策略。
const (
	OnFailurePlaceholder = "placeholder"
	OnFailureSkip        = "skip"
)

// BuildOptions 配置布局阶段所需的依赖，例如排版后端。
type BuildOptions struct {
	Settings   Settings
	Typesetter Typesetter
	Logger     *zap.Logger
}

// Typesetter 由渲染后端实现，保证折行测量与最终渲染使用同一套字体度量。
// fontSize 与返回宽度均为毫米（mm）。
type Typesetter interface {
	TextWidth(content string, font FontResource, fontSize float64) (float64, error)
	HasGlyph(font FontResource, r rune) bool
}

// Settings 汇总全部可配置项。
type Settings struct {
	Geometry Geometry
	Labels   Labels
	Fonts    Fonts
	Meta     DocumentMeta // 仅使用 Subject/Creator/Keywords，标题与作者来自 Book
}

// Geometry 描述页面几何与排版参数，单位 mm。
type Geometry struct {
	PageWidth  float64
	PageHeight float64
	Margin     Margin

	FontSize       float64
	LineHeight     float64
	Indent         float64 // 段首缩进
	TitleFontSize  float64
	AuthorFontSize float64
	FooterFontSize float64

	Cadence            int // 每 N 段插入一张插图
	IllustrationWidth  float64
	IllustrationHeight float64
	MinSpace           float64 // 放置插图前要求的最小剩余高度
	OnFailure          string
}

// TextWidth 返回版心宽度。
func (g Geometry) TextWidth() float64 { return g.PageWidth - g.Margin.Left - g.Margin.Right }

// ContentHeight 返回版心高度。
func (g Geometry) ContentHeight() float64 { return g.PageHeight - g.Margin.Top - g.Margin.Bottom }

// Validate 检查几何配置是否可用。
func (g Geometry) Validate() error {
	switch {
	case g.PageWidth <= 0 || g.PageHeight <= 0:
		return fmt.Errorf("%w: 纸张尺寸 %gx%g", ErrInvalidGeometry, g.PageWidth, g.PageHeight)
	case g.TextWidth() <= 0:
		return fmt.Errorf("%w: 版心宽度 %g <= 0", ErrInvalidGeometry, g.TextWidth())
	case g.FontSize <= 0:
		return fmt.Errorf("%w: 字号 %g <= 0", ErrInvalidGeometry, g.FontSize)
	case g.TitleFontSize <= 0 || g.AuthorFontSize <= 0 || g.FooterFontSize <= 0:
		return fmt.Errorf("%w: 标题/作者/页脚字号必须大于 0", ErrInvalidGeometry)
	case g.LineHeight <= 0:
		return fmt.Errorf("%w: 行高 %g <= 0", ErrInvalidGeometry, g.LineHeight)
	case g.ContentHeight() < g.LineHeight:
		return fmt.Errorf("%w: 版心高度 %g 不足一行 %g", ErrInvalidGeometry, g.ContentHeight(), g.LineHeight)
	case g.Indent < 0 || g.Indent >= g.TextWidth():
		return fmt.Errorf("%w: 段首缩进 %g 超出版心宽度", ErrInvalidGeometry, g.Indent)
	case g.Cadence < 1:
		return fmt.Errorf("%w: 插图间隔 %d < 1", ErrInvalidGeometry, g.Cadence)
	case g.IllustrationWidth <= 0 || g.IllustrationHeight <= 0:
		return fmt.Errorf("%w: 插图尺寸 %gx%g", ErrInvalidGeometry, g.IllustrationWidth, g.IllustrationHeight)
	case g.OnFailure != OnFailurePlaceholder && g.OnFailure != OnFailureSkip:
		return fmt.Errorf("%w: 未知的插图失败策略 %q", ErrInvalidGeometry, g.OnFailure)
	}
	return nil
}

// Labels 是页面上的固定文案，支持 ${title}/${author}/${page} 占位符。
type Labels struct {
	Author      string
	Header      string // 为空表示不绘制页眉
	Footer      string
	Placeholder string
	CoverTitle  bool // 在封面图上叠加标题
}

// Fonts 按角色指定字体。
type Fonts struct {
	Body  FontResource
	Title FontResource
}

// DefaultSettings 返回 A4 故事书的默认配置：
// 边距约 50pt，正文 12pt，行高 15pt，每 3 段一张约 400pt 见方的插图。
func DefaultSettings() Settings {
	return Settings{
		Geometry: Geometry{
			PageWidth:          210,
			PageHeight:         297,
			Margin:             Margin{Top: 18, Right: 18, Bottom: 18, Left: 18},
			FontSize:           12 * PtToMm,
			LineHeight:         15 * PtToMm,
			Indent:             5,
			TitleFontSize:      20 * PtToMm,
			AuthorFontSize:     14 * PtToMm,
			FooterFontSize:     10 * PtToMm,
			Cadence:            3,
			IllustrationWidth:  141,
			IllustrationHeight: 141,
			MinSpace:           159,
			OnFailure:          OnFailurePlaceholder,
		},
		Labels: Labels{
			Author:      "Author: ${author}",
			Footer:      "Page ${page}",
			Placeholder: "Illustration unavailable",
		},
		Fonts: Fonts{
			Body:  FontResource{Name: FontBody, Sources: []string{"builtin:go-regular"}},
			Title: FontResource{Name: FontTitle, Sources: []string{"builtin:go-bold"}, Style: "bold"},
		},
		Meta: DocumentMeta{Creator: "storybook"},
	}
}
