package layout

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// measure 用排版后端测量文本宽度（mm）；后端缺失或出错时退化为字符数估算并记录。
func (e *engine) measure(content string, font FontResource, fontSize float64) float64 {
	if e.ts != nil {
		w, err := e.ts.TextWidth(content, font, fontSize)
		if err == nil {
			return w
		}
		e.degradeMetrics("字宽测量失败", err)
	}
	return estimateTextWidth(content, fontSize)
}

func (e *engine) degradeMetrics(reason string, err error) {
	e.diag.EstimatedMetrics = true
	if e.metricsWarned {
		return
	}
	e.metricsWarned = true
	e.diag.Warnings = append(e.diag.Warnings, "estimated metrics: "+reason)
	e.log.Warn("无法使用真实字体度量，改用字符数估算", zap.String("reason", reason), zap.Error(err))
}

// estimateTextWidth 是没有字体度量时的粗略估算，仅作降级使用。
func estimateTextWidth(content string, fontSize float64) float64 {
	if fontSize <= 0 {
		fontSize = 12 * PtToMm
	}
	return fontSize * 0.55 * float64(utf8.RuneCountInString(content)+1)
}

// wrapWords 贪心折行：逐词追加，候选行测量宽度超出预算时另起一行。
// 首行预算扣除缩进；单个超长词独占一行，不会被丢弃。
func (e *engine) wrapWords(words []string, font FontResource, fontSize, width, indent, lineHeight float64) []TextLine {
	var (
		lines        []TextLine
		current      string
		currentWidth float64
		budget       = width - indent
		lineIndent   = indent
	)
	emit := func() {
		lines = append(lines, TextLine{
			Content: current,
			Width:   currentWidth,
			Height:  lineHeight,
			Indent:  lineIndent,
		})
		budget = width
		lineIndent = 0
	}

	for _, word := range words {
		if current == "" {
			current = word
			currentWidth = e.measure(word, font, fontSize)
			continue
		}
		candidate := current + " " + word
		cw := e.measure(candidate, font, fontSize)
		if cw <= budget+layoutEpsilon {
			current, currentWidth = candidate, cw
			continue
		}
		emit()
		current = word
		currentWidth = e.measure(word, font, fontSize)
	}
	if current != "" {
		emit()
	}
	return lines
}

// prepareWords 切词并替换无法渲染的字符，清理后为空的词被丢弃。
func (e *engine) prepareWords(text string, font FontResource) []string {
	fields := strings.Fields(text)
	words := fields[:0]
	for _, f := range fields {
		if w := e.renderable(f, font); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func joinLines(lines []TextLine) string {
	parts := make([]string, len(lines))
	for i, ln := range lines {
		parts[i] = ln.Content
	}
	return strings.Join(parts, " ")
}
