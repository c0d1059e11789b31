// Package manuscript 把原始故事文本整理成段落序列。
package manuscript

import (
	"strings"
	"unicode"
)

// Segment 按空行切分段落。
//
// 同一段内的换行会被折叠为单个空格（对话的多行排版也会被拉平），
// 空段落与纯空白段落不会出现在结果中。
func Segment(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var (
		paragraphs []string
		buf        strings.Builder
	)
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		paragraphs = append(paragraphs, buf.String())
		buf.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(line)
	}
	flush()
	return paragraphs
}

// Stats 返回段落数与词数，仅用于日志。
func Stats(paragraphs []string) (int, int) {
	words := 0
	for _, p := range paragraphs {
		words += len(strings.FieldsFunc(p, unicode.IsSpace))
	}
	return len(paragraphs), words
}
