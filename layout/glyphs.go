package layout

import (
	"strings"

	"go.uber.org/zap"
)

const (
	replacementRune = '\uFFFD'
	dropRune        = rune(-1)
)

type glyphKey struct {
	font string
	r    rune
}

// renderable 把字体无法渲染的字符替换为 U+FFFD；字体也没有 U+FFFD 时用 '?'，仍不行则丢弃。
func (e *engine) renderable(word string, font FontResource) string {
	if e.ts == nil {
		return word
	}
	changed := false
	out := strings.Map(func(r rune) rune {
		sub := e.substitute(font, r)
		if sub != r {
			changed = true
		}
		return sub
	}, word)
	if !changed {
		return word
	}
	return out
}

func (e *engine) substitute(font FontResource, r rune) rune {
	key := glyphKey{font: font.Name, r: r}
	if sub, ok := e.glyphs[key]; ok {
		if sub != r {
			e.diag.Substitutions++
		}
		return sub
	}

	sub := r
	if !e.ts.HasGlyph(font, r) {
		switch {
		case e.ts.HasGlyph(font, replacementRune):
			sub = replacementRune
		case e.ts.HasGlyph(font, '?'):
			sub = '?'
		default:
			sub = dropRune
		}
		e.diag.Substitutions++
		e.log.Warn("字体缺少字形，已替换",
			zap.String("font", font.Name),
			zap.String("rune", string(r)),
			zap.Int32("code", r),
			zap.Bool("dropped", sub == dropRune))
	}
	e.glyphs[key] = sub
	return sub
}
