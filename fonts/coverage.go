package fonts

import (
	"fmt"
	"sync"

	"golang.org/x/image/font/sfnt"
)

// Coverage 回答字体是否包含某个字符的字形，结果按字符缓存。
type Coverage struct {
	mu    sync.Mutex
	font  *sfnt.Font
	buf   sfnt.Buffer
	cache map[rune]bool
}

// NewCoverage 解析字体数据。
func NewCoverage(data []byte) (*Coverage, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("解析字体失败: %w", err)
	}
	return &Coverage{font: f, cache: map[rune]bool{}}, nil
}

// Has 报告字体是否能渲染 r。空白字符总是视为可渲染。
func (c *Coverage) Has(r rune) bool {
	if r == ' ' || r == '\u00A0' {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok, found := c.cache[r]; found {
		return ok
	}
	idx, err := c.font.GlyphIndex(&c.buf, r)
	ok := err == nil && idx != 0
	c.cache[r] = ok
	return ok
}
