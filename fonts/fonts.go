// Package fonts 提供字体来源链：按顺序尝试各个来源，末尾总有一个必定可用的内置字体。
package fonts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-fonts/latin-modern/lmroman10bold"
	"github.com/go-fonts/latin-modern/lmroman10italic"
	"github.com/go-fonts/latin-modern/lmroman10regular"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
)

// BuiltinPrefix 标记内置字体来源，例如 "builtin:latin-modern"。
const BuiltinPrefix = "builtin:"

// ErrNoProvider 表示来源链为空。
var ErrNoProvider = errors.New("字体来源链为空")

var builtins = map[string][]byte{
	"go-regular":          goregular.TTF,
	"go-bold":             gobold.TTF,
	"go-italic":           goitalic.TTF,
	"latin-modern":        lmroman10regular.TTF,
	"latin-modern-bold":   lmroman10bold.TTF,
	"latin-modern-italic": lmroman10italic.TTF,
}

// BuiltinNames 返回全部内置字体名，按字母序。
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin 返回内置字体数据。
func Builtin(name string) ([]byte, error) {
	name = strings.TrimPrefix(strings.TrimPrefix(name, BuiltinPrefix), "built-in:")
	data, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("找不到内置字体 %s", name)
	}
	return data, nil
}

// Provider 是字体来源链中的一环。
type Provider interface {
	Name() string
	Bytes() ([]byte, error)
}

type builtinProvider struct{ name string }

func (p builtinProvider) Name() string           { return BuiltinPrefix + p.name }
func (p builtinProvider) Bytes() ([]byte, error) { return Builtin(p.name) }

type fileProvider struct {
	src  string
	path string
}

func (p fileProvider) Name() string { return p.src }

func (p fileProvider) Bytes() ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("读取字体 %s 失败: %w", p.src, err)
	}
	return data, nil
}

// Chain 把配置中的来源列表转换为来源链，相对路径基于 baseDir。
// 链尾总是追加与 style 对应的 Go 字体，保证最后一环可用。
func Chain(sources []string, baseDir, style string) []Provider {
	chain := make([]Provider, 0, len(sources)+1)
	for _, src := range sources {
		src = strings.TrimSpace(src)
		switch {
		case src == "":
			continue
		case strings.HasPrefix(src, BuiltinPrefix), strings.HasPrefix(src, "built-in:"):
			name := strings.TrimPrefix(strings.TrimPrefix(src, BuiltinPrefix), "built-in:")
			chain = append(chain, builtinProvider{name: name})
		default:
			path := src
			if !filepath.IsAbs(path) && baseDir != "" {
				path = filepath.Join(baseDir, path)
			}
			chain = append(chain, fileProvider{src: src, path: path})
		}
	}
	return append(chain, builtinProvider{name: lastResort(style)})
}

func lastResort(style string) string {
	s := strings.ToLower(style)
	switch {
	case strings.Contains(s, "bold"):
		return "go-bold"
	case strings.Contains(s, "italic"):
		return "go-italic"
	default:
		return "go-regular"
	}
}

// Face 是来源链解析出的字体数据。
type Face struct {
	Source   string
	Data     []byte
	Fallback bool // 不是链中的第一个来源
	Errors   []error
}

// Validate 检查数据是否为可解析的 TrueType/OpenType 字体。
func Validate(data []byte) error {
	_, err := sfnt.Parse(data)
	return err
}

// IsTrueType 判断数据是否为 glyf 轮廓的 TrueType 字体（而非 CFF 的 OpenType）。
func IsTrueType(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	switch string(data[:4]) {
	case "\x00\x01\x00\x00", "true":
		return true
	}
	return false
}

// Resolve 依次尝试来源，第一个读取成功且通过 accept 的来源胜出。
// accept 为空时使用 Validate。失败的来源会被记录在 Face.Errors 中。
func Resolve(chain []Provider, accept func(data []byte) error) (*Face, error) {
	if len(chain) == 0 {
		return nil, ErrNoProvider
	}
	if accept == nil {
		accept = Validate
	}
	var errs []error
	for i, p := range chain {
		data, err := p.Bytes()
		if err == nil {
			err = accept(data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		return &Face{Source: p.Name(), Data: data, Fallback: i > 0, Errors: errs}, nil
	}
	return nil, fmt.Errorf("没有可用的字体来源: %w", errors.Join(errs...))
}
