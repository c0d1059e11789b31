// Package profile 把 profile 文件中的排版设置叠加到 layout.Settings 上。
//
//	profile Bedtime v1 {
//	  page A5 landscape margin 12mm 15mm
//	  font body { src: ["fonts/Literata.ttf"] size: 13pt line-height: 1.3x }
//	  illustrations { cadence: 2 on-failure: skip }
//	  labels { footer: "- ${page} -" }
//	}
package profile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ByLCY/storybook/dsl"
	"github.com/ByLCY/storybook/fonts"
	"github.com/ByLCY/storybook/layout"
)

// Load 读取 profile 文件并应用，文件中的相对字体路径基于文件所在目录。
func Load(path string, s *layout.Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取 profile 失败: %w", err)
	}
	doc, err := dsl.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("解析 profile %s 失败: %w", path, err)
	}
	return Apply(doc, s, filepath.Dir(path))
}

// Apply 依次执行 profile 中的指令。任一指令出错时 s 保持不变。
func Apply(doc *dsl.Document, s *layout.Settings, baseDir string) error {
	if doc == nil || doc.Body == nil {
		return nil
	}
	out := *s
	out.Fonts.Body.Sources = append([]string(nil), s.Fonts.Body.Sources...)
	out.Fonts.Title.Sources = append([]string(nil), s.Fonts.Title.Sources...)
	out.Meta.Keywords = append([]string(nil), s.Meta.Keywords...)

	a := applier{set: &out, baseDir: baseDir}
	for _, st := range doc.Body.Statements {
		if st.Assignment != nil {
			return fmt.Errorf("第 %d 行：顶层不支持赋值 %s", st.Assignment.Pos.Line, st.Assignment.Key)
		}
		if err := a.command(st.Command); err != nil {
			return err
		}
	}
	*s = out
	return nil
}

type applier struct {
	set     *layout.Settings
	baseDir string
}

func (a *applier) command(cmd *dsl.Command) error {
	var err error
	switch cmd.Name {
	case "page":
		err = a.page(cmd)
	case "font":
		err = a.font(cmd)
	case "illustrations":
		err = a.each(cmd, a.illustration)
	case "labels":
		err = a.each(cmd, a.label)
	case "meta":
		err = a.each(cmd, a.meta)
	default:
		err = fmt.Errorf("未知指令 %s", cmd.Name)
	}
	if err != nil {
		return fmt.Errorf("第 %d 行：%w", cmd.Pos.Line, err)
	}
	return nil
}

// page A4 [landscape|portrait] [margin v...]
// page 150mm 200mm [margin v...]
func (a *applier) page(cmd *dsl.Command) error {
	args := lexemeValues(cmd.Args)
	sizeArgs := args
	var marginArgs []string
	for i, v := range args {
		if strings.EqualFold(v, "margin") {
			sizeArgs, marginArgs = args[:i], args[i+1:]
			break
		}
	}
	if len(sizeArgs) > 0 {
		spec := strings.Join(sizeArgs, " ")
		if len(sizeArgs) >= 2 && cmd.Args[0].Type == "Number" && cmd.Args[1].Type == "Number" {
			spec = sizeArgs[0] + "x" + sizeArgs[1] + " " + strings.Join(sizeArgs[2:], " ")
		}
		w, h, err := layout.ParsePageSize(spec)
		if err != nil {
			return err
		}
		a.set.Geometry.PageWidth, a.set.Geometry.PageHeight = w, h
	}
	if marginArgs != nil {
		m, err := layout.ParseMargin(marginArgs)
		if err != nil {
			return err
		}
		a.set.Geometry.Margin = m
	}
	if cmd.Block != nil {
		return fmt.Errorf("page 不接受语句块")
	}
	return nil
}

// font body|title|author|footer { ... }
func (a *applier) font(cmd *dsl.Command) error {
	if len(cmd.Args) != 1 {
		return fmt.Errorf("font 需要一个角色名（body/title/author/footer）")
	}
	props, err := assignments(cmd)
	if err != nil {
		return err
	}
	g := &a.set.Geometry
	role := cmd.Args[0].Value

	var res *layout.FontResource
	var size *float64
	allowed := map[string]bool{"size": true}
	switch role {
	case "body":
		res, size = &a.set.Fonts.Body, &g.FontSize
		allowed["src"], allowed["style"], allowed["line-height"], allowed["indent"] = true, true, true, true
	case "title":
		res, size = &a.set.Fonts.Title, &g.TitleFontSize
		allowed["src"], allowed["style"] = true, true
	case "author":
		size = &g.AuthorFontSize
	case "footer":
		size = &g.FooterFontSize
	default:
		return fmt.Errorf("未知的字体角色 %s", role)
	}
	for key := range props {
		if !allowed[key] {
			return fmt.Errorf("font %s 不支持属性 %s", role, key)
		}
	}

	if v, ok := props["src"]; ok {
		res.Sources = a.fontSources(v.Strings())
	}
	if v, ok := props["style"]; ok {
		res.Style = v.Text()
	}
	if v, ok := props["size"]; ok {
		l, err := layout.ParseLength(v.Text())
		if err != nil {
			return err
		}
		*size = l.ToMM()
	}
	if v, ok := props["line-height"]; ok {
		spec, err := layout.ParseLineHeight(v.Text())
		if err != nil {
			return err
		}
		g.LineHeight = spec.Resolve(g.FontSize)
	}
	if v, ok := props["indent"]; ok {
		l, err := layout.ParseLength(v.Text())
		if err != nil {
			return err
		}
		g.Indent = l.ToMM()
	}
	return nil
}

func (a *applier) fontSources(srcs []string) []string {
	out := make([]string, 0, len(srcs))
	for _, src := range srcs {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		if !strings.HasPrefix(src, fonts.BuiltinPrefix) && !filepath.IsAbs(src) && a.baseDir != "" {
			src = filepath.Join(a.baseDir, src)
		}
		out = append(out, src)
	}
	return out
}

func (a *applier) illustration(key string, v *dsl.Value) error {
	g := &a.set.Geometry
	switch key {
	case "cadence":
		n, err := strconv.Atoi(v.Text())
		if err != nil {
			return fmt.Errorf("cadence 需要整数: %w", err)
		}
		g.Cadence = n
	case "width", "height", "min-space":
		l, err := layout.ParseLength(v.Text())
		if err != nil {
			return err
		}
		switch key {
		case "width":
			g.IllustrationWidth = l.ToMM()
		case "height":
			g.IllustrationHeight = l.ToMM()
		default:
			g.MinSpace = l.ToMM()
		}
	case "on-failure":
		g.OnFailure = v.Text()
	default:
		return fmt.Errorf("illustrations 不支持属性 %s", key)
	}
	return nil
}

func (a *applier) label(key string, v *dsl.Value) error {
	l := &a.set.Labels
	switch key {
	case "author":
		l.Author = v.Text()
	case "header":
		l.Header = v.Text()
	case "footer":
		l.Footer = v.Text()
	case "placeholder":
		l.Placeholder = v.Text()
	case "cover-title":
		b, err := strconv.ParseBool(v.Text())
		if err != nil {
			return fmt.Errorf("cover-title 需要 true/false: %w", err)
		}
		l.CoverTitle = b
	default:
		return fmt.Errorf("labels 不支持属性 %s", key)
	}
	return nil
}

func (a *applier) meta(key string, v *dsl.Value) error {
	m := &a.set.Meta
	switch key {
	case "subject":
		m.Subject = v.Text()
	case "creator":
		m.Creator = v.Text()
	case "keywords":
		m.Keywords = v.Strings()
	default:
		return fmt.Errorf("meta 不支持属性 %s", key)
	}
	return nil
}

func (a *applier) each(cmd *dsl.Command, fn func(key string, v *dsl.Value) error) error {
	if len(cmd.Args) > 0 {
		return fmt.Errorf("%s 不接受参数", cmd.Name)
	}
	if cmd.Block == nil {
		return fmt.Errorf("%s 需要语句块", cmd.Name)
	}
	for _, st := range cmd.Block.Statements {
		if st.Assignment == nil {
			return fmt.Errorf("%s 中只允许 key: value 形式", cmd.Name)
		}
		if err := fn(st.Assignment.Key, st.Assignment.Value); err != nil {
			return err
		}
	}
	return nil
}

func assignments(cmd *dsl.Command) (map[string]*dsl.Value, error) {
	props := map[string]*dsl.Value{}
	if cmd.Block == nil {
		return props, nil
	}
	for _, st := range cmd.Block.Statements {
		if st.Assignment == nil {
			return nil, fmt.Errorf("%s 中只允许 key: value 形式", cmd.Name)
		}
		props[st.Assignment.Key] = st.Assignment.Value
	}
	return props, nil
}

func lexemeValues(args []*dsl.Lexeme) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		out = append(out, a.Value)
	}
	return out
}
