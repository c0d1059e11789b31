// Package pipeline 串联一次完整的排版：读取故事与插图、分段、排版、渲染。
// 每次调用使用独立的 Request，核心流程不依赖任何全局可变状态。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ByLCY/storybook/binding"
	"github.com/ByLCY/storybook/imagery"
	"github.com/ByLCY/storybook/layout"
	"github.com/ByLCY/storybook/manuscript"
	"github.com/ByLCY/storybook/renderer"
)

// ErrEmptyRequest 表示请求中没有故事来源。
var ErrEmptyRequest = errors.New("请求中缺少故事来源")

// Stage 标识出错的阶段。
type Stage string

const (
	StageStory  Stage = "story"
	StageArt    Stage = "art"
	StageLayout Stage = "layout"
	StageRender Stage = "render"
	StageWrite  Stage = "write"
)

// BuildError 是流水线对外返回的唯一错误类型。
type BuildError struct {
	Stage Stage
	Err   error
}

func (e *BuildError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *BuildError) Unwrap() error { return e.Err }

// StorySource 提供故事正文。
type StorySource interface {
	Story(ctx context.Context) (string, error)
}

// ArtSource 提供封面与插图。单张插图失败不应返回错误，而是以失败标记的形式出现在结果中。
type ArtSource interface {
	Art(ctx context.Context) (cover *layout.Illustration, images []layout.Illustration, err error)
}

// StoryFile 从文本文件读取故事。
type StoryFile string

func (f StoryFile) Story(ctx context.Context) (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("读取故事文件失败: %w", err)
	}
	return string(data), nil
}

// StoryText 直接使用给定文本。
type StoryText string

func (s StoryText) Story(context.Context) (string, error) { return string(s), nil }

// ArtFiles 从磁盘加载封面与插图。
type ArtFiles struct {
	Cover  string
	Images []string
	Log    *zap.Logger
}

func (a ArtFiles) Art(ctx context.Context) (*layout.Illustration, []layout.Illustration, error) {
	var cover *layout.Illustration
	if a.Cover != "" {
		ill := imagery.Load(a.Cover)
		if ill.Err != nil && a.Log != nil {
			a.Log.Warn("无法加载封面", zap.String("path", a.Cover), zap.Error(ill.Err))
		}
		cover = &ill
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return cover, imagery.LoadAll(a.Images, a.Log), nil
}

// Request 是一次排版的全部输入，调用方构造后不再修改。
type Request struct {
	Title  string
	Author string
	Story  StorySource
	Art    ArtSource // 可以为空
}

// Options 配置流水线。
type Options struct {
	Settings   layout.Settings
	Backend    renderer.Backend
	Logger     *zap.Logger
	LayoutJSON string // 非空时把排版结果写成调试 JSON
}

// Artifact 是一次成功运行的产物。
type Artifact struct {
	PDF    []byte
	Result *layout.Result
}

// Run 依次执行各阶段，阶段之间检查 ctx 是否已取消。
func Run(ctx context.Context, req Request, opts Options) (*Artifact, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if req.Story == nil {
		return nil, &BuildError{Stage: StageStory, Err: ErrEmptyRequest}
	}
	if opts.Backend == nil {
		return nil, &BuildError{Stage: StageRender, Err: errors.New("未配置渲染后端")}
	}

	if err := ctx.Err(); err != nil {
		return nil, &BuildError{Stage: StageStory, Err: err}
	}
	text, err := req.Story.Story(ctx)
	if err != nil {
		return nil, &BuildError{Stage: StageStory, Err: err}
	}
	paragraphs := manuscript.Segment(text)
	count, words := manuscript.Stats(paragraphs)
	log.Debug("故事已分段", zap.Int("paragraphs", count), zap.Int("words", words))

	book := layout.Book{Title: req.Title, Author: req.Author, Paragraphs: paragraphs}
	if req.Art != nil {
		if err := ctx.Err(); err != nil {
			return nil, &BuildError{Stage: StageArt, Err: err}
		}
		book.Cover, book.Illustrations, err = req.Art.Art(ctx)
		if err != nil {
			return nil, &BuildError{Stage: StageArt, Err: err}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, &BuildError{Stage: StageLayout, Err: err}
	}
	res, err := layout.Build(book, layout.BuildOptions{
		Settings:   opts.Settings,
		Typesetter: opts.Backend,
		Logger:     log.Named("layout"),
	})
	if err != nil {
		return nil, &BuildError{Stage: StageLayout, Err: err}
	}
	if opts.LayoutJSON != "" {
		if err := layout.WriteDebugJSON(res, opts.LayoutJSON); err != nil {
			return nil, &BuildError{Stage: StageLayout, Err: err}
		}
		log.Debug("已写出排版调试文件", zap.String("path", opts.LayoutJSON))
	}

	if err := ctx.Err(); err != nil {
		return nil, &BuildError{Stage: StageRender, Err: err}
	}
	data, err := opts.Backend.Render(res)
	if err != nil {
		return nil, &BuildError{Stage: StageRender, Err: err}
	}
	log.Info("排版完成",
		zap.Int("pages", len(res.Pages)),
		zap.Int("bodyPages", res.BodyPages()),
		zap.Int("placeholders", res.Diagnostics.Placeholders),
		zap.Int("skipped", res.Diagnostics.Skipped),
		zap.Bool("estimatedMetrics", res.Diagnostics.EstimatedMetrics))
	return &Artifact{PDF: data, Result: res}, nil
}

// OutputName 按模板生成输出文件名，${title} 替换为规范化后的书名，总是以 .pdf 结尾。
func OutputName(template, title string) string {
	if strings.TrimSpace(template) == "" {
		template = "${title}"
	}
	name := slug.Make(title)
	if name == "" {
		name = "storybook"
	}
	out := strings.TrimSpace(binding.Interpolate(template, binding.Vars{"title": name}))
	if out == "" {
		out = name
	}
	if !strings.EqualFold(filepath.Ext(out), ".pdf") {
		out += ".pdf"
	}
	return out
}

// WriteArtifact 写出 PDF。overwrite 为 false 时已有文件视为错误。
func WriteArtifact(path string, data []byte, overwrite bool) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &BuildError{Stage: StageWrite, Err: fmt.Errorf("创建输出目录失败: %w", err)}
		}
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			err = fmt.Errorf("输出文件 %s 已存在: %w", path, err)
		}
		return &BuildError{Stage: StageWrite, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierr.Append(err, &BuildError{Stage: StageWrite, Err: cerr})
		}
	}()
	if _, err := f.Write(data); err != nil {
		return &BuildError{Stage: StageWrite, Err: err}
	}
	return nil
}
