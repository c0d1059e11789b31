package renderer

import "github.com/ByLCY/storybook/layout"

// Renderer 将布局结果输出为最终文件，例如 PDF。
// Render 返回生成的二进制数据以及可能的错误。
type Renderer interface {
	Render(result *layout.Result) ([]byte, error)
}

// Backend 同时负责测量与渲染，保证折行时使用的字体度量与最终输出一致。
type Backend interface {
	Renderer
	layout.Typesetter
}
