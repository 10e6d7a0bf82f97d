//go:build stub

package shell

import "context"

func open(_ context.Context, opts Options) (*Backend, error) {
	b, _, _ := NewMemory()
	opts.Logger.Info("🧪 [托盘] 使用内存后端（stub 构建）")
	return b, nil
}
