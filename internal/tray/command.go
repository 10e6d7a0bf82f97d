package tray

// Command 点击触发的命令。target 由调用方显式传入，不依赖 UI 树路由。
type Command interface {
	CanExecute(parameter, target any) bool
	Execute(parameter, target any)
}

// CommandFunc 始终可执行的命令
type CommandFunc func(parameter, target any)

func (f CommandFunc) CanExecute(_, _ any) bool { return true }

func (f CommandFunc) Execute(parameter, target any) { f(parameter, target) }

// ClickBinding 单击/双击绑定的命令、参数与目标。
type ClickBinding struct {
	Command   Command
	Parameter any
	// Target 为 nil 时解析为所属的 *Icon
	Target any
}

// ExecuteIfEnabled 仅在 CanExecute 为 true 时执行命令
func ExecuteIfEnabled(cmd Command, parameter, target any) bool {
	if cmd == nil || !cmd.CanExecute(parameter, target) {
		return false
	}
	cmd.Execute(parameter, target)
	return true
}
