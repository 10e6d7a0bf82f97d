package tray

import (
	"fmt"
	"strings"
)

// ActivationMode 决定哪些鼠标事件会打开弹窗或上下文菜单。
type ActivationMode int

const (
	ActivateLeftClick ActivationMode = iota
	ActivateDoubleClick
	ActivateRightClick
	ActivateLeftOrRightClick
	ActivateLeftOrDoubleClick
	ActivateMiddleClick
	ActivateAll
)

var activationNames = map[ActivationMode]string{
	ActivateLeftClick:         "left_click",
	ActivateDoubleClick:       "double_click",
	ActivateRightClick:        "right_click",
	ActivateLeftOrRightClick:  "left_or_right_click",
	ActivateLeftOrDoubleClick: "left_or_double_click",
	ActivateMiddleClick:       "middle_click",
	ActivateAll:               "all",
}

// String 返回配置文件中使用的名称
func (m ActivationMode) String() string {
	if name, ok := activationNames[m]; ok {
		return name
	}
	return "unknown"
}

// Matches 判断鼠标事件是否满足该激活方式
func (m ActivationMode) Matches(me MouseEvent) bool {
	switch m {
	case ActivateLeftClick:
		return me == LeftMouseUp
	case ActivateRightClick:
		return me == RightMouseUp
	case ActivateLeftOrRightClick:
		return me == LeftMouseUp || me == RightMouseUp
	case ActivateLeftOrDoubleClick:
		return me == LeftMouseUp || me == DoubleClick
	case ActivateDoubleClick:
		return me == DoubleClick
	case ActivateMiddleClick:
		return me == MiddleMouseUp
	case ActivateAll:
		// 除了鼠标移动以外的所有事件
		return me != MouseMove
	default:
		return false
	}
}

// ParseActivationMode 解析配置中的激活方式（大小写不敏感，允许 '-'）
func ParseActivationMode(s string) (ActivationMode, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for mode, name := range activationNames {
		if name == key {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown activation mode %q", s)
}
