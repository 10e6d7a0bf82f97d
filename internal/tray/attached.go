package tray

import (
	"reflect"
	"weak"

	"github.com/puzpuzpuz/xsync/v3"
)

// 覆盖层内容 -> 所属 Icon 的旁路表。
// 以内容的指针地址为键，不持有内容本身，内容生命周期由外部决定；
// 也不持有 Icon，未关闭的 Icon 仍可被回收。
var parents = xsync.NewMapOf[uintptr, weak.Pointer[Icon]]()

func contentKey(s Surface) (uintptr, bool) {
	if s == nil {
		return 0, false
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return v.Pointer(), true
	default:
		return 0, false
	}
}

// sameSurface 按内容身份比较
func sameSurface(a, b Surface) bool {
	ka, okA := contentKey(a)
	kb, okB := contentKey(b)
	return okA && okB && ka == kb
}

func attach(s Surface, owner *Icon) {
	if owner == nil {
		return
	}
	if key, ok := contentKey(s); ok {
		parents.Store(key, weak.Make(owner))
	}
}

// detach 只移除属于 owner 的关联
func detach(s Surface, owner *Icon) {
	key, ok := contentKey(s)
	if !ok {
		return
	}
	wp := weak.Make(owner)
	parents.Compute(key, func(old weak.Pointer[Icon], loaded bool) (weak.Pointer[Icon], bool) {
		if !loaded || old != wp {
			return old, !loaded
		}
		return old, true
	})
}

// ParentIcon 查找覆盖层内容当前所属的托盘图标
func ParentIcon(s Surface) (*Icon, bool) {
	key, ok := contentKey(s)
	if !ok {
		return nil, false
	}
	wp, ok := parents.Load(key)
	if !ok {
		return nil, false
	}
	owner := wp.Value()
	return owner, owner != nil
}
