package tray

// Close 释放控制器：停止定时器、关闭消息窗口、移除图标。
// 重复调用是安全的，之后的所有操作都变为空操作。
func (i *Icon) Close() error {
	t := i.t
	var err error
	t.onUI(func() { err = t.dispose() })
	return err
}

// dispose 只有第一次调用生效
func (t *taskbar) dispose() error {
	t.mu.Lock()
	if !t.disposed.CompareAndSwap(false, true) {
		t.mu.Unlock()
		return nil
	}
	unregister := t.unregisterExit
	t.unregisterExit = nil
	t.pendingClick = nil
	t.mu.Unlock()

	if unregister != nil {
		unregister()
	}

	err := t.release()

	// 覆盖层只在显式释放路径上关闭；内容本身由外部拥有，只断开关联
	owner := t.owner()
	t.mu.Lock()
	var hide []Surface
	for _, o := range t.overlays {
		if o.current != nil {
			hide = append(hide, o.current)
		}
		if o.content != nil {
			detach(o.content, owner)
		}
		if o.current != nil {
			detach(o.current, owner)
		}
		o.current = nil
		o.content = nil
		o.state = StateClosed
	}
	t.mu.Unlock()
	for _, s := range hide {
		s.Hide()
	}

	t.logger.Info("🛑 [托盘] 控制器已释放")
	return err
}

// release 释放与 UI 线程无关的资源，回收路径与显式释放共用
func (t *taskbar) release() error {
	t.clickTimer.stop()
	t.balloonTimer.stop()

	err := t.sink.Close()
	if err != nil {
		t.logger.Warn("⚠️ [托盘] 关闭消息窗口失败", "error", err)
	}

	t.mu.Lock()
	t.removeLocked()
	t.mu.Unlock()
	return err
}

// finalize Icon 未显式关闭就被回收时运行（独立 goroutine）。
// 不触碰任何覆盖层，也不投递到 UI 线程。
func (t *taskbar) finalize() {
	if !t.disposed.CompareAndSwap(false, true) {
		return
	}
	t.mu.Lock()
	unregister := t.unregisterExit
	t.unregisterExit = nil
	t.pendingClick = nil
	t.mu.Unlock()

	if unregister != nil {
		unregister()
	}
	_ = t.release()
	t.logger.Warn("♻️ [托盘] 图标未关闭即被回收，已自动释放")
}
