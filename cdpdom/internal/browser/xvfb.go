package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// startXvfb runs a virtual display and waits for its socket to appear.
func (m *Manager) startXvfb(ctx context.Context) error {
	if m.xvfb != nil {
		return nil
	}
	display := m.cfg.XvfbDisplay
	cmd := exec.Command("Xvfb", display, "-screen", "0", "1280x900x24", "-nolisten", "tcp", "-ac")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", display, err)
	}
	m.xvfb = cmd

	sock := "/tmp/.X11-unix/X" + strings.TrimPrefix(display, ":")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		if time.Now().After(deadline) {
			m.stopXvfb()
			return fmt.Errorf("display %s not ready", display)
		}
		select {
		case <-ctx.Done():
			m.stopXvfb()
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	m.cfg.Logger.Debug("browser: xvfb ready", "display", display, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if p := m.xvfb.Process; p != nil {
		_ = p.Kill()
		_ = m.xvfb.Wait()
	}
	m.xvfb = nil
}
