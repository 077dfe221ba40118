package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"Aide/pkg/uitree"
)

const (
	dumpFile       = "/data/local/tmp/aide_ui.xml"
	dumpMaxRetries = 3
)

// focusPattern 匹配 mCurrentFocus=Window{ab3a179 u0 com.tencent.mm/com.tencent.mm.ui.LauncherUI}
var focusPattern = regexp.MustCompile(`mCurrentFocus=Window\{[^}]*\s+(\S+)/(\S+)\}`)

// parseFocus 从 dumpsys window 输出解析前台包名和窗口类名
// 相对类名 (".ui.LauncherUI") 会补全为完整类名
func parseFocus(output string) (pkg, class string) {
	m := focusPattern.FindStringSubmatch(output)
	if len(m) < 3 {
		return "", ""
	}
	pkg, class = m[1], m[2]
	if strings.HasPrefix(class, ".") {
		class = pkg + class
	}
	return pkg, class
}

// currentFocus 获取当前焦点窗口
func currentFocus(ctx context.Context, sh shellRunner) (pkg, class string, err error) {
	out, err := sh.Shell(ctx, "dumpsys window displays | grep mCurrentFocus")
	if err != nil {
		return "", "", err
	}
	pkg, class = parseFocus(out)
	return pkg, class, nil
}

// dumpHierarchy 导出界面层级; uiautomator 偶尔失败, 最多重试 3 次
func dumpHierarchy(ctx context.Context, sh shellRunner, windowClass string) (*uitree.Snapshot, error) {
	var raw string
	var err error
	for i := 0; i < dumpMaxRetries; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i > 0 {
			sh.Shell(ctx, "pkill uiautomator")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(300 * time.Millisecond):
			}
		}

		raw, err = sh.Shell(ctx, fmt.Sprintf("uiautomator dump %s >/dev/null && cat %s", dumpFile, dumpFile))
		if err == nil && strings.Contains(raw, "<hierarchy") {
			break
		}
		LogDebug("hierarchy").Int("retry", i+1).Err(err).Msg("UI dump retry")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dump UI after %d attempts: %w", dumpMaxRetries, err)
	}
	if !strings.Contains(raw, "<hierarchy") {
		return nil, uitree.ErrEmptyHierarchy
	}
	return uitree.FromXML(raw, windowClass, time.Now())
}

// screenPattern 匹配 "Physical size: 1080x2400" / "Override size: 1080x2400"
var screenPattern = regexp.MustCompile(`(\d+)x(\d+)`)

// parseScreenSize 取最后一个尺寸, Override 在 Physical 之后
func parseScreenSize(output string) (int, int, bool) {
	all := screenPattern.FindAllStringSubmatch(output, -1)
	if len(all) == 0 {
		return 0, 0, false
	}
	m := all[len(all)-1]
	var w, h int
	fmt.Sscanf(m[1]+" "+m[2], "%d %d", &w, &h)
	return w, h, w > 0 && h > 0
}
