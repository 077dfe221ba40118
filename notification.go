package main

import (
	"bufio"
	"context"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"Aide/pkg/calldetect"
)

// ========================================
// dumpsys notification 解析
// ========================================

var (
	noteRecordPattern   = regexp.MustCompile(`NotificationRecord\(`)
	notePkgPattern      = regexp.MustCompile(`\bpkg=(\S+)`)
	noteKeyPattern      = regexp.MustCompile(`\bkey=(\S+): Notification\(`)
	noteCategoryPattern = regexp.MustCompile(`\bcategory=([A-Za-z_]+)`)
	// android.title=String (张三) / android.text=SpannableString (...)
	noteExtraPattern = regexp.MustCompile(`^\s*android\.(title|text|subText|bigText)=(?:[A-Za-z]+ \((.*)\)|(.*))$`)
	// [1] "接听" -> PendingIntent{...}
	noteActionPattern = regexp.MustCompile(`^\s*\[(\d+)\]\s+"(.*)"\s+->`)
)

// parseNotifications 解析 `dumpsys notification --noredact` 输出
func parseNotifications(output string) []calldetect.Notification {
	var notes []calldetect.Notification
	var cur *calldetect.Notification

	flush := func() {
		if cur != nil && cur.Key != "" {
			notes = append(notes, *cur)
		}
		cur = nil
	}

	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()

		if noteRecordPattern.MatchString(line) {
			flush()
			cur = &calldetect.Notification{}
			if m := notePkgPattern.FindStringSubmatch(line); m != nil {
				cur.Package = m[1]
			}
			if m := noteKeyPattern.FindStringSubmatch(line); m != nil {
				cur.Key = m[1]
			}
			if m := noteCategoryPattern.FindStringSubmatch(line); m != nil {
				cur.Category = m[1]
			}
			continue
		}
		if cur == nil {
			continue
		}

		if m := noteExtraPattern.FindStringSubmatch(line); m != nil {
			v := m[2]
			if v == "" {
				v = m[3]
			}
			if v == "null" {
				v = ""
			}
			switch m[1] {
			case "title":
				cur.Title = v
			case "text":
				cur.Text = v
			case "subText":
				cur.SubText = v
			case "bigText":
				cur.BigText = v
			}
			continue
		}
		if m := noteActionPattern.FindStringSubmatch(line); m != nil {
			idx, _ := strconv.Atoi(m[1])
			cur.Actions = append(cur.Actions, calldetect.NotificationAction{Index: idx, Label: m[2]})
		}
	}
	flush()
	return notes
}

// noteDigest 通知内容摘要, 用于判断同一 key 是否更新
func noteDigest(n calldetect.Notification) uint64 {
	h := fnv.New64a()
	for _, s := range []string{n.Title, n.Text, n.SubText, n.BigText, n.Category} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	for _, a := range n.Actions {
		h.Write([]byte(a.Label))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// ========================================
// NotificationCache - 最近一次读取的通知
// ========================================

// NotificationCache 记住已见过的通知, 只放行新增或内容变化的
type NotificationCache struct {
	mu      sync.Mutex
	pkg     string
	digests map[string]uint64
	latest  map[string]calldetect.Notification
}

// NewNotificationCache 只关注 pkg 的通知, pkg 为空表示全部
func NewNotificationCache(pkg string) *NotificationCache {
	return &NotificationCache{
		pkg:     pkg,
		digests: make(map[string]uint64),
		latest:  make(map[string]calldetect.Notification),
	}
}

// Update 替换当前通知集合, 返回新增或变化的通知
func (c *NotificationCache) Update(notes []calldetect.Notification) []calldetect.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed []calldetect.Notification
	seen := make(map[string]bool, len(notes))
	for _, n := range notes {
		if c.pkg != "" && n.Package != c.pkg {
			continue
		}
		seen[n.Key] = true
		d := noteDigest(n)
		if old, ok := c.digests[n.Key]; !ok || old != d {
			changed = append(changed, n)
		}
		c.digests[n.Key] = d
		c.latest[n.Key] = n
	}
	for k := range c.digests {
		if !seen[k] {
			delete(c.digests, k)
			delete(c.latest, k)
		}
	}
	return changed
}

// Lookup 返回 key 对应的最近通知
func (c *NotificationCache) Lookup(key string) (calldetect.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.latest[key]
	return n, ok
}

// readNotifications 读取当前通知
func readNotifications(ctx context.Context, sh shellRunner) ([]calldetect.Notification, error) {
	out, err := sh.Shell(ctx, "dumpsys notification --noredact")
	if err != nil {
		return nil, err
	}
	return parseNotifications(out), nil
}
