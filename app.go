package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"Aide/pkg/autoreply"
	"Aide/pkg/calldetect"
	"Aide/pkg/dialer"
	"Aide/pkg/engine"
	"Aide/pkg/executor"
	"Aide/pkg/monitor"
	"Aide/pkg/settings"
	"Aide/pkg/types"
)

// dialTimeout 单次拨号的最长时间
const dialTimeout = 2 * time.Minute

// AppConfig 创建 App 的参数
type AppConfig struct {
	ConfigDir string
	DeviceID  string
	Version   string
}

// App struct
type App struct {
	// ctx 由 main 在启动前设置, 供 MCP 调用的设备操作使用
	ctx     context.Context
	version string

	// 本地存储, 无需设备
	settings  *settings.Store
	audit     *AuditStore
	announcer *RelayAnnouncer
	script    monitor.ScriptSlot
	watcher   *settings.Watcher

	// 设备相关, ConnectDevice 之后可用
	mu       sync.Mutex
	deviceID string
	adb      *ADB
	notes    *NotificationCache
	port     *DevicePort
	engine   *engine.Engine
	dialer   *dialer.Dialer
	poller   *Poller
}

// NewApp 打开配置目录下的设置和审计库
func NewApp(cfg AppConfig) (*App, error) {
	store, err := settings.New(settings.Config{
		ConfigDir: cfg.ConfigDir,
		LogFunc: func(format string, args ...interface{}) {
			LogWarn("settings").Msgf(format, args...)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}

	audit, err := NewAuditStore(store.AuditPath())
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	a := &App{
		ctx:      context.Background(),
		version:  cfg.Version,
		settings: store,
		audit:    audit,
		deviceID: cfg.DeviceID,
	}
	a.announcer = NewRelayAnnouncer(func() string { return a.settings.Snapshot().AnnounceURL })
	a.reloadScript()
	return a, nil
}

// Settings exposes the settings store to the CLI
func (a *App) Settings() *settings.Store { return a.settings }

// GetAppVersion returns the application version
func (a *App) GetAppVersion() string {
	return a.version
}

// reloadScript 加载 recognizers.js; 文件不存在时清空, 编译失败时保留旧脚本
func (a *App) reloadScript() {
	path := a.settings.ScriptPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if a.script.Loaded() {
			LogInfo("script").Str("path", path).Msg("Recognizer script removed")
		}
		a.script.Set(nil)
		return
	}
	r, err := monitor.LoadScript(path)
	if err != nil {
		LogWarn("script").Err(err).Msg("Recognizer script not loaded, keeping previous")
		return
	}
	a.script.Set(r)
	LogInfo("script").Str("path", path).Msg("Recognizer script loaded")
}

// onConfigChange 由 Watcher 调用
func (a *App) onConfigChange(name string) {
	switch name {
	case settings.ScriptFile:
		a.reloadScript()
	default:
		if err := a.settings.Reload(); err != nil {
			LogWarn("settings").Err(err).Msg("Reload failed, keeping previous settings")
			return
		}
		LogInfo("settings").Msg("Settings reloaded")
	}
}

// ========================================
// 设备
// ========================================

func (a *App) newADB(deviceID string) (*ADB, error) {
	path, err := FindADB()
	if err != nil {
		return nil, err
	}
	return NewADB(path, deviceID)
}

// GetDevices 列出已连接设备
func (a *App) GetDevices() ([]types.Device, error) {
	adb, err := a.newADB("")
	if err != nil {
		return nil, err
	}
	return adb.Devices(a.ctx)
}

// ConnectDevice 选定设备并组装端口、引擎、拨号器和轮询器; 重复调用无副作用
func (a *App) ConnectDevice(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine != nil {
		return nil
	}

	adb, err := a.newADB(a.deviceID)
	if err != nil {
		return err
	}
	if err := adb.SelectDevice(ctx); err != nil {
		return err
	}

	a.adb = adb
	a.deviceID = adb.DeviceID()
	a.notes = NewNotificationCache(monitor.PackageWeChat)
	a.port = NewDevicePort(adb, a.notes)

	walker := monitor.NewWalker(
		monitor.WithNodeRecognizers(monitor.DefaultNodeRecognizers().With(a.script.Rules()...)),
	)
	a.engine = engine.New(engine.Deps{
		Config:    a.settings,
		Port:      a.port,
		Logger:    ModuleLogger("engine"),
		Announcer: a.announcer,
		Listener:  &appListener{app: a},
		Recorder:  a.audit,
		Walker:    walker,
	})
	a.dialer = dialer.New(a.port,
		func(name string) types.Point { return a.settings.Snapshot().Coordinate(name) },
		dialer.WithLogger(ModuleLogger("dialer")),
		dialer.WithAnnouncer(a.announce),
	)
	a.poller = NewPoller(adb, a.engine, a.notes, func() time.Duration {
		return a.settings.Snapshot().PollInterval
	})

	DeviceLog().Str("deviceId", a.deviceID).Msg("Device connected")
	return nil
}

func (a *App) announce(text string) {
	if a.settings.Snapshot().TTSEnabled {
		a.announcer.Announce(text)
	}
}

// startWatcher 监听 settings.json 和 recognizers.js
func (a *App) startWatcher() {
	if a.watcher != nil {
		return
	}
	a.watcher = settings.NewWatcher(
		a.settings.ConfigDir(),
		[]string{"settings.json", settings.ScriptFile},
		a.onConfigChange,
		ModuleLogger("settings"),
	)
	if err := a.watcher.Start(); err != nil {
		LogWarn("settings").Err(err).Msg("Hot reload disabled")
		a.watcher = nil
	}
}

// Run 启动引擎和轮询, 阻塞直到 ctx 结束
func (a *App) Run(ctx context.Context) error {
	if err := a.ConnectDevice(ctx); err != nil {
		return err
	}
	a.startWatcher()
	if err := a.audit.StartRetention(func() int { return a.settings.Snapshot().AuditRetentionDays }); err != nil {
		LogWarn("audit").Err(err).Msg("Retention disabled")
	}

	snap := a.settings.Snapshot()
	EngineLog().
		Bool("autoReply", snap.AutoReplyEnabled).
		Bool("autoAnswer", snap.AutoAnswer).
		Bool("monitor", snap.MonitorEnabled).
		Dur("poll", snap.PollInterval).
		Msg("Starting automation")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				LogPanic("engine", r, string(debug.Stack()))
			}
		}()
		if err := a.engine.Run(ctx); err != nil {
			LogError("engine").Err(err).Msg("Engine stopped")
		}
	}()
	go func() {
		defer wg.Done()
		if err := a.poller.Run(ctx); err != nil {
			LogError("poller").Err(err).Msg("Poller stopped")
		}
	}()
	wg.Wait()
	return nil
}

// Shutdown is called when the application is closing
func (a *App) Shutdown() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.announcer.Close()
	if err := a.audit.Close(); err != nil {
		LogWarn("audit").Err(err).Msg("Close audit log failed")
	}
}

// DumpHierarchy 打印当前界面树
func (a *App) DumpHierarchy(maxDepth int) (string, error) {
	if err := a.ConnectDevice(a.ctx); err != nil {
		return "", err
	}
	s, err := a.port.Snapshot(a.ctx)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s (%d nodes)\n", s.WindowClass, s.Len())
	s.Dump(&buf, maxDepth)
	return buf.String(), nil
}

// Dial 拨打微信视频或语音电话, 结果写入审计日志
func (a *App) Dial(contact string, video bool) (*dialer.Result, error) {
	if err := a.ConnectDevice(a.ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(a.ctx, dialTimeout)
	defer cancel()

	started := time.Now()
	res, err := a.dialer.Dial(ctx, dialer.Request{Contact: contact, Video: video})
	if rerr := a.audit.RecordDial(res, started, time.Since(started)); rerr != nil {
		LogWarn("audit").Err(rerr).Msg("Record dial failed")
	}
	return res, err
}

// ========================================
// 引擎状态
// ========================================

// GetEngineStatus 未连接设备时只返回配置相关字段
func (a *App) GetEngineStatus() types.EngineStatus {
	a.mu.Lock()
	e := a.engine
	a.mu.Unlock()
	if e != nil {
		return e.Status()
	}
	snap := a.settings.Snapshot()
	return types.EngineStatus{
		CallState:        calldetect.Idle.String(),
		AutoReplyEnabled: snap.AutoReplyEnabled,
		AutoAnswer:       snap.AutoAnswer,
	}
}

func messageView(m monitor.Message) types.MessageView {
	return types.MessageView{
		ID:          m.ID,
		Content:     m.Content,
		Sender:      m.Sender,
		ChatName:    m.ChatName,
		IsGroupChat: m.IsGroupChat,
		IsSelf:      m.IsSelf,
		Type:        string(m.Type),
		Timestamp:   m.Timestamp.UnixMilli(),
	}
}

// RecentMessages 最近的消息, 最新的在后; 只存在于内存
func (a *App) RecentMessages(limit int) []types.MessageView {
	a.mu.Lock()
	e := a.engine
	a.mu.Unlock()
	if e == nil {
		return nil
	}
	msgs := e.History().Recent(limit)
	out := make([]types.MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = messageView(m)
	}
	return out
}

// QueryAttempts 查询审计日志
func (a *App) QueryAttempts(q types.AttemptQuery) (*types.AttemptQueryResult, error) {
	return a.audit.QueryAttempts(q)
}

// ========================================
// 回复规则
// ========================================

func (a *App) ListRules() []autoreply.Rule {
	return a.settings.Rules()
}

// SaveRule 新增或按 ID 替换
func (a *App) SaveRule(rule autoreply.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return a.settings.SetRules(autoreply.Upsert(a.settings.Rules(), rule))
}

func (a *App) RemoveRule(id string) (bool, error) {
	rules, ok := autoreply.Remove(a.settings.Rules(), id)
	if !ok {
		return false, nil
	}
	return true, a.settings.SetRules(rules)
}

func (a *App) ResetRules() error {
	return a.settings.ResetRules()
}

// PreviewReply 按当前设置判断这条消息会得到什么回复, 不计入频率限制
func (a *App) PreviewReply(content, chatName string, group bool) types.ReplyPreview {
	snap := a.settings.Snapshot()
	msg := monitor.NewMessage(content, "", chatName, group, false, time.Now())

	gate := autoreply.NewGate(autoreply.MinReplyInterval)
	if skip, ok := gate.Check(msg, snap.GateConfig(), time.Now()); !ok {
		return types.ReplyPreview{Skip: skip}
	}
	rule, ok := autoreply.FindReply(snap.Rules, msg, snap.AutoReplyEnabled, &snap.Policy)
	if !ok {
		return types.ReplyPreview{}
	}
	return types.ReplyPreview{Matched: true, RuleID: rule.ID, Reply: rule.Reply}
}

// ========================================
// 监听
// ========================================

// appListener 把引擎事件写入日志; 消息正文仅在 log_messages 打开时记录
type appListener struct {
	engine.NopListener
	app *App
}

func (l *appListener) logContent() bool {
	return l.app.settings.Snapshot().LogMessages
}

func (l *appListener) OnMessage(m monitor.Message) {
	ev := EngineLog().
		Str("type", string(m.Type)).
		Bool("group", m.IsGroupChat).
		Bool("self", m.IsSelf)
	if l.logContent() {
		ev = ev.Str("chat", m.ChatName).Str("sender", m.Sender).Str("content", m.Content)
	}
	ev.Msg("Message")
}

func (l *appListener) OnReply(m monitor.Message, rule autoreply.Rule, outcome executor.Outcome) {
	ev := EngineLog().Str("rule", rule.ID).Str("outcome", string(outcome))
	if l.logContent() {
		ev = ev.Str("chat", m.ChatName)
	}
	ev.Msg("Reply finished")
}

func (l *appListener) OnCall(det calldetect.Detection) {
	ev := EngineLog().
		Str("source", string(det.Source)).
		Float64("confidence", det.Confidence).
		Bool("answerAction", det.HasAnswerAction)
	if l.logContent() {
		ev = ev.Str("caller", det.Caller)
	}
	ev.Msg("Incoming call")
}

func (l *appListener) OnAnswer(det calldetect.Detection, outcome executor.Outcome) {
	EngineLog().Str("source", string(det.Source)).Str("outcome", string(outcome)).Msg("Answer finished")
}

func (l *appListener) OnStatus(status string) {
	LogDebug("engine").Msg(status)
}
