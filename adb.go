package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"Aide/pkg/types"
)

// adbTimeout 单条 ADB 命令默认超时
const adbTimeout = 30 * time.Second

var ErrNoDevice = errors.New("no device connected")

// deviceIDPattern 用于验证 deviceId 格式
// 支持以下格式:
// - USB 序列号: 如 "1234567890ABCDEF", "emulator-5554"
// - 无线设备: IP:端口，如 "192.168.1.100:5555"
// - mDNS 设备: 如 "adb-xxxxx._adb-tls-connect._tcp."
var deviceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._:\-]+$`)

// ValidateDeviceID 验证 deviceId 格式是否安全
func ValidateDeviceID(deviceId string) error {
	if deviceId == "" {
		return fmt.Errorf("device ID cannot be empty")
	}
	if len(deviceId) > 256 {
		return fmt.Errorf("device ID too long (max 256 characters)")
	}
	if !deviceIDPattern.MatchString(deviceId) {
		return fmt.Errorf("invalid device ID format: contains illegal characters")
	}
	return nil
}

// FindADB 解析 adb 路径: AIDE_ADB 优先, 其次 PATH
func FindADB() (string, error) {
	if p := strings.TrimSpace(os.Getenv("AIDE_ADB")); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("AIDE_ADB=%s: %w", p, err)
		}
		return p, nil
	}
	p, err := exec.LookPath("adb")
	if err != nil {
		return "", fmt.Errorf("adb not found in PATH (set AIDE_ADB): %w", err)
	}
	return p, nil
}

// shellRunner 在设备 shell 中执行命令
type shellRunner interface {
	Shell(ctx context.Context, cmd string) (string, error)
}

// ADB 绑定到单个设备的 adb 客户端
type ADB struct {
	path     string
	deviceID string
	// limiter 限制命令频率, 避免轮询与动作同时压垮 adbd
	limiter *rate.Limiter
}

// NewADB 创建 ADB 客户端; deviceID 为空时由 SelectDevice 决定
func NewADB(path, deviceID string) (*ADB, error) {
	if deviceID != "" {
		if err := ValidateDeviceID(deviceID); err != nil {
			return nil, fmt.Errorf("invalid device ID: %w", err)
		}
	}
	return &ADB{
		path:     path,
		deviceID: deviceID,
		limiter:  rate.NewLimiter(rate.Every(50*time.Millisecond), 4),
	}, nil
}

// DeviceID 返回当前绑定的设备
func (a *ADB) DeviceID() string { return a.deviceID }

// newAdbCommand creates an exec.Cmd with a clean environment to avoid proxy issues
func (a *ADB) newAdbCommand(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, a.path, args...)

	proxyVars := []string{"HTTP_PROXY", "HTTPS_PROXY", "ALL_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "all_proxy", "no_proxy"}
	env := os.Environ()
	newEnv := make([]string, 0, len(env))
	for _, e := range env {
		isProxy := false
		for _, v := range proxyVars {
			if strings.HasPrefix(e, v+"=") {
				isProxy = true
				break
			}
		}
		if !isProxy {
			newEnv = append(newEnv, e)
		}
	}
	cmd.Env = newEnv
	return cmd
}

// Run 执行 adb 命令 (不带 -s); 无截止时间时套用 30s 超时
func (a *ADB) Run(ctx context.Context, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, adbTimeout)
		defer cancel()
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}

	output, err := a.newAdbCommand(ctx, args...).CombinedOutput()
	res := string(output)
	if err != nil {
		return res, fmt.Errorf("adb %s failed: %w, output: %s", strings.Join(args, " "), err, strings.TrimSpace(res))
	}
	return res, nil
}

// Shell 在绑定设备上执行 shell 命令
func (a *ADB) Shell(ctx context.Context, cmd string) (string, error) {
	if a.deviceID == "" {
		return "", ErrNoDevice
	}
	return a.Run(ctx, "-s", a.deviceID, "shell", cmd)
}

// Devices returns the connected ADB devices
func (a *ADB) Devices(ctx context.Context) ([]types.Device, error) {
	output, err := a.Run(ctx, "devices", "-l")
	if err != nil {
		return nil, err
	}
	return parseDevices(output), nil
}

// SelectDevice 未指定设备时选择唯一在线的设备
func (a *ADB) SelectDevice(ctx context.Context) error {
	if a.deviceID != "" {
		return nil
	}
	devices, err := a.Devices(ctx)
	if err != nil {
		return err
	}
	var online []types.Device
	for _, d := range devices {
		if d.State == "device" {
			online = append(online, d)
		}
	}
	switch len(online) {
	case 0:
		return ErrNoDevice
	case 1:
		a.deviceID = online[0].ID
		DeviceLog().Str("deviceId", a.deviceID).Str("model", online[0].Model).Msg("Device selected")
		return nil
	default:
		ids := make([]string, len(online))
		for i, d := range online {
			ids[i] = d.ID
		}
		return fmt.Errorf("%d devices connected (%s), pass --device", len(online), strings.Join(ids, ", "))
	}
}

// parseDevices 解析 `adb devices -l` 输出
func parseDevices(output string) []types.Device {
	var devices []types.Device
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices attached") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		d := types.Device{ID: parts[0], Serial: parts[0], State: parts[1], Type: "wired"}
		hasUSB := false
		for _, p := range parts[2:] {
			k, v, ok := strings.Cut(p, ":")
			if !ok {
				continue
			}
			switch k {
			case "model":
				d.Model = v
			case "product":
				d.Product = v
			case "usb":
				hasUSB = true
			}
		}
		if !hasUSB && (strings.Contains(d.ID, ":") || strings.Contains(d.ID, "._tcp") || strings.Contains(d.ID, "._adb-tls-connect")) {
			d.Type = "wireless"
		}
		devices = append(devices, d)
	}
	return devices
}
