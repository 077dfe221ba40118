package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"Aide/pkg/settings"
)

// Version 由 -ldflags "-X main.Version=..." 注入
var Version = "dev"

// 环境变量
const (
	envConfigDir = "AIDE_CONFIG_DIR"
	envDevice    = "AIDE_DEVICE"
	envLogLevel  = "AIDE_LOG_LEVEL"
)

func main() {
	// godotenv.Load 不会覆盖已有环境变量
	_ = godotenv.Load(".env")

	if err := NewRootCmd(Version).Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd 创建根命令并注册所有子命令
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aide",
		Short: "Aide - WeChat auto-reply and auto-answer over ADB",
		Long: `Aide watches WeChat on an Android phone over ADB, answers messages
with keyword rules and picks up incoming video calls.

Examples:
  aide run
  aide rules add --id hi --keywords 你好,hello --reply "你好！"
  aide settings set auto_answer_video true
  aide dial 张三 --voice
  aide mcp`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			CloseLogger()
		},
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newRulesCmd(),
		newSettingsCmd(),
		newCalibrateCmd(),
		newHistoryCmd(),
		newDevicesCmd(),
		newDumpCmd(),
		newDialCmd(),
		newMCPCmd(),
	)

	// 全局参数
	rootCmd.PersistentFlags().String("config-dir", "", "configuration directory (default: $AIDE_CONFIG_DIR or the user config dir)")
	rootCmd.PersistentFlags().StringP("device", "d", "", "adb device id (default: $AIDE_DEVICE or the only connected device)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logs")

	return rootCmd
}

// configDir 优先级: --config-dir > AIDE_CONFIG_DIR > 用户配置目录
func configDir(cmd *cobra.Command) string {
	if dir, _ := cmd.Flags().GetString("config-dir"); dir != "" {
		return dir
	}
	if dir := os.Getenv(envConfigDir); dir != "" {
		return dir
	}
	return settings.DefaultConfigDir()
}

func deviceID(cmd *cobra.Command) string {
	if id, _ := cmd.Flags().GetString("device"); id != "" {
		return id
	}
	return os.Getenv(envDevice)
}

// setupLogging 加载配置目录下的 .env 并初始化日志; 文件日志写入 <configDir>/logs
func setupLogging(cmd *cobra.Command) error {
	dir := configDir(cmd)
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg := PersistentLogConfig(dir)
	cfg.Level = ParseLogLevel(os.Getenv(envLogLevel))
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Level = LogLevelDebug
	}
	if err := InitLogger(cfg); err != nil {
		// 无法写文件时退回控制台
		console := DefaultLogConfig()
		console.Level = cfg.Level
		InitLogger(console)
		LogWarn("main").Err(err).Msg("File logging disabled")
	}
	return nil
}

// openApp 打开设置和审计库, 调用方负责 Shutdown
func openApp(cmd *cobra.Command) (*App, error) {
	app, err := NewApp(AppConfig{
		ConfigDir: configDir(cmd),
		DeviceID:  deviceID(cmd),
		Version:   cmd.Root().Version,
	})
	if err != nil {
		return nil, err
	}
	app.ctx = cmd.Context()
	if app.ctx == nil {
		app.ctx = context.Background()
	}
	return app, nil
}

// signalContext 在 SIGINT / SIGTERM 时取消
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the device and run auto-reply and auto-answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Shutdown()
			app.ctx = ctx

			LogInfo("main").Str("version", app.GetAppVersion()).Str("config", app.Settings().ConfigDir()).Msg("Aide starting")
			if err := app.Run(ctx); err != nil {
				return fmt.Errorf("run: %w", err)
			}
			LogInfo("main").Msg("Aide stopped")
			return nil
		},
	}
}

func newMCPCmd() *cobra.Command {
	var withEngine bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		Long: `Start the MCP server on stdin/stdout so that AI clients can inspect the
engine, edit reply rules and settings, and place calls.

With --engine the automation loop runs in the same process, so
engine_status and messages_recent report live data.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Shutdown()
			app.ctx = ctx

			if withEngine {
				go func() {
					if err := app.Run(ctx); err != nil {
						LogError("main").Err(err).Msg("Engine not started")
					}
				}()
			}

			return NewMCPServerForApp(app).Serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&withEngine, "engine", false, "also run the automation engine")
	return cmd
}
