package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/craftmeet/config"
	"github.com/BaSui01/craftmeet/internal/telemetry"
	"github.com/BaSui01/craftmeet/internal/tui"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const menuLogFile = "craftmeet.log"

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	cmd, args := "run", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		runMenu(args)
	case "clean":
		runClean(args)
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ run 命令
// =============================================================================

func runMenu(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	common := registerCommonFlags(fs)
	theme := fs.String("theme", tui.Themes[0].Name, "Initial color theme")
	typewriter := fs.Bool("typewriter", false, "Enable typewriter streaming effect")
	fs.Parse(args)

	cfg := mustLoadConfig(common)

	// 全屏界面占用终端，日志改写到文件
	logCfg := cfg.Log
	if writesToTerminal(logCfg.OutputPaths) {
		logCfg.OutputPaths = []string{menuLogFile}
	}
	logger := initLogger(logCfg)
	defer logger.Sync()

	logger.Info("Starting craftmeet",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	app, err := newApplication(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.StartTraceServer(); err != nil {
		logger.Warn("trace server not started", zap.Error(err))
	}

	err = tui.Run(ctx, app, tui.Options{Theme: *theme, Typewriter: *typewriter, Logger: logger})
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		logger.Error("menu exited with error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("craftmeet stopped")
}

// =============================================================================
// ⚙️ 公共参数与配置
// =============================================================================

type commonFlags struct {
	configPath string
	envFile    string
}

func registerCommonFlags(fs *flag.FlagSet) *commonFlags {
	f := &commonFlags{}
	fs.StringVar(&f.configPath, "config", "", "Path to config file (YAML)")
	fs.StringVar(&f.envFile, "env", ".env", "Path to .env file")
	return f
}

func mustLoadConfig(f *commonFlags) *config.Config {
	loader := config.NewLoader().WithEnvFile(f.envFile)
	if f.configPath != "" {
		loader = loader.WithConfigPath(f.configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func writesToTerminal(paths []string) bool {
	if len(paths) == 0 {
		return true
	}
	for _, p := range paths {
		if p == "stderr" || p == "stdout" {
			return true
		}
	}
	return false
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("craftmeet %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`craftmeet - 剪纸文创设计会议

Usage:
  craftmeet [command] [options]

Commands:
  run       Open the interactive menu (default)
  clean     Purge meeting data, optionally backing it up first
  version   Show version information
  help      Show this help message

Common options:
  -config <path>   Path to configuration file (YAML)
  -env <path>      Path to .env file (default .env)

Options for 'run':
  -theme <name>    Initial color theme (水墨, 朱砂, 青花)
  -typewriter      Enable typewriter streaming effect

Options for 'clean':
  -session <id>    Only purge the given meeting
  -participants    Also purge participant memories
  -backup          Back up records to BACKUP_DSN before purging

Examples:
  craftmeet
  craftmeet run -config craftmeet.yaml
  craftmeet clean -participants -backup
  craftmeet version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
