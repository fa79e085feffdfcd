package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志配置
type Options struct {
	Level      string // debug, info, warn, error
	File       string // 日志文件路径（可选，为空则只输出到控制台）
	MaxSizeMB  int    // 日志文件最大大小（MB）
	MaxBackups int    // 保留的旧日志文件数量
	MaxAgeDays int    // 保留旧日志文件的天数
}

var (
	mu      sync.Mutex
	fileOut *lumberjack.Logger
)

// Setup 初始化全局 zerolog：控制台人类可读输出，文件按 JSON 滚动写入
func Setup(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	var out io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if fileOut != nil {
		_ = fileOut.Close()
		fileOut = nil
	}
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		fileOut = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, fileOut)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	SetLevel(opts.Level)
	return nil
}

// SetLevel 设置全局日志级别，未知级别按 info 处理；可在热重载时调用
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Close 关闭日志文件
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileOut == nil {
		return nil
	}
	err := fileOut.Close()
	fileOut = nil
	return err
}
