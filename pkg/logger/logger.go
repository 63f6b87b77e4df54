package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例
	Logger *logrus.Logger

	logMu sync.Mutex
)

// Config 日志配置
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // text（默认）或 json
	OutputFile string // 为空只输出到控制台
	MaxSize    int    // 单个文件上限（MB）
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
}

func newFormatter(format string) logrus.Formatter {
	if strings.EqualFold(format, "json") {
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
	}
}

// Init 初始化日志。全局 logrus 同步设置，各包的 logrus.WithField entry 也会写入文件。
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	writers := []io.Writer{os.Stdout}
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}
	out := io.MultiWriter(writers...)

	l := logrus.New()
	for _, target := range []*logrus.Logger{l, logrus.StandardLogger()} {
		target.SetOutput(out)
		target.SetLevel(level)
		target.SetFormatter(newFormatter(config.Format))
	}
	Logger = l
	return nil
}

// InitDefault 配置加载前使用：只输出到控制台
func InitDefault() error {
	return Init(Config{Level: "info"})
}
