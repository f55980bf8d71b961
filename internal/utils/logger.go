package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger 组件日志器，统一带上组件名
// 日志一律写到stderr，保证stdout上的报告输出逐字节稳定
type Logger struct {
	entry *logrus.Entry
}

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	if os.Getenv("DEBUG") == "true" {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// SetDebug 运行时开关debug级别日志（-verbose）
func SetDebug(enabled bool) {
	if enabled {
		base.SetLevel(logrus.DebugLevel)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}
}

func NewLogger(name string) *Logger {
	return &Logger{entry: base.WithField("component", name)}
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// 添加Warn方法
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}
