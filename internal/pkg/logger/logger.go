package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New 构建 zerolog 日志并设为全局 logger。
// debug 模式下输出可读格式并打开 debug 级别，其余模式输出 JSON。
func New(mode string) zerolog.Logger {
	level := zerolog.InfoLevel
	if mode == "debug" {
		level = zerolog.DebugLevel
	}

	l := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Logger()

	if mode == "debug" {
		l = l.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	log.Logger = l
	return l
}
