package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New はアプリ共通のロガーを作る。devは見やすいconsole出力、それ以外はJSON
func New(env string, level string) zerolog.Logger {
	var w io.Writer = os.Stdout
	if env == "" || env == "dev" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return newWithWriter(w, level)
}

func newWithWriter(w io.Writer, level string) zerolog.Logger {
	lv, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lv = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lv).With().Timestamp().Str("service", "storefront").Logger()
}
