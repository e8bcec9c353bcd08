// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Config 是日志初始化参数
type Config struct {
	Service string
	Level   string
	Pretty  bool
}

var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init 构建进程级别的基础 logger，只应在 main 中调用一次
func Init(cfg Config) error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return err
		}
		level = parsed
	}

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}
	}

	base = zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", cfg.Service).
		Logger()
	return nil
}

// L 返回不带请求上下文的基础 logger
func L() *zerolog.Logger {
	l := base
	return &l
}

// Ctx 返回附带 trace_id / span_id 的 logger
func Ctx(ctx context.Context) *zerolog.Logger {
	l := base
	if ctx == nil {
		return &l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
	}
	return &l
}
