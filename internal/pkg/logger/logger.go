// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"storefront/internal/pkg/tracing"
)

// Init 配置全局 zerolog，所有日志都会带上 service 字段
func Init(serviceName, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	zlog.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()
	zerolog.DefaultContextLogger = &zlog.Logger
}

// Ctx returns the logger stored in ctx (or the global one) tagged with the current trace id.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	traceID := tracing.GetTraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	withTrace := l.With().Str("trace_id", traceID).Logger()
	return &withTrace
}

// MaskEmail keeps the first character of the local part: "maria@example.gr" -> "m***@example.gr".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// MaskPhone keeps the last three digits.
func MaskPhone(phone string) string {
	if len(phone) <= 3 {
		return "***"
	}
	return "***" + phone[len(phone)-3:]
}
