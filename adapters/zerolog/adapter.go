// Package zerolog backs the glog logger contracts with rs/zerolog for the
// intake binaries.
package zerolog

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/rs/zerolog"
)

// Logger writes glog key/value pairs as zerolog fields.
type Logger struct {
	base zerolog.Logger
}

func New(w io.Writer, level string) *Logger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	return &Logger{base: zerolog.New(w).Level(parsed).With().Timestamp().Logger()}
}

func FromZerolog(base zerolog.Logger) *Logger {
	return &Logger{base: base}
}

func (l *Logger) Trace(msg string, args ...any) { l.emit(l.base.Trace(), msg, args) }
func (l *Logger) Debug(msg string, args ...any) { l.emit(l.base.Debug(), msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.emit(l.base.Info(), msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.emit(l.base.Warn(), msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.emit(l.base.Error(), msg, args) }
func (l *Logger) Fatal(msg string, args ...any) { l.emit(l.base.Fatal(), msg, args) }

// WithContext tags records with the chi request id when ctx carries one.
func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	requestID := middleware.GetReqID(ctx)
	if requestID == "" {
		return l
	}
	return &Logger{base: l.base.With().Str("http_request_id", requestID).Logger()}
}

// Named returns a child logger tagged with component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{base: l.base.With().Str("component", component).Logger()}
}

func (l *Logger) emit(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			event = event.Interface("!BADKEY", args[i])
			break
		}
		switch value := args[i+1].(type) {
		case error:
			event = event.AnErr(key, value)
		default:
			event = event.Interface(key, value)
		}
	}
	event.Msg(msg)
}

// Provider hands out component loggers sharing one sink.
type Provider struct {
	root *Logger
}

func NewProvider(root *Logger) *Provider {
	return &Provider{root: root}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	if p == nil || p.root == nil {
		return glog.Nop()
	}
	return p.root.Named(name)
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
