package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, resolved := Resolve("transcript-intake", provider, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved := Resolve("transcript-intake", nil, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	if _, resolved = Resolve("transcript-intake", nil, nil); resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestResolveLoggers_BridgesIntoGoJob(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	loggers := ResolveLoggers(" transcript-intake ", provider, nil)
	if loggers.Name != "transcript-intake" {
		t.Fatalf("expected trimmed name, got %q", loggers.Name)
	}
	if loggers.JobProvider == nil || loggers.JobLogger == nil {
		t.Fatalf("expected go-job bridges")
	}

	loggers.JobLogger.Info("job accepted", "job_id", "transcript-analysis")
	captured := providerLogger.lastInfo
	if captured.msg != "job accepted" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "job_id" || captured.args[1] != "transcript-analysis" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

func TestLoggers_Component(t *testing.T) {
	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}
	loggers := ResolveLoggers("transcript-intake", provider, nil)

	if loggers.Component("renewal") == nil {
		t.Fatalf("expected component logger")
	}
	if provider.lastName != "transcript-intake.renewal" {
		t.Fatalf("expected dotted component name, got %q", provider.lastName)
	}
	if (Loggers{}).Component("webhooks") == nil {
		t.Fatalf("expected nop fallback for empty loggers")
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger   *capturingLogger
	lastName string
}

func (p *capturingProvider) GetLogger(name string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	p.lastName = name
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
