// Package gologger resolves the glog loggers used across the intake
// components and bridges them into go-job.
package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Loggers bundles a resolved glog provider/logger pair with its go-job
// equivalents.
type Loggers struct {
	Name        string
	Provider    glog.LoggerProvider
	Logger      glog.Logger
	JobProvider job.LoggerProvider
	JobLogger   job.Logger
}

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveLoggers resolves the service logger and derives the go-job bridges
// from the same source.
func ResolveLoggers(name string, provider glog.LoggerProvider, logger glog.Logger) Loggers {
	name = strings.TrimSpace(name)
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	out := Loggers{
		Name:      name,
		Provider:  resolvedProvider,
		Logger:    resolvedLogger,
		JobLogger: ToJobLogger(resolvedLogger),
	}
	if resolvedProvider != nil {
		out.JobProvider = job.GoLoggerProvider(resolvedProvider)
	}
	return out
}

// Component returns the logger for one named component, for example
// "transcript-intake.renewal".
func (l Loggers) Component(component string) glog.Logger {
	component = strings.TrimSpace(component)
	if l.Provider == nil {
		if l.Logger != nil {
			return l.Logger
		}
		return glog.Nop()
	}
	name := l.Name
	if component != "" {
		if name != "" {
			name += "."
		}
		name += component
	}
	if logger := l.Provider.GetLogger(name); logger != nil {
		return logger
	}
	return glog.Nop()
}
