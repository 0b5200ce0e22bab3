package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolvePrefersProviderOverLogger(t *testing.T) {
	fallback := &recordingLogger{id: "relay"}
	sweepLogger := &recordingLogger{id: "sweeps"}
	provider := &recordingProvider{logger: sweepLogger}

	_, resolved := Resolve("commercebot", provider, fallback)
	if got := resolved.(*recordingLogger); got.id != "sweeps" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}
}

func TestResolveFallsBackToLoggerThenNop(t *testing.T) {
	fallback := &recordingLogger{id: "relay"}

	resolvedProvider, resolved := Resolve("commercebot", nil, fallback)
	if got := resolved.(*recordingLogger); got.id != "relay" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatal("expected a provider wrapper around the logger")
	}

	if _, resolved = Resolve("commercebot", nil, nil); resolved == nil {
		t.Fatal("expected nop fallback when nothing is configured")
	}
}

func TestSweepLogsFlowThroughJobBridge(t *testing.T) {
	sweepLogger := &recordingLogger{id: "sweeps"}
	provider := &recordingProvider{logger: sweepLogger}

	_, _, jobProvider, jobLogger := ResolveForJob("commercebot", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatal("expected both go-job bridges")
	}

	jobProvider.GetLogger("commercebot").Info("idle sessions evicted", "count", 3)

	captured := sweepLogger.lastInfo
	if captured.msg != "idle sessions evicted" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "count" || captured.args[1] != 3 {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

func TestNilBridgesStayNil(t *testing.T) {
	if ToJobProvider(nil) != nil {
		t.Fatal("expected nil provider to bridge to nil")
	}
	if ToJobLogger(nil) != nil {
		t.Fatal("expected nil logger to bridge to nil")
	}
}

var (
	_ glog.Logger         = (*recordingLogger)(nil)
	_ glog.LoggerProvider = (*recordingProvider)(nil)
)

type recordingProvider struct {
	logger *recordingLogger
}

func (p *recordingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type recordingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *recordingLogger) Trace(string, ...any) {}
func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}
func (l *recordingLogger) Fatal(string, ...any) {}

func (l *recordingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *recordingLogger) WithContext(context.Context) glog.Logger {
	return l
}
